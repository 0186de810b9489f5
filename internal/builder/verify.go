package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/fen"
	"github.com/discochess/kibitz/internal/store"
)

const maxProblems = 100

// Report summarizes a verification pass over a built book.
type Report struct {
	ShardsPresent int
	ShardsMissing int
	Records       int64
	Problems      []string
}

// OK reports whether verification found nothing wrong.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) problem(format string, args ...any) {
	if len(r.Problems) < maxProblems {
		r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
	}
}

// Verify reads every shard of a book and checks that lines are sorted,
// carry valid position keys and live in the shard the manifest's
// strategy assigns them to.
func Verify(ctx context.Context, src store.Store, m *book.Manifest) (*Report, error) {
	strategy, err := m.ShardStrategy()
	if err != nil {
		return nil, err
	}

	r := &Report{}
	for id := 0; id < m.TotalShards; id++ {
		data, err := src.ReadShard(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			r.ShardsMissing++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading shard %d: %w", id, err)
		}
		r.ShardsPresent++

		prev := ""
		for _, line := range splitLines(data) {
			r.Records++
			raw := book.ExtractFEN(line)
			key, err := fen.KeyOf(raw)
			if err != nil || string(key) != raw {
				r.problem("shard %d: bad position key %q", id, raw)
				continue
			}
			if raw < prev {
				r.problem("shard %d: %q sorts before %q", id, raw, prev)
			}
			prev = raw
			if want := strategy.ShardID(raw, m.TotalShards); want != id {
				r.problem("shard %d: %q belongs in shard %d", id, raw, want)
			}
		}
	}

	if r.ShardsPresent != m.ShardCount {
		r.problem("found %d shards, manifest lists %d", r.ShardsPresent, m.ShardCount)
	}
	if r.Records != m.RecordCount {
		r.problem("found %d records, manifest lists %d", r.Records, m.RecordCount)
	}
	return r, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for len(data) > 0 {
		i := 0
		for i < len(data) && data[i] != '\n' {
			i++
		}
		if i > 0 {
			lines = append(lines, data[:i])
		}
		if i == len(data) {
			break
		}
		data = data[i+1:]
	}
	return lines
}
