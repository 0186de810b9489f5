package book

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/discochess/kibitz/internal/eval"
)

// Record is one line of a shard, in the Lichess evaluation database
// format. Scores are from White's perspective and lines are UCI moves.
type Record struct {
	FEN   string     `json:"fen"`
	Evals []Analysis `json:"evals"`
}

// Analysis is one engine run stored for a position.
type Analysis struct {
	PVs    []PV `json:"pvs"`
	Knodes int  `json:"knodes"`
	Depth  int  `json:"depth"`
}

// PV is a principal variation. Exactly one of CP and Mate is set.
type PV struct {
	CP   *int   `json:"cp,omitempty"`
	Mate *int   `json:"mate,omitempty"`
	Line string `json:"line"`
}

// Result converts the deepest stored analysis into an evaluation
// result. It reports eval.ErrNotFound for a record without any PV.
func (r *Record) Result() (eval.Result, error) {
	best := -1
	for i, a := range r.Evals {
		if len(a.PVs) == 0 {
			continue
		}
		if best < 0 || a.Depth > r.Evals[best].Depth {
			best = i
		}
	}
	if best < 0 {
		return eval.Result{}, fmt.Errorf("%w: no analysis stored for %s", eval.ErrNotFound, r.FEN)
	}

	a := r.Evals[best]
	pv := a.PVs[0]
	var score eval.Score
	switch {
	case pv.Mate != nil:
		score = eval.MateIn(*pv.Mate)
	case pv.CP != nil:
		score = eval.Centipawns(*pv.CP)
	default:
		return eval.Result{}, fmt.Errorf("%w: PV without score for %s", eval.ErrNotFound, r.FEN)
	}

	return eval.NewResult(a.Depth, score, "", strings.Fields(pv.Line), int64(a.Knodes)*1000, eval.SourceOpeningBook), nil
}

// Search finds the record for key in sorted JSONL shard data.
func Search(data []byte, key string) (*Record, error) {
	lines := splitLines(data)

	idx := sort.Search(len(lines), func(i int) bool {
		return ExtractFEN(lines[i]) >= key
	})
	if idx >= len(lines) || ExtractFEN(lines[idx]) != key {
		return nil, eval.ErrNotFound
	}

	var rec Record
	if err := json.Unmarshal(lines[idx], &rec); err != nil {
		return nil, fmt.Errorf("parsing eval record: %w", err)
	}
	return &rec, nil
}

// SortLines orders shard lines by FEN, the order Search relies on.
func SortLines(lines [][]byte) {
	slices.SortStableFunc(lines, func(a, b []byte) int {
		return strings.Compare(ExtractFEN(a), ExtractFEN(b))
	})
}

// ExtractFEN returns the "fen" field of a JSON line without decoding the
// rest of it, or "" if there is none.
func ExtractFEN(line []byte) string {
	const prefix = `"fen":"`
	idx := bytes.Index(line, []byte(prefix))
	if idx < 0 {
		return ""
	}

	start := idx + len(prefix)
	end := bytes.IndexByte(line[start:], '"')
	if end < 0 {
		return ""
	}
	return string(line[start : start+end])
}

// splitLines splits data into lines, excluding empty lines.
func splitLines(data []byte) [][]byte {
	lines := make([][]byte, 0, bytes.Count(data, []byte{'\n'})+1)
	for len(data) > 0 {
		var line []byte
		if idx := bytes.IndexByte(data, '\n'); idx < 0 {
			line, data = data, nil
		} else {
			line, data = data[:idx], data[idx+1:]
		}
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}
