package builder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/codec/gzipcodec"
	"github.com/discochess/kibitz/internal/codec/zstdcodec"
	"github.com/discochess/kibitz/internal/fen"
	"github.com/discochess/kibitz/internal/shard"
	"github.com/discochess/kibitz/internal/shard/materialshard"
	"github.com/discochess/kibitz/internal/store"
)

// DefaultSourceURL is where Lichess publishes its evaluation database.
const DefaultSourceURL = "https://database.lichess.org/lichess_db_eval.jsonl.zst"

const (
	maxLineBytes   = 10 << 20
	reportInterval = 100_000
)

// Builder shards an evaluation dump and writes it to a store.
type Builder struct {
	dst         store.Writer
	totalShards int
	strategy    shard.Strategy
	compression string
	progress    ProgressFunc
	tempDir     string
	maxMemoryMB int
	workers     int
	logger      *zap.Logger
}

// Option configures the Builder.
type Option func(*Builder)

// WithTotalShards sets the number of shards.
func WithTotalShards(n int) Option {
	return func(b *Builder) { b.totalShards = n }
}

// WithStrategy sets the sharding strategy.
func WithStrategy(s shard.Strategy) Option {
	return func(b *Builder) { b.strategy = s }
}

// WithCompression records the codec name of the destination store in
// the manifest.
func WithCompression(name string) Option {
	return func(b *Builder) { b.compression = name }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) { b.progress = fn }
}

// WithTempDir sets the directory for spill files.
func WithTempDir(dir string) Option {
	return func(b *Builder) { b.tempDir = dir }
}

// WithMaxMemoryMB bounds the records held in memory before spilling.
func WithMaxMemoryMB(mb int) Option {
	return func(b *Builder) { b.maxMemoryMB = mb }
}

// WithWorkers sets how many shards are compressed and written at once.
func WithWorkers(n int) Option {
	return func(b *Builder) { b.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder writing to dst.
func NewBuilder(dst store.Writer, opts ...Option) *Builder {
	b := &Builder{
		dst:         dst,
		totalShards: book.DefaultTotalShards,
		strategy:    materialshard.New(),
		compression: "zstd",
		maxMemoryMB: 2048,
		workers:     4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildFromFile builds the book from a JSONL file, decompressing .zst and
// .gz input.
func (b *Builder) BuildFromFile(ctx context.Context, path string) (*book.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening source file: %w", err)
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	var read atomic.Int64
	var r io.Reader = newProgressReader(f, &read)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		dec, err := zstdcodec.New().Reader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	case ".gz":
		dec, err := gzipcodec.New().Reader(r)
		if err != nil {
			return nil, fmt.Errorf("creating gzip decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	return b.build(ctx, r, filepath.Base(path), &read, size)
}

// Build builds the book from plain JSONL read from r.
func (b *Builder) Build(ctx context.Context, r io.Reader, source string) (*book.Manifest, error) {
	return b.build(ctx, r, source, nil, 0)
}

func (b *Builder) build(ctx context.Context, r io.Reader, source string, read *atomic.Int64, size int64) (*book.Manifest, error) {
	if b.totalShards <= 0 {
		return nil, fmt.Errorf("invalid total shards %d", b.totalShards)
	}
	start := time.Now()

	tempDir, err := b.makeTempDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	tracker := newMemoryTracker(b.maxMemoryMB)
	collectors := make([]*collector, b.totalShards)

	var recordsRead, skipped int64
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := book.ExtractFEN(line)
		key, err := fen.KeyOf(raw)
		if err != nil {
			skipped++
			continue
		}
		if string(key) != raw {
			line = bytes.Replace(line, []byte(`"fen":"`+raw+`"`), []byte(`"fen":"`+string(key)+`"`), 1)
		}

		id := b.strategy.ShardID(string(key), b.totalShards)
		c := collectors[id]
		if c == nil {
			c = newCollector(id, tempDir, tracker)
			collectors[id] = c
			tracker.collectors = append(tracker.collectors, c)
		}
		if err := c.Add(line); err != nil {
			return nil, fmt.Errorf("adding to shard %d: %w", id, err)
		}

		recordsRead++
		if recordsRead%reportInterval == 0 {
			p := Progress{Phase: PhaseRead, RecordsRead: recordsRead, RecordsSkipped: skipped, BytesTotal: size, StartTime: start}
			if read != nil {
				p.BytesRead = read.Load()
			}
			b.report(p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}

	b.logger.Info("source read",
		zap.String("source", source),
		zap.Int64("records", recordsRead),
		zap.Int64("skipped", skipped),
	)
	b.report(Progress{Phase: PhaseShard, RecordsRead: recordsRead, ShardsTotal: b.totalShards, StartTime: start})

	var (
		mu      sync.Mutex
		written int64
		created int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.workers, 1))
	for _, c := range collectors {
		if c == nil || c.Count() == 0 {
			continue
		}
		g.Go(func() error {
			n, err := b.writeShard(gctx, c)
			if err != nil {
				return fmt.Errorf("writing shard %d: %w", c.shardID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			written += int64(n)
			created++
			b.report(Progress{
				Phase:          PhaseShard,
				RecordsRead:    recordsRead,
				RecordsWritten: written,
				ShardsCreated:  created,
				ShardsTotal:    b.totalShards,
				StartTime:      start,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.report(Progress{
		Phase:          PhaseDone,
		RecordsRead:    recordsRead,
		RecordsSkipped: skipped,
		RecordsWritten: written,
		ShardsCreated:  created,
		ShardsTotal:    b.totalShards,
		StartTime:      start,
	})

	return &book.Manifest{
		Version:     1,
		TotalShards: b.totalShards,
		Strategy:    b.strategy.Name(),
		Compression: b.compression,
		RecordCount: written,
		ShardCount:  created,
		Skipped:     skipped,
		BuiltAt:     time.Now().UTC(),
		Source:      source,
	}, nil
}

// writeShard sorts one shard's lines by FEN and writes them.
func (b *Builder) writeShard(ctx context.Context, c *collector) (int, error) {
	records, err := c.All()
	if err != nil {
		return 0, err
	}
	book.SortLines(records)

	var buf bytes.Buffer
	for _, rec := range records {
		buf.Write(rec)
		buf.WriteByte('\n')
	}
	if err := b.dst.WriteShard(ctx, c.shardID, buf.Bytes()); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (b *Builder) makeTempDir() (string, error) {
	if b.tempDir != "" {
		if err := os.MkdirAll(b.tempDir, 0o755); err != nil {
			return "", fmt.Errorf("creating temp directory: %w", err)
		}
	}
	dir, err := os.MkdirTemp(b.tempDir, "kibitz-book-*")
	if err != nil {
		return "", fmt.Errorf("creating temp directory: %w", err)
	}
	return dir, nil
}

func (b *Builder) report(p Progress) {
	if b.progress != nil {
		b.progress(p)
	}
}
