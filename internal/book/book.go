// Package book looks positions up in an opening book: a sharded,
// sorted JSONL evaluation database layered over a small built-in table
// of common openings.
//
// Example usage:
//
//	opt, err := book.WithDataDir("/path/to/book")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b, err := book.New(opt)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	res, err := b.Lookup(ctx, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
package book

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/fen"
	"github.com/discochess/kibitz/internal/shard"
	"github.com/discochess/kibitz/internal/stats"
	"github.com/discochess/kibitz/internal/store"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("book: closed")

// Book resolves positions to stored evaluations. It is safe for
// concurrent use.
type Book struct {
	layers []layer
	stats  stats.Collector
	logger *zap.Logger
	closed atomic.Bool
}

type layer struct {
	name        string
	store       store.Store
	strategy    shard.Strategy
	totalShards int
}

// New creates a Book. With no options it serves only the built-in
// positions.
func New(opts ...Option) (*Book, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}

	b := &Book{
		stats:  o.stats,
		logger: o.logger,
	}
	if o.store != nil {
		if o.totalShards <= 0 {
			return nil, fmt.Errorf("book: invalid total shards %d", o.totalShards)
		}
		b.layers = append(b.layers, layer{
			name:        "store",
			store:       o.store,
			strategy:    o.shardStrategy,
			totalShards: o.totalShards,
		})
	}
	if o.builtin {
		b.layers = append(b.layers, builtinLayer())
	}
	if len(b.layers) == 0 {
		return nil, errors.New("book: no store and built-in positions disabled")
	}

	b.logger.Debug("book initialized",
		zap.Int("layers", len(b.layers)),
		zap.Int("totalShards", o.totalShards),
		zap.String("shardStrategy", o.shardStrategy.Name()),
	)
	return b, nil
}

// Lookup returns the stored evaluation of a position, tagged with
// eval.SourceOpeningBook. Positions that are not in the book report an
// error wrapping eval.ErrNotFound.
func (b *Book) Lookup(ctx context.Context, fenStr string) (eval.Result, error) {
	rec, err := b.Record(ctx, fenStr)
	if err != nil {
		return eval.Result{}, err
	}
	return rec.Result()
}

// Record returns the raw stored record of a position.
func (b *Book) Record(ctx context.Context, fenStr string) (*Record, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	key, err := fen.KeyOf(fenStr)
	if err != nil {
		return nil, err
	}

	b.stats.IncCounter(stats.MetricBookLookups, 1)
	for _, l := range b.layers {
		rec, err := b.lookupLayer(ctx, l, string(key))
		if err == nil {
			b.stats.IncCounter(stats.MetricBookHits, 1, stats.L("layer", l.name))
			return rec, nil
		}
		if !errors.Is(err, eval.ErrNotFound) {
			// A broken layer must not hide the ones below it.
			b.logger.Warn("book layer failed", zap.String("layer", l.name), zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	b.stats.IncCounter(stats.MetricBookMisses, 1)
	return nil, fmt.Errorf("%w: %s not in book", eval.ErrNotFound, key)
}

func (b *Book) lookupLayer(ctx context.Context, l layer, key string) (*Record, error) {
	shardID := l.strategy.ShardID(key, l.totalShards)

	b.stats.IncCounter(stats.MetricShardFetches, 1, stats.L("layer", l.name))
	data, err := l.store.ReadShard(ctx, shardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, eval.ErrNotFound
		}
		return nil, fmt.Errorf("fetching shard %d: %w", shardID, err)
	}
	return Search(data, key)
}

// Close releases the stores behind the book. Later calls do nothing.
func (b *Book) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, l := range b.layers {
		if err := l.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", l.name, err))
		}
	}
	return errors.Join(errs...)
}
