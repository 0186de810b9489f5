package book

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/shard"
	"github.com/discochess/kibitz/internal/shard/materialshard"
	"github.com/discochess/kibitz/internal/stats"
	"github.com/discochess/kibitz/internal/store"
	"github.com/discochess/kibitz/internal/store/diskstore"
)

// DefaultTotalShards is the shard count of a book built with default
// settings (2^15).
const DefaultTotalShards = 32768

// Option configures a Book.
type Option interface {
	apply(*options)
}

type options struct {
	store         store.Store
	shardStrategy shard.Strategy
	totalShards   int
	builtin       bool
	stats         stats.Collector
	logger        *zap.Logger
}

func defaultOptions() options {
	return options{
		shardStrategy: materialshard.New(),
		totalShards:   DefaultTotalShards,
		builtin:       true,
		stats:         stats.NewNoop(),
		logger:        zap.NewNop(),
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithStore sets a sharded book to consult before the built-in positions.
func WithStore(s store.Store) Option {
	return optionFunc(func(o *options) {
		o.store = s
	})
}

// WithShardStrategy sets the sharding strategy of the store.
// If not set, material-based sharding is used.
func WithShardStrategy(s shard.Strategy) Option {
	return optionFunc(func(o *options) {
		o.shardStrategy = s
	})
}

// WithTotalShards sets the total number of shards of the store.
func WithTotalShards(n int) Option {
	return optionFunc(func(o *options) {
		o.totalShards = n
	})
}

// WithoutBuiltin disables the embedded opening positions.
func WithoutBuiltin() Option {
	return optionFunc(func(o *options) {
		o.builtin = false
	})
}

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		if c != nil {
			o.stats = c
		}
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithManifest applies the shard layout recorded in m.
func WithManifest(m *Manifest) (Option, error) {
	strategy, err := m.ShardStrategy()
	if err != nil {
		return nil, err
	}
	return optionFunc(func(o *options) {
		o.shardStrategy = strategy
		o.totalShards = m.TotalShards
	}), nil
}

// WithDataDir configures a book from a directory written by the builder:
// it reads manifest.json and serves shards from disk.
func WithDataDir(dir string) (Option, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	layout, err := WithManifest(m)
	if err != nil {
		return nil, err
	}
	c, err := m.Codec()
	if err != nil {
		return nil, err
	}
	st, err := diskstore.New(dir, c)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	return optionFunc(func(o *options) {
		layout.apply(o)
		o.store = st
	}), nil
}
