// Package cachedstore keeps recently read shards in memory in front of
// a slower store.
package cachedstore

import (
	"context"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/discochess/kibitz/internal/stats"
	"github.com/discochess/kibitz/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// DefaultCapacity is the number of decompressed shards kept by default.
const DefaultCapacity = 64

// Stats contains cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Store wraps another Store with an LRU cache. Concurrent misses for the
// same shard share one underlying read.
type Store struct {
	underlying store.Store
	cache      *lru.Cache[int, []byte]
	group      singleflight.Group
	stats      stats.Collector

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithStats records hits and misses to c.
func WithStats(c stats.Collector) Option {
	return func(s *Store) {
		if c != nil {
			s.stats = c
		}
	}
}

// New creates a cached store holding at most capacity shards.
func New(underlying store.Store, capacity int, opts ...Option) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[int, []byte](capacity)
	if err != nil {
		return nil, err
	}

	s := &Store{
		underlying: underlying,
		cache:      c,
		stats:      stats.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ReadShard reads a shard, checking the cache first.
func (s *Store) ReadShard(ctx context.Context, shardID int) ([]byte, error) {
	if data, ok := s.cache.Get(shardID); ok {
		s.hits.Add(1)
		s.stats.IncCounter(stats.MetricShardCacheHits, 1)
		return data, nil
	}
	s.misses.Add(1)
	s.stats.IncCounter(stats.MetricShardCacheMisses, 1)

	v, err, _ := s.group.Do(strconv.Itoa(shardID), func() (any, error) {
		data, err := s.underlying.ReadShard(ctx, shardID)
		if err != nil {
			return nil, err
		}
		s.cache.Add(shardID, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Close closes the underlying store.
func (s *Store) Close() error {
	s.cache.Purge()
	return s.underlying.Close()
}

// Stats returns cache statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Size:   s.cache.Len(),
	}
}
