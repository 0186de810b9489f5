// Package cache holds finished engine evaluations keyed by position and
// depth.
//
// Entries are evicted oldest-inserted first when the cache is full and
// expire after a fixed time to live. Reads never refresh an entry.
package cache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/fen"
	"github.com/discochess/kibitz/internal/stats"
)

type key struct {
	pos   fen.Key
	depth int
}

type entry struct {
	result     eval.Result
	insertedAt time.Time
}

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

// Cache is a bounded, expiring result cache. It is safe for concurrent
// use; no lock is held across calls into other packages.
type Cache struct {
	ttl       time.Duration
	now       func() time.Time
	collector stats.Collector
	logger    *zap.Logger

	mu     sync.Mutex
	fifo   *simplelru.LRU[key, entry]
	depths map[fen.Key][]int // sorted ascending
	hits   int64
	misses int64
}

// New creates a cache.
func New(opts ...Option) (*Cache, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if cfg.capacity <= 0 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d", cfg.capacity)
	}

	c := &Cache{
		ttl:       cfg.ttl,
		now:       cfg.now,
		collector: cfg.stats,
		logger:    cfg.logger.Named("cache"),
		depths:    make(map[fen.Key][]int),
	}
	fifo, err := simplelru.NewLRU[key, entry](cfg.capacity, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.fifo = fifo
	return c, nil
}

// Get returns a cached result for fenStr searched to at least depth.
// A result at exactly depth is preferred; otherwise the deepest one.
// Expired entries are treated as absent.
func (c *Cache) Get(fenStr string, depth int) (eval.Result, bool) {
	pos, err := fen.KeyOf(fenStr)
	if err != nil {
		return eval.Result{}, false
	}

	r, ok := c.lookup(pos, depth)
	if ok {
		c.collector.IncCounter(stats.MetricCacheHits, 1)
	} else {
		c.collector.IncCounter(stats.MetricCacheMisses, 1)
	}
	return r, ok
}

func (c *Cache) lookup(pos fen.Key, depth int) (eval.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	candidates := c.depths[pos]

	// Exact depth first, then deepest first.
	order := make([]int, 0, len(candidates))
	if i := sort.SearchInts(candidates, depth); i < len(candidates) && candidates[i] == depth {
		order = append(order, depth)
	}
	for i := len(candidates) - 1; i >= 0 && candidates[i] >= depth; i-- {
		if candidates[i] != depth {
			order = append(order, candidates[i])
		}
	}

	for _, d := range order {
		k := key{pos: pos, depth: d}
		e, ok := c.fifo.Peek(k)
		if !ok {
			continue
		}
		if c.expired(e, now) {
			c.fifo.Remove(k)
			continue
		}
		c.hits++
		return e.result.Clone(), true
	}

	c.misses++
	return eval.Result{}, false
}

// Put stores r for fenStr at depth, replacing any entry at the same depth.
func (c *Cache) Put(fenStr string, depth int, r eval.Result) error {
	pos, err := fen.KeyOf(fenStr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	k := key{pos: pos, depth: depth}
	// Remove first so a replaced entry counts as newly inserted.
	c.fifo.Remove(k)
	c.fifo.Add(k, entry{result: r.Clone(), insertedAt: c.now()})
	c.index(k)
	size := c.fifo.Len()
	c.mu.Unlock()

	c.collector.SetGauge(stats.MetricCacheSize, int64(size))
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	now := c.now()
	removed := 0
	// Keys are ordered oldest first, so the scan can stop at the first
	// live entry.
	for _, k := range c.fifo.Keys() {
		e, ok := c.fifo.Peek(k)
		if !ok {
			continue
		}
		if !c.expired(e, now) {
			break
		}
		c.fifo.Remove(k)
		removed++
	}
	size := c.fifo.Len()
	c.mu.Unlock()

	c.collector.SetGauge(stats.MetricCacheSize, int64(size))
	if removed > 0 {
		c.logger.Debug("swept expired entries", zap.Int("removed", removed), zap.Int("size", size))
	}
	return removed
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fifo.Len()
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.fifo.Purge()
	c.mu.Unlock()
	c.collector.SetGauge(stats.MetricCacheSize, 0)
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.fifo.Len()}
}

func (c *Cache) expired(e entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.insertedAt) >= c.ttl
}

// index records k.depth for k.pos. Called with mu held.
func (c *Cache) index(k key) {
	ds := c.depths[k.pos]
	i := sort.SearchInts(ds, k.depth)
	if i < len(ds) && ds[i] == k.depth {
		return
	}
	ds = append(ds, 0)
	copy(ds[i+1:], ds[i:])
	ds[i] = k.depth
	c.depths[k.pos] = ds
}

// onEvict keeps the depth index in step with the FIFO. simplelru invokes
// it synchronously from Add, Remove and Purge, so mu is already held.
func (c *Cache) onEvict(k key, _ entry) {
	ds := c.depths[k.pos]
	i := sort.SearchInts(ds, k.depth)
	if i >= len(ds) || ds[i] != k.depth {
		return
	}
	ds = append(ds[:i], ds[i+1:]...)
	if len(ds) == 0 {
		delete(c.depths, k.pos)
		return
	}
	c.depths[k.pos] = ds
}
