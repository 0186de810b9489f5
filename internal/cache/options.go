package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/stats"
)

// Option configures a Cache.
type Option interface {
	apply(*options)
}

type options struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
	stats    stats.Collector
	logger   *zap.Logger
}

func defaultOptions() options {
	return options{
		capacity: 10000,
		ttl:      30 * time.Minute,
		now:      time.Now,
		stats:    stats.NewNoop(),
		logger:   zap.NewNop(),
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithCapacity sets the maximum number of entries. Default is 10000.
func WithCapacity(n int) Option {
	return optionFunc(func(o *options) {
		o.capacity = n
	})
}

// WithTTL sets how long an entry stays valid. Zero disables expiry.
// Default is 30 minutes.
func WithTTL(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.ttl = d
	})
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		o.now = now
	})
}

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}
