package kibitz

import (
	"time"

	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/cloud"
	"github.com/discochess/kibitz/internal/engine"
	"github.com/discochess/kibitz/internal/stats"
)

// Defaults for a Service.
const (
	DefaultQueueLength     = 20
	DefaultRatePerMinute   = 10
	DefaultMaxDepth        = 60
	DefaultLocalTimeout    = 5 * time.Second
	DefaultCloudTimeout    = 3 * time.Second
	DefaultCacheCapacity   = 10000
	DefaultCacheTTL        = 30 * time.Minute
	DefaultSweepInterval   = 5 * time.Minute
	DefaultRestartAttempts = 3
	DefaultRestartBackoff  = 100 * time.Millisecond
)

// Option configures a Service.
type Option interface {
	apply(*options)
}

// options holds the service configuration.
type options struct {
	transport       engine.Transport
	engineOpts      []engine.Option
	cloud           *cloud.Client
	book            *book.Book
	queueLength     int
	ratePerMinute   int
	maxDepth        int
	localTimeout    time.Duration
	cloudTimeout    time.Duration
	cacheCapacity   int
	cacheTTL        time.Duration
	sweepInterval   time.Duration
	restartAttempts int
	restartBackoff  time.Duration
	stats           stats.Collector
	logger          *zap.Logger
}

func defaultOptions() options {
	return options{
		queueLength:     DefaultQueueLength,
		ratePerMinute:   DefaultRatePerMinute,
		maxDepth:        DefaultMaxDepth,
		localTimeout:    DefaultLocalTimeout,
		cloudTimeout:    DefaultCloudTimeout,
		cacheCapacity:   DefaultCacheCapacity,
		cacheTTL:        DefaultCacheTTL,
		sweepInterval:   DefaultSweepInterval,
		restartAttempts: DefaultRestartAttempts,
		restartBackoff:  DefaultRestartBackoff,
		stats:           stats.NewNoop(),
		logger:          zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithEngine enables the local engine, started through t.
// Without it the service answers from cloud, book and heuristic only.
func WithEngine(t engine.Transport, opts ...engine.Option) Option {
	return optionFunc(func(o *options) {
		o.transport = t
		o.engineOpts = opts
	})
}

// WithCloud enables cloud evaluation through c.
func WithCloud(c *cloud.Client) Option {
	return optionFunc(func(o *options) {
		o.cloud = c
	})
}

// WithBook sets the opening book. The caller keeps ownership and closes
// it after the service. If not set, only the built-in opening positions
// are used.
func WithBook(b *book.Book) Option {
	return optionFunc(func(o *options) {
		o.book = b
	})
}

// WithQueueLength bounds the engine jobs queued or running at once.
// Requests beyond it are answered from the book or heuristic.
// Default is 20.
func WithQueueLength(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.queueLength = n
		}
	})
}

// WithRateLimit sets the per-caller budget for engine and cloud analysis
// in requests per minute. Zero or less disables the limit.
// Default is 10.
func WithRateLimit(perMinute int) Option {
	return optionFunc(func(o *options) {
		o.ratePerMinute = perMinute
	})
}

// WithMaxDepth sets the depth requests are clamped to. Default is 60.
func WithMaxDepth(d int) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.maxDepth = d
		}
	})
}

// WithLocalTimeout bounds queue wait plus search on the local engine.
// Default is 5s.
func WithLocalTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.localTimeout = d
	})
}

// WithCloudTimeout bounds a cloud evaluation. Default is 3s.
func WithCloudTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.cloudTimeout = d
	})
}

// WithCacheCapacity sets the number of cached results. Default is 10000.
func WithCacheCapacity(n int) Option {
	return optionFunc(func(o *options) {
		o.cacheCapacity = n
	})
}

// WithCacheTTL sets how long cached results stay valid. Default is 30m.
func WithCacheTTL(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.cacheTTL = d
	})
}

// WithSweepInterval sets how often expired cache entries and idle
// rate-limit state are dropped. Default is 5m.
func WithSweepInterval(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	})
}

// WithRestart sets how many times a failed engine start or crashed
// search is attempted, and the first backoff delay.
// Defaults are 3 attempts and 100ms.
func WithRestart(attempts int, initialBackoff time.Duration) Option {
	return optionFunc(func(o *options) {
		if attempts > 0 {
			o.restartAttempts = attempts
		}
		if initialBackoff > 0 {
			o.restartBackoff = initialBackoff
		}
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		if c != nil {
			o.stats = c
		}
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// AnalyzeOption adjusts a single Analyze call.
type AnalyzeOption func(*analyzeOptions)

type analyzeOptions struct {
	rateKey string
}

// WithRateKey charges the request to key's rate budget instead of the
// caller's. Requests that fan out under several caller IDs use it to
// share one budget.
func WithRateKey(key string) AnalyzeOption {
	return func(o *analyzeOptions) {
		if key != "" {
			o.rateKey = key
		}
	}
}
