package cloud

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/stats"
)

// Defaults for a Client.
const (
	DefaultTimeout        = 3 * time.Second
	DefaultMaxConcurrent  = 5
	DefaultAcquireTimeout = 2 * time.Second
)

// Option configures a Client.
type Option interface {
	apply(*options)
}

type options struct {
	baseURL        string
	httpClient     *http.Client
	timeout        time.Duration
	maxConcurrent  int
	acquireTimeout time.Duration
	userAgent      string
	stats          stats.Collector
	logger         *zap.Logger
}

func defaultOptions() options {
	return options{
		baseURL:        DefaultBaseURL,
		httpClient:     http.DefaultClient,
		timeout:        DefaultTimeout,
		maxConcurrent:  DefaultMaxConcurrent,
		acquireTimeout: DefaultAcquireTimeout,
		userAgent:      "kibitz",
		stats:          stats.NewNoop(),
		logger:         zap.NewNop(),
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithBaseURL sets the evaluation endpoint.
func WithBaseURL(u string) Option {
	return optionFunc(func(o *options) {
		o.baseURL = u
	})
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return optionFunc(func(o *options) {
		o.httpClient = c
	})
}

// WithTimeout bounds each HTTP request. Default is 3s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.timeout = d
	})
}

// WithMaxConcurrent bounds in-flight HTTP requests. Default is 5.
func WithMaxConcurrent(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.maxConcurrent = n
		}
	})
}

// WithAcquireTimeout bounds how long a request waits for a free slot.
// Default is 2s.
func WithAcquireTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.acquireTimeout = d
	})
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return optionFunc(func(o *options) {
		o.userAgent = ua
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
