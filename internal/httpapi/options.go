package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Defaults for a Handler.
const (
	DefaultBatchLimit = 4
	DefaultMaxBatch   = 50
	DefaultDepth      = 20
	DefaultBatchDepth = 15
)

// Option configures a Handler.
type Option interface {
	apply(*options)
}

type options struct {
	gatherer   prometheus.Gatherer
	batchLimit int
	maxBatch   int
	logger     *zap.Logger
}

func defaultOptions() options {
	return options{
		batchLimit: DefaultBatchLimit,
		maxBatch:   DefaultMaxBatch,
		logger:     zap.NewNop(),
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithGatherer serves the gatherer's metrics on /metrics. Without it the
// endpoint is not registered.
func WithGatherer(g prometheus.Gatherer) Option {
	return optionFunc(func(o *options) {
		o.gatherer = g
	})
}

// WithBatchLimit bounds how many positions of one batch run at once.
func WithBatchLimit(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.batchLimit = n
		}
	})
}

// WithMaxBatch bounds the number of positions in one batch request.
func WithMaxBatch(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.maxBatch = n
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
