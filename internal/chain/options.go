package chain

import (
	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/stats"
)

// Option configures a Chain.
type Option interface {
	apply(*options)
}

type options struct {
	stats  stats.Collector
	logger *zap.Logger
}

func defaultOptions() options {
	return options{
		stats:  stats.NewNoop(),
		logger: zap.NewNop(),
	}
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

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
