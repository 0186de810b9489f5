// Package logger provides a zap-based stats collector that logs metrics.
package logger

import (
	"time"

	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/stats"
)

// Collector implements stats.Collector by logging metrics via zap at
// debug level.
type Collector struct {
	logger *zap.Logger
}

// Compile-time check that Collector implements stats.Collector.
var _ stats.Collector = (*Collector)(nil)

// New creates a new logger-based collector.
// If logger is nil, a no-op logger is used.
func New(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger}
}

// IncCounter logs a counter increment.
func (c *Collector) IncCounter(name string, delta int64, labels ...stats.Label) {
	c.logger.Debug("counter", fields(name, labels, zap.Int64("delta", delta))...)
}

// SetGauge logs a gauge value.
func (c *Collector) SetGauge(name string, value int64, labels ...stats.Label) {
	c.logger.Debug("gauge", fields(name, labels, zap.Int64("value", value))...)
}

// ObserveDuration logs a duration observation.
func (c *Collector) ObserveDuration(name string, d time.Duration, labels ...stats.Label) {
	c.logger.Debug("duration", fields(name, labels, zap.Duration("value", d))...)
}

func fields(name string, labels []stats.Label, value zap.Field) []zap.Field {
	fs := make([]zap.Field, 0, len(labels)+2)
	fs = append(fs, zap.String("metric", name), value)
	for _, l := range labels {
		fs = append(fs, zap.String(l.Name, l.Value))
	}
	return fs
}
