package stats

import "time"

// Noop is a no-op collector that discards all metrics.
// Useful for testing or when metrics are not needed.
type Noop struct{}

// Compile-time check that Noop implements Collector.
var _ Collector = (*Noop)(nil)

// NewNoop creates a new no-op collector.
func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) IncCounter(string, int64, ...Label)             {}
func (n *Noop) SetGauge(string, int64, ...Label)               {}
func (n *Noop) ObserveDuration(string, time.Duration, ...Label) {}
