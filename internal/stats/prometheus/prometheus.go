// Package prometheus provides a Prometheus-based stats collector.
package prometheus

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/discochess/kibitz/internal/stats"
)

// Collector implements stats.Collector using Prometheus metric vectors.
// Label names are fixed by the first observation of each metric name.
type Collector struct {
	registry prometheus.Registerer
	buckets  []float64

	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// Compile-time check that Collector implements stats.Collector.
var _ stats.Collector = (*Collector)(nil)

// DurationBuckets are the histogram buckets, in seconds, used for analysis
// latencies: sub-millisecond cache hits up to multi-second engine searches.
var DurationBuckets = []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10}

// New creates a new Prometheus collector.
// If registry is nil, prometheus.DefaultRegisterer is used.
func New(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Collector{
		registry:   registry,
		buckets:    DurationBuckets,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// IncCounter increments a counter metric.
func (c *Collector) IncCounter(name string, delta int64, labels ...stats.Label) {
	vec := c.getOrCreateCounter(name, labels)
	if counter, err := vec.GetMetricWith(promLabels(labels)); err == nil {
		counter.Add(float64(delta))
	}
}

// SetGauge sets a gauge metric.
func (c *Collector) SetGauge(name string, value int64, labels ...stats.Label) {
	vec := c.getOrCreateGauge(name, labels)
	if gauge, err := vec.GetMetricWith(promLabels(labels)); err == nil {
		gauge.Set(float64(value))
	}
}

// ObserveDuration records a duration, in seconds, in a histogram.
func (c *Collector) ObserveDuration(name string, d time.Duration, labels ...stats.Label) {
	vec := c.getOrCreateHistogram(name, labels)
	if obs, err := vec.GetMetricWith(promLabels(labels)); err == nil {
		obs.Observe(d.Seconds())
	}
}

func (c *Collector) getOrCreateCounter(name string, labels []stats.Label) *prometheus.CounterVec {
	c.mu.RLock()
	vec, ok := c.counters[name]
	c.mu.RUnlock()
	if ok {
		return vec
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if vec, ok = c.counters[name]; ok {
		return vec
	}

	vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labelNames(labels))
	vec = register(c.registry, vec)
	c.counters[name] = vec
	return vec
}

func (c *Collector) getOrCreateGauge(name string, labels []stats.Label) *prometheus.GaugeVec {
	c.mu.RLock()
	vec, ok := c.gauges[name]
	c.mu.RUnlock()
	if ok {
		return vec
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if vec, ok = c.gauges[name]; ok {
		return vec
	}

	vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, labelNames(labels))
	vec = register(c.registry, vec)
	c.gauges[name] = vec
	return vec
}

func (c *Collector) getOrCreateHistogram(name string, labels []stats.Label) *prometheus.HistogramVec {
	c.mu.RLock()
	vec, ok := c.histograms[name]
	c.mu.RUnlock()
	if ok {
		return vec
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if vec, ok = c.histograms[name]; ok {
		return vec
	}

	vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    name,
		Buckets: c.buckets,
	}, labelNames(labels))
	vec = register(c.registry, vec)
	c.histograms[name] = vec
	return vec
}

// register adds vec to the registry. If an equivalent collector is already
// registered, the existing one is returned so two Collectors sharing a
// registry report into the same series.
func register[V prometheus.Collector](reg prometheus.Registerer, vec V) V {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(V); ok {
				return existing
			}
		}
		// Registration failed but the metric still works locally.
	}
	return vec
}

func labelNames(labels []stats.Label) []string {
	if len(labels) == 0 {
		return nil
	}
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}

func promLabels(labels []stats.Label) prometheus.Labels {
	pl := make(prometheus.Labels, len(labels))
	for _, l := range labels {
		pl[l.Name] = l.Value
	}
	return pl
}
