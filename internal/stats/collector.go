// Package stats provides a unified interface for collecting metrics.
package stats

import "time"

// Metric names used throughout the service.
const (
	// Service metrics.
	MetricRequests         = "kibitz_requests_total"
	MetricResults          = "kibitz_results_total"
	MetricSuperseded       = "kibitz_sessions_superseded_total"
	MetricActiveSessions   = "kibitz_active_sessions"
	MetricRateLimited      = "kibitz_rate_limited_total"
	MetricAnalysisDuration = "kibitz_analysis_duration_seconds"

	// Fallback chain metrics.
	MetricStrategyFailures = "kibitz_strategy_failures_total"

	// Engine metrics.
	MetricQueueDepth     = "kibitz_queue_depth"
	MetricQueueRejected  = "kibitz_queue_rejected_total"
	MetricEngineRestarts = "kibitz_engine_restarts_total"

	// Result cache metrics.
	MetricCacheHits   = "kibitz_cache_hits_total"
	MetricCacheMisses = "kibitz_cache_misses_total"
	MetricCacheSize   = "kibitz_cache_size"

	// Cloud metrics.
	MetricCloudRequests = "kibitz_cloud_requests_total"

	// Opening book metrics.
	MetricBookLookups      = "kibitz_book_lookups_total"
	MetricBookHits         = "kibitz_book_hits_total"
	MetricBookMisses       = "kibitz_book_misses_total"
	MetricShardFetches     = "kibitz_shard_fetches_total"
	MetricShardCacheHits   = "kibitz_shard_cache_hits_total"
	MetricShardCacheMisses = "kibitz_shard_cache_misses_total"
)

// Label is a metric dimension.
type Label struct {
	Name  string
	Value string
}

// L is shorthand for Label{Name: name, Value: value}.
func L(name, value string) Label {
	return Label{Name: name, Value: value}
}

// Collector defines the interface for collecting metrics.
//
// A metric name must always be used with the same label names in the same
// order.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64, labels ...Label)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64, labels ...Label)

	// ObserveDuration records a duration in a histogram metric.
	ObserveDuration(name string, d time.Duration, labels ...Label)
}
