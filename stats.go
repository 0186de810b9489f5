package kibitz

import "github.com/discochess/kibitz/internal/engine"

// Stats is a point-in-time snapshot of the service.
type Stats struct {
	Requests        int64            `json:"requests"`
	ActiveSessions  int              `json:"active_sessions"`
	Results         map[string]int64 `json:"results"`
	CacheSize       int              `json:"cache_size"`
	CacheHits       int64            `json:"cache_hits"`
	CacheMisses     int64            `json:"cache_misses"`
	CacheHitRate    float64          `json:"cache_hit_rate"`
	QueueDepth      int64            `json:"queue_depth"`
	QueueLength     int              `json:"queue_length"`
	QueueRejected   int64            `json:"queue_rejected"`
	RateLimited     int64            `json:"rate_limited"`
	TrackedCallers  int              `json:"tracked_callers"`
	EngineEnabled   bool             `json:"engine_enabled"`
	EngineState     string           `json:"engine_state"`
	EngineRestarts  int64            `json:"engine_restarts"`
	FallbackSources []string         `json:"sources"`
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	cs := s.cache.Stats()
	st := Stats{
		Requests:        s.requests.Load(),
		Results:         make(map[string]int64),
		CacheSize:       cs.Size,
		CacheHits:       cs.Hits,
		CacheMisses:     cs.Misses,
		CacheHitRate:    cs.HitRate(),
		QueueLength:     s.opts.queueLength,
		QueueRejected:   s.queueFull.Load(),
		RateLimited:     s.rateLimited.Load(),
		TrackedCallers:  s.limiter.Tracked(),
		EngineState:     "disabled",
		FallbackSources: sourceNames(s.chain.Sources()),
	}

	s.mu.Lock()
	st.ActiveSessions = len(s.current)
	for src, n := range s.results {
		st.Results[src.String()] = n
	}
	s.mu.Unlock()

	if s.worker != nil {
		st.EngineEnabled = true
		st.EngineState = s.worker.engineState().String()
		st.EngineRestarts = s.worker.restarts.Load()
		st.QueueDepth = s.worker.depth()
	}
	return st
}

// EngineState reports the local engine's lifecycle state, or
// engine.StateUninitialized when no engine is configured.
func (s *Service) EngineState() engine.State {
	if s.worker == nil {
		return engine.StateUninitialized
	}
	return s.worker.engineState()
}
