// Package ratelimit enforces a per-caller request budget.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter grants each caller perMinute requests per minute, allowing the
// whole budget as a burst. It is safe for concurrent use.
type Limiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	callers map[string]*caller
}

// New creates a Limiter. perMinute <= 0 disables limiting.
func New(perMinute int) *Limiter {
	return NewWithClock(perMinute, time.Now)
}

// NewWithClock is New with a replaceable clock, for tests.
func NewWithClock(perMinute int, now func() time.Time) *Limiter {
	l := &Limiter{
		limit:   rate.Inf,
		now:     now,
		callers: make(map[string]*caller),
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

// Allow consumes one request from callerID's budget, reporting whether
// the request is within it.
func (l *Limiter) Allow(callerID string) bool {
	if l.limit == rate.Inf {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.callers[callerID]
	if !ok {
		c = &caller{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.callers[callerID] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Tracked returns how many callers currently have state.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

// Sweep forgets callers idle for at least idle. A forgotten caller starts
// again with a full budget, so idle should be at least a minute.
func (l *Limiter) Sweep(idle time.Duration) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, c := range l.callers {
		if now.Sub(c.lastSeen) >= idle {
			delete(l.callers, id)
			removed++
		}
	}
	return removed
}
