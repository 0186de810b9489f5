package kibitz

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/discochess/kibitz/internal/eval"
)

// updateBuffer is the capacity of a session's update channel. One slot is
// kept free for the final update.
const updateBuffer = 32

// State is the lifecycle state of a session.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateCancelled
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further updates will be delivered.
func (s State) Terminal() bool {
	return s >= StateCancelled
}

// Update is one result delivered to a session's caller.
type Update struct {
	Result    Result `json:"result"`
	SessionID uint64 `json:"session_id"`
	Final     bool   `json:"final"`
}

// Session is one analysis request. Its updates arrive with
// non-decreasing depth; the last one is marked Final and carries the
// deepest result. A superseded or cancelled session closes its channel
// without a final update.
type Session struct {
	id          uint64
	callerID    string
	rateKey     string
	fen         string
	depth       int
	requestedAt time.Time
	cancel      context.CancelFunc

	state   atomic.Int32
	updates chan Update
	done    chan struct{}

	// Guarded by the service mutex.
	lastDepth int
	bestKnown *eval.Result
	final     eval.Result
	err       error
}

func newSession(id uint64, callerID, fenStr string, depth int, cancel context.CancelFunc) *Session {
	return &Session{
		id:          id,
		callerID:    callerID,
		fen:         fenStr,
		depth:       depth,
		requestedAt: time.Now(),
		cancel:      cancel,
		updates:     make(chan Update, updateBuffer),
		done:        make(chan struct{}),
	}
}

// ID returns the session ID. IDs increase monotonically per service.
func (s *Session) ID() uint64 { return s.id }

// CallerID returns the caller the session belongs to.
func (s *Session) CallerID() string { return s.callerID }

// FEN returns the analyzed position.
func (s *Session) FEN() string { return s.fen }

// Depth returns the target depth after clamping.
func (s *Session) Depth() int { return s.depth }

// RequestedAt returns when Analyze accepted the request.
func (s *Session) RequestedAt() time.Time { return s.requestedAt }

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Updates returns the channel of results. It is closed once the session
// reaches a terminal state.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its final result.
// A cancelled or superseded session reports ErrCancelled.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
	}

	switch s.State() {
	case StateCompleted:
		return s.final.Clone(), nil
	case StateFailed:
		return Result{}, s.err
	default:
		return Result{}, ErrCancelled
	}
}

func (s *Session) start() bool {
	return s.state.CompareAndSwap(int32(StatePending), int32(StateRunning))
}

// The methods below are called with the service mutex held.

// push delivers a progressive result unless it would lower the depth.
// Results that find the channel full are dropped.
func (s *Session) push(r eval.Result) bool {
	if s.State().Terminal() || r.Depth < s.lastDepth {
		return false
	}
	s.lastDepth = r.Depth
	s.bestKnown = &r
	if len(s.updates) >= cap(s.updates)-1 {
		return false
	}
	s.updates <- Update{Result: r, SessionID: s.id}
	return true
}

// complete delivers the final result, which is never shallower than a
// result already delivered.
func (s *Session) complete(r eval.Result) eval.Result {
	if s.State().Terminal() {
		return r
	}
	if s.bestKnown != nil && r.Depth < s.lastDepth {
		r = s.bestKnown.Clone()
	}
	s.final = r
	s.updates <- Update{Result: r.Clone(), SessionID: s.id, Final: true}
	s.end(StateCompleted)
	return r
}

func (s *Session) fail(err error) {
	if s.State().Terminal() {
		return
	}
	s.err = err
	s.end(StateFailed)
}

func (s *Session) abort() {
	if s.State().Terminal() {
		return
	}
	s.end(StateCancelled)
}

func (s *Session) end(st State) {
	s.state.Store(int32(st))
	close(s.updates)
	close(s.done)
	s.cancel()
}
