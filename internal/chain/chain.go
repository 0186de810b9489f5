// Package chain runs evaluation strategies in priority order until one
// produces a result.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/stats"
)

// ErrExhausted is returned when every strategy failed or was skipped.
var ErrExhausted = errors.New("chain: no strategy produced a result")

// Request is one analysis request as seen by a strategy.
type Request struct {
	SessionID uint64
	FEN       string
	Depth     int
	CallerID  string
	// Progress, when set, receives intermediate results. Strategies that
	// cannot report progress ignore it.
	Progress func(eval.Result)
}

// Strategy is one evaluation source.
type Strategy interface {
	Name() string
	Source() eval.Source
	Attempt(ctx context.Context, req Request) (eval.Result, error)
}

// Entry is a strategy with its time budget. A zero Timeout means the
// strategy runs under the caller's context only.
type Entry struct {
	Strategy Strategy
	Timeout  time.Duration
}

// Failure records why one strategy did not produce a result.
type Failure struct {
	Source eval.Source
	Err    error
}

// Chain is an ordered list of strategies. It is immutable after New and
// safe for concurrent use.
type Chain struct {
	entries   []Entry
	collector stats.Collector
	logger    *zap.Logger
}

// New builds a chain that tries entries in order.
func New(entries []Entry, opts ...Option) *Chain {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &Chain{
		entries:   append([]Entry(nil), entries...),
		collector: cfg.stats,
		logger:    cfg.logger.Named("chain"),
	}
}

// Sources lists the sources of the chain's strategies in order.
func (c *Chain) Sources() []eval.Source {
	out := make([]eval.Source, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Strategy.Source()
	}
	return out
}

// Run tries each strategy whose source is not in skip. The first success
// is returned stamped with its strategy's source. A done ctx aborts the
// chain immediately with ctx.Err(). If all strategies fail, the error
// wraps ErrExhausted and the failures are returned for inspection.
func (c *Chain) Run(ctx context.Context, req Request, skip ...eval.Source) (eval.Result, []Failure, error) {
	var failures []Failure

	for _, e := range c.entries {
		if err := ctx.Err(); err != nil {
			return eval.Result{}, failures, err
		}

		src := e.Strategy.Source()
		if skipped(src, skip) {
			continue
		}

		r, err := c.attempt(ctx, e, req)
		if err == nil {
			return r.WithSource(src), failures, nil
		}

		// The session was cancelled; a strategy timeout is not.
		if ctx.Err() != nil {
			return eval.Result{}, failures, ctx.Err()
		}

		failures = append(failures, Failure{Source: src, Err: err})
		c.collector.IncCounter(stats.MetricStrategyFailures, 1,
			stats.L("source", src.String()),
			stats.L("reason", Reason(err)),
		)
		c.logger.Debug("strategy failed",
			zap.String("strategy", e.Strategy.Name()),
			zap.Uint64("session", req.SessionID),
			zap.Error(err),
		)
	}

	return eval.Result{}, failures, fmt.Errorf("%w (%d failed)", ErrExhausted, len(failures))
}

func (c *Chain) attempt(ctx context.Context, e Entry, req Request) (eval.Result, error) {
	if e.Timeout <= 0 {
		return e.Strategy.Attempt(ctx, req)
	}

	actx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	r, err := e.Strategy.Attempt(actx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return r, fmt.Errorf("%w: %s after %s", eval.ErrTimeout, e.Strategy.Name(), e.Timeout)
	}
	return r, err
}

// Reason classifies err into a short metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, eval.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, eval.ErrNotFound):
		return "not_found"
	case errors.Is(err, eval.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, eval.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, eval.ErrStartup):
		return "startup"
	case errors.Is(err, eval.ErrProtocol):
		return "protocol"
	case errors.Is(err, eval.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

func skipped(src eval.Source, skip []eval.Source) bool {
	for _, s := range skip {
		if s == src {
			return true
		}
	}
	return false
}

// Func adapts a function to a Strategy.
type Func struct {
	StrategyName   string
	StrategySource eval.Source
	Fn             func(ctx context.Context, req Request) (eval.Result, error)
}

// Compile-time check that Func implements Strategy.
var _ Strategy = Func{}

func (f Func) Name() string        { return f.StrategyName }
func (f Func) Source() eval.Source { return f.StrategySource }

func (f Func) Attempt(ctx context.Context, req Request) (eval.Result, error) {
	return f.Fn(ctx, req)
}
