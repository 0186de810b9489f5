package kibitz

import (
	"context"
	"fmt"
	"sync"

	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/chain"
	"github.com/discochess/kibitz/internal/cloud"
	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/heuristic"
	"github.com/discochess/kibitz/internal/uci"
)

// localStrategy runs the search on the engine worker and forwards exact
// principal-variation lines as progress.
type localStrategy struct {
	worker *worker
}

var _ chain.Strategy = (*localStrategy)(nil)

func (l *localStrategy) Name() string        { return "local-engine" }
func (l *localStrategy) Source() eval.Source { return eval.SourceLocalEngine }

// Attempt completes from the deepest progress already reported when the
// search fails or runs out of time after producing some.
func (l *localStrategy) Attempt(ctx context.Context, req chain.Request) (eval.Result, error) {
	slot := admissionFrom(ctx)
	if slot == nil {
		var ok bool
		if slot, ok = l.worker.admit(); !ok {
			return eval.Result{}, eval.ErrQueueFull
		}
	}
	defer slot.Release()

	var (
		mu   sync.Mutex
		best *eval.Result
	)
	onInfo := func(info uci.Info) {
		if info.Bound != uci.Exact {
			return
		}
		r := infoResult(info, "")
		mu.Lock()
		if best == nil || r.Depth >= best.Depth {
			best = &r
		}
		mu.Unlock()
		if req.Progress != nil {
			req.Progress(r)
		}
	}
	deepest := func() *eval.Result {
		mu.Lock()
		defer mu.Unlock()
		return best
	}

	out, err := l.worker.submit(ctx, slot, req.SessionID, req.FEN, req.Depth, onInfo)
	if err != nil {
		if r := deepest(); r != nil {
			return *r, nil
		}
		return eval.Result{}, err
	}

	r := deepest()
	switch {
	case out.Last != nil && (r == nil || out.Last.Depth >= r.Depth):
		return infoResult(*out.Last, out.BestMove), nil
	case r != nil:
		return *r, nil
	default:
		// bestmove with no preceding info.
		return eval.NewResult(0, eval.Centipawns(0), out.BestMove, nil, 0, eval.SourceLocalEngine), nil
	}
}

func infoResult(info uci.Info, bestMove string) eval.Result {
	return eval.NewResult(info.Depth, info.Score, bestMove, info.PV, info.Nodes, eval.SourceLocalEngine)
}

type cloudStrategy struct {
	client *cloud.Client
}

var _ chain.Strategy = (*cloudStrategy)(nil)

func (c *cloudStrategy) Name() string        { return "cloud" }
func (c *cloudStrategy) Source() eval.Source { return eval.SourceCloud }

func (c *cloudStrategy) Attempt(ctx context.Context, req chain.Request) (eval.Result, error) {
	return c.client.Evaluate(ctx, req.FEN)
}

type bookStrategy struct {
	book *book.Book
}

var _ chain.Strategy = (*bookStrategy)(nil)

func (b *bookStrategy) Name() string        { return "opening-book" }
func (b *bookStrategy) Source() eval.Source { return eval.SourceOpeningBook }

func (b *bookStrategy) Attempt(ctx context.Context, req chain.Request) (eval.Result, error) {
	r, err := b.book.Lookup(ctx, req.FEN)
	if err != nil {
		return eval.Result{}, fmt.Errorf("opening book: %w", err)
	}
	return r, nil
}

// heuristicStrategy never fails.
func heuristicStrategy() chain.Strategy {
	return chain.Func{
		StrategyName:   "heuristic",
		StrategySource: eval.SourceHeuristic,
		Fn: func(_ context.Context, req chain.Request) (eval.Result, error) {
			return heuristic.Evaluate(req.FEN), nil
		},
	}
}
