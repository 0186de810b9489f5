package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/discochess/kibitz/internal/eval"
)

func failing(name string, src eval.Source, err error) Func {
	return Func{
		StrategyName:   name,
		StrategySource: src,
		Fn: func(context.Context, Request) (eval.Result, error) {
			return eval.Result{}, err
		},
	}
}

func succeeding(name string, src eval.Source, move string) Func {
	return Func{
		StrategyName:   name,
		StrategySource: src,
		Fn: func(_ context.Context, req Request) (eval.Result, error) {
			return eval.NewResult(req.Depth, eval.Centipawns(20), move, []string{move}, 0, eval.SourceUnknown), nil
		},
	}
}

func blocking(name string, src eval.Source) Func {
	return Func{
		StrategyName:   name,
		StrategySource: src,
		Fn: func(ctx context.Context, _ Request) (eval.Result, error) {
			<-ctx.Done()
			return eval.Result{}, ctx.Err()
		},
	}
}

func TestChain_FallsThrough(t *testing.T) {
	tests := []struct {
		name       string
		entries    []Entry
		skip       []eval.Source
		wantSource eval.Source
		wantFails  int
	}{
		{
			name: "first succeeds",
			entries: []Entry{
				{Strategy: succeeding("local", eval.SourceLocalEngine, "e2e4")},
				{Strategy: succeeding("book", eval.SourceOpeningBook, "d2d4")},
			},
			wantSource: eval.SourceLocalEngine,
		},
		{
			name: "local and cloud fail, book answers",
			entries: []Entry{
				{Strategy: failing("local", eval.SourceLocalEngine, eval.ErrStartup)},
				{Strategy: failing("cloud", eval.SourceCloud, fmt.Errorf("cloud: %w", eval.ErrNotFound))},
				{Strategy: succeeding("book", eval.SourceOpeningBook, "e2e4")},
				{Strategy: succeeding("heuristic", eval.SourceHeuristic, "a2a3")},
			},
			wantSource: eval.SourceOpeningBook,
			wantFails:  2,
		},
		{
			name: "book misses, heuristic answers",
			entries: []Entry{
				{Strategy: failing("book", eval.SourceOpeningBook, eval.ErrNotFound)},
				{Strategy: succeeding("heuristic", eval.SourceHeuristic, "a2a3")},
			},
			wantSource: eval.SourceHeuristic,
			wantFails:  1,
		},
		{
			name: "skip set",
			entries: []Entry{
				{Strategy: succeeding("local", eval.SourceLocalEngine, "e2e4")},
				{Strategy: succeeding("cloud", eval.SourceCloud, "e2e4")},
				{Strategy: succeeding("heuristic", eval.SourceHeuristic, "a2a3")},
			},
			skip:       []eval.Source{eval.SourceLocalEngine, eval.SourceCloud},
			wantSource: eval.SourceHeuristic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.entries)
			r, fails, err := c.Run(context.Background(), Request{FEN: "x", Depth: 10}, tt.skip...)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if r.Source != tt.wantSource {
				t.Errorf("Source = %v, want %v", r.Source, tt.wantSource)
			}
			if len(fails) != tt.wantFails {
				t.Errorf("got %d failures, want %d", len(fails), tt.wantFails)
			}
		})
	}
}

func TestChain_Exhausted(t *testing.T) {
	c := New([]Entry{
		{Strategy: failing("local", eval.SourceLocalEngine, eval.ErrQueueFull)},
		{Strategy: failing("cloud", eval.SourceCloud, eval.ErrRateLimited)},
	})

	_, fails, err := c.Run(context.Background(), Request{})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Run() error = %v, want ErrExhausted", err)
	}
	if len(fails) != 2 || fails[0].Source != eval.SourceLocalEngine || !errors.Is(fails[1].Err, eval.ErrRateLimited) {
		t.Errorf("failures = %+v", fails)
	}
}

func TestChain_StrategyTimeout(t *testing.T) {
	c := New([]Entry{
		{Strategy: blocking("cloud", eval.SourceCloud), Timeout: 10 * time.Millisecond},
		{Strategy: succeeding("book", eval.SourceOpeningBook, "e2e4")},
	})

	r, fails, err := c.Run(context.Background(), Request{Depth: 1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.Source != eval.SourceOpeningBook {
		t.Errorf("Source = %v, want opening-book", r.Source)
	}
	if len(fails) != 1 || !errors.Is(fails[0].Err, eval.ErrTimeout) {
		t.Errorf("failures = %+v, want one ErrTimeout", fails)
	}
}

func TestChain_CancelAborts(t *testing.T) {
	called := false
	c := New([]Entry{
		{Strategy: blocking("local", eval.SourceLocalEngine), Timeout: time.Minute},
		{Strategy: Func{
			StrategyName:   "heuristic",
			StrategySource: eval.SourceHeuristic,
			Fn: func(context.Context, Request) (eval.Result, error) {
				called = true
				return eval.Result{}, nil
			},
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, _, err := c.Run(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("chain advanced after cancellation")
	}
}

func TestChain_Sources(t *testing.T) {
	c := New([]Entry{
		{Strategy: succeeding("a", eval.SourceCloud, "")},
		{Strategy: succeeding("b", eval.SourceHeuristic, "")},
	})
	got := c.Sources()
	if len(got) != 2 || got[0] != eval.SourceCloud || got[1] != eval.SourceHeuristic {
		t.Errorf("Sources() = %v", got)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", eval.ErrTimeout), "timeout"},
		{context.DeadlineExceeded, "timeout"},
		{eval.ErrNotFound, "not_found"},
		{eval.ErrQueueFull, "queue_full"},
		{fmt.Errorf("%w: %w", eval.ErrProtocol, errors.New("exit")), "protocol"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
