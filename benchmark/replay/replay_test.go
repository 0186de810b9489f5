package replay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/benchmark/pgn"
	"github.com/discochess/kibitz/benchmark/replay"
	"github.com/discochess/kibitz/internal/engine/enginetest"
)

func newService(t *testing.T) *kibitz.Service {
	t.Helper()
	fake := &enginetest.Engine{Search: enginetest.Progressive("e2e4")}
	svc, err := kibitz.New(kibitz.WithEngine(fake), kibitz.WithRateLimit(1000))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestRunner_ColdThenWarm(t *testing.T) {
	game, err := pgn.Parse("1. e4 e5 *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	games := []pgn.Game{game}

	svc := newService(t)
	r := replay.NewRunner(svc, replay.Config{Depth: 6, Concurrency: 2, Timeout: 5 * time.Second}, nil)
	ctx := context.Background()

	cold, err := r.Run(ctx, "cold", games)
	if err != nil {
		t.Fatalf("Run(cold) error = %v", err)
	}
	if len(cold.Samples) != 3 {
		t.Fatalf("len(cold.Samples) = %d, want 3", len(cold.Samples))
	}
	for i, s := range cold.Samples {
		if s.Err != nil {
			t.Fatalf("cold sample %d error = %v", i, s.Err)
		}
		if s.Ply != i {
			t.Errorf("cold sample %d Ply = %d", i, s.Ply)
		}
		if s.Result.Source != kibitz.SourceLocalEngine || s.Result.Depth != 6 {
			t.Errorf("cold sample %d = %s depth %d, want local-engine depth 6", i, s.Result.Source, s.Result.Depth)
		}
		if s.Updates == 0 {
			t.Errorf("cold sample %d had no updates", i)
		}
	}

	warm, err := r.Run(ctx, "warm", games)
	if err != nil {
		t.Fatalf("Run(warm) error = %v", err)
	}
	sources := warm.Sources()
	if len(sources) != 1 || sources[0].Label != "cache" || sources[0].N != 3 {
		t.Errorf("warm Sources() = %+v, want 3 cache hits", sources)
	}
	if warm.Errors() != 0 {
		t.Errorf("warm Errors() = %d, want 0", warm.Errors())
	}
	if got := len(warm.Latencies()); got != 3 {
		t.Errorf("len(Latencies()) = %d, want 3", got)
	}
}

type failing struct{}

func (failing) Analyze(context.Context, string, int, string, ...kibitz.AnalyzeOption) (*kibitz.Session, error) {
	return nil, kibitz.ErrClosed
}

func TestRunner_RecordsFailures(t *testing.T) {
	game, err := pgn.Parse("1. d4 *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	pass, err := replay.NewRunner(failing{}, replay.Config{}, nil).Run(context.Background(), "p", []pgn.Game{game})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pass.Errors() != 2 {
		t.Errorf("Errors() = %d, want 2", pass.Errors())
	}
	if !errors.Is(pass.Samples[0].Err, kibitz.ErrClosed) {
		t.Errorf("Samples[0].Err = %v, want ErrClosed", pass.Samples[0].Err)
	}
	if len(pass.Latencies()) != 0 || len(pass.Sources()) != 0 {
		t.Error("failed samples should not count as answered")
	}
}

func TestRunner_Cancelled(t *testing.T) {
	game, err := pgn.Parse("1. d4 d5 2. c4 *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := replay.NewRunner(failing{}, replay.Config{}, nil).Run(ctx, "p", []pgn.Game{game}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestPass_Tallies(t *testing.T) {
	pass := &replay.Pass{
		Elapsed: 2 * time.Second,
		Samples: []replay.Sample{
			{Latency: 10 * time.Millisecond, Result: kibitz.Result{Source: kibitz.SourceOpeningBook}},
			{Latency: 20 * time.Millisecond, Result: kibitz.Result{Source: kibitz.SourceHeuristic, Degraded: kibitz.DegradedRateLimited}},
			{Latency: 30 * time.Millisecond, Result: kibitz.Result{Source: kibitz.SourceHeuristic}},
			{Err: errors.New("boom")},
		},
	}

	src := pass.Sources()
	if len(src) != 2 || src[0].Label != "heuristic" || src[0].N != 2 {
		t.Fatalf("Sources() = %+v", src)
	}
	if src[1].Pct < 33 || src[1].Pct > 34 {
		t.Errorf("opening-book Pct = %v, want one third", src[1].Pct)
	}

	deg := pass.Degradations()
	if len(deg) != 1 || deg[0].Label != "rate-limited" || deg[0].N != 1 {
		t.Errorf("Degradations() = %+v", deg)
	}
	if got := pass.Throughput(); got != 1.5 {
		t.Errorf("Throughput() = %v, want 1.5", got)
	}
	lat := pass.Latencies()
	if len(lat) != 3 || lat[2] != 30 {
		t.Errorf("Latencies() = %v", lat)
	}
}
