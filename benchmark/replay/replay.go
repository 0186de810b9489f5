// Package replay drives an analysis service with recorded games and records
// how each position was answered.
package replay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/benchmark/pgn"
)

// Defaults for Config fields left at zero.
const (
	DefaultDepth       = 12
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
)

// Analyzer is the part of kibitz.Service a replay needs.
type Analyzer interface {
	Analyze(ctx context.Context, fen string, depth int, callerID string, opts ...kibitz.AnalyzeOption) (*kibitz.Session, error)
}

var _ Analyzer = (*kibitz.Service)(nil)

// Config controls a replay.
type Config struct {
	// Depth requested for every position.
	Depth int
	// Concurrency is the number of games replayed at once. Each game is
	// its own caller and steps through its positions in order.
	Concurrency int
	// Timeout bounds the wait for one position's final result.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Depth <= 0 {
		c.Depth = DefaultDepth
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Sample is the outcome of one position.
type Sample struct {
	Game    int
	Ply     int
	Latency time.Duration
	Updates int
	Result  kibitz.Result
	Err     error
}

// Pass is one replay of a game collection.
type Pass struct {
	Name    string
	Games   int
	Samples []Sample
	Elapsed time.Duration
}

// Runner replays games against an Analyzer.
type Runner struct {
	svc    Analyzer
	cfg    Config
	logger *zap.Logger
}

// NewRunner creates a Runner. A nil logger discards output.
func NewRunner(svc Analyzer, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{svc: svc, cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the effective configuration.
func (r *Runner) Config() Config { return r.cfg }

// Run replays games once. Per-position failures are recorded in the
// samples; only cancellation of ctx aborts the pass.
func (r *Runner) Run(ctx context.Context, name string, games []pgn.Game) (*Pass, error) {
	pass := &Pass{Name: name, Games: len(games)}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	start := time.Now()
	for i, game := range games {
		g.Go(func() error {
			samples, err := r.replayGame(ctx, name, i, game)
			mu.Lock()
			pass.Samples = append(pass.Samples, samples...)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	pass.Elapsed = time.Since(start)

	sort.Slice(pass.Samples, func(i, j int) bool {
		a, b := pass.Samples[i], pass.Samples[j]
		if a.Game != b.Game {
			return a.Game < b.Game
		}
		return a.Ply < b.Ply
	})

	r.logger.Info("replay pass finished",
		zap.String("pass", name),
		zap.Int("games", len(games)),
		zap.Int("positions", len(pass.Samples)),
		zap.Duration("elapsed", pass.Elapsed),
	)
	if err != nil {
		return pass, fmt.Errorf("replay %s: %w", name, err)
	}
	return pass, nil
}

func (r *Runner) replayGame(ctx context.Context, pass string, idx int, game pgn.Game) ([]Sample, error) {
	caller := fmt.Sprintf("%s-game-%d", pass, idx)
	samples := make([]Sample, 0, len(game.Positions))
	for ply, pos := range game.Positions {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		s := r.analyze(ctx, caller, pos)
		s.Game, s.Ply = idx, ply
		if s.Err != nil {
			r.logger.Debug("position failed",
				zap.String("caller", caller),
				zap.Int("ply", ply),
				zap.Error(s.Err),
			)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (r *Runner) analyze(ctx context.Context, caller, fen string) Sample {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	sess, err := r.svc.Analyze(ctx, fen, r.cfg.Depth, caller)
	if err != nil {
		return Sample{Latency: time.Since(start), Err: err}
	}

	var s Sample
	for range sess.Updates() {
		s.Updates++
	}
	s.Result, s.Err = sess.Wait(ctx)
	s.Latency = time.Since(start)
	return s
}
