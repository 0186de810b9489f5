// Package kibitz orchestrates chess position analysis across a local UCI
// engine, a cloud evaluation service, an opening book and a static
// heuristic.
//
// Example usage:
//
//	svc, err := kibitz.New(
//	    kibitz.WithEngine(&engine.ExecTransport{Path: "stockfish"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	sess, err := svc.Analyze(ctx, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 18, "user-1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for u := range sess.Updates() {
//	    fmt.Printf("depth %d: %s %s (%s)\n", u.Result.Depth, u.Result.Score, u.Result.BestMove, u.Result.Source)
//	}
package kibitz

import (
	"errors"

	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/fen"
)

// Result types shared with the internal backends.
type (
	Result      = eval.Result
	Score       = eval.Score
	Source      = eval.Source
	Degradation = eval.Degradation
)

// Result sources.
const (
	SourceLocalEngine = eval.SourceLocalEngine
	SourceCloud       = eval.SourceCloud
	SourceOpeningBook = eval.SourceOpeningBook
	SourceHeuristic   = eval.SourceHeuristic
	SourceCache       = eval.SourceCache
)

// Reasons a result came from a fallback source.
const (
	DegradedNone        = eval.DegradedNone
	DegradedRateLimited = eval.DegradedRateLimited
	DegradedQueueFull   = eval.DegradedQueueFull
)

// Centipawns, MateIn and Checkmate build scores from White's perspective.
var (
	Centipawns = eval.Centipawns
	MateIn     = eval.MateIn
	Checkmate  = eval.Checkmate
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrInvalidFEN is the only input error Analyze reports for a position.
	ErrInvalidFEN = fen.ErrInvalidFEN

	// ErrInvalidDepth indicates a requested depth below 1.
	ErrInvalidDepth = errors.New("kibitz: depth must be at least 1")

	// ErrClosed indicates the service has been closed.
	ErrClosed = errors.New("kibitz: service closed")

	// ErrNotStarted indicates Analyze was called before Start.
	ErrNotStarted = errors.New("kibitz: service not started")

	// ErrCancelled is reported by Session.Wait for a session that was
	// superseded or cancelled.
	ErrCancelled = errors.New("kibitz: session cancelled")
)

// Backend failure taxonomy. Strategies fail with these internally; they
// are never returned by Analyze.
var (
	ErrStartup     = eval.ErrStartup
	ErrTimeout     = eval.ErrTimeout
	ErrNotFound    = eval.ErrNotFound
	ErrProtocol    = eval.ErrProtocol
	ErrRateLimited = eval.ErrRateLimited
	ErrQueueFull   = eval.ErrQueueFull
	ErrUnavailable = eval.ErrUnavailable
)
