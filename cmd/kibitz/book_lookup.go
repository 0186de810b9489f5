package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/eval"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [FEN]",
	Short: "Look up a position in the opening book",
	Long: `Look up every stored analysis of a position.

The FEN string needs at least the piece placement, side to move, castling
rights and en passant square; move counters are ignored. Without a built
book in --data-dir only the built-in positions are searched.

Examples:
  # Starting position
  kibitz book lookup "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"

  # After 1.e4
  kibitz book lookup "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3"`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

var (
	outputJSON bool
	showTiming bool
)

func init() {
	lookupCmd.Flags().BoolVar(&outputJSON, "json", false, "output the record as JSON")
	lookupCmd.Flags().BoolVar(&showTiming, "timing", false, "show lookup timing")
	bookCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	var opts []book.Option
	if _, err := os.Stat(filepath.Join(bookDataDir, book.ManifestFilename)); err == nil {
		dir, err := book.WithDataDir(bookDataDir)
		if err != nil {
			return err
		}
		opts = append(opts, dir)
	}

	b, err := book.New(opts...)
	if err != nil {
		return fmt.Errorf("opening book: %w", err)
	}
	defer b.Close()

	start := time.Now()
	rec, err := b.Record(context.Background(), args[0])
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, eval.ErrNotFound) {
			return fmt.Errorf("position not found in book")
		}
		return fmt.Errorf("lookup failed: %w", err)
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(struct {
			*book.Record
			ElapsedMS int64 `json:"elapsed_ms,omitempty"`
		}{rec, timingMS(elapsed)})
	}
	printRecord(rec, elapsed)
	return nil
}

func timingMS(d time.Duration) int64 {
	if !showTiming {
		return 0
	}
	return d.Milliseconds()
}

func printRecord(rec *book.Record, elapsed time.Duration) {
	fmt.Printf("FEN:   %s\n", rec.FEN)
	if r, err := rec.Result(); err == nil {
		fmt.Printf("Best:  %s (%s, depth %d)\n", r.BestMove, r.Score, r.Depth)
	}
	for _, a := range rec.Evals {
		fmt.Printf("Depth %d, %dk nodes:\n", a.Depth, a.Knodes)
		for i, pv := range a.PVs {
			fmt.Printf("  PV %d: %s (%s)\n", i+1, pv.Line, pvScore(pv))
		}
	}
	if showTiming {
		fmt.Printf("Time:  %s\n", elapsed)
	}
}

func pvScore(pv book.PV) kibitz.Score {
	if pv.Mate != nil {
		return kibitz.MateIn(*pv.Mate)
	}
	if pv.CP != nil {
		return kibitz.Centipawns(*pv.CP)
	}
	return kibitz.Centipawns(0)
}
