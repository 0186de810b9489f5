package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/internal/stats"
	"github.com/discochess/kibitz/internal/stats/logger"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [FEN]",
	Short: "Analyze one position and print the updates",
	Long: `Analyze a position with the configured sources and print each
progressive update, then the final result.

Examples:
  # Local engine only
  kibitz analyze "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3" --no-cloud

  # Book and heuristic only, as JSON lines
  kibitz analyze "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1" --engine "" --no-cloud --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeDepth   int
	analyzeEngine  string
	analyzeNoCloud bool
	analyzeJSON    bool
	analyzeTimeout time.Duration
)

func init() {
	analyzeCmd.Flags().IntVar(&analyzeDepth, "depth", 18, "search depth")
	analyzeCmd.Flags().StringVar(&analyzeEngine, "engine", "stockfish", "engine binary; empty disables the local engine")
	analyzeCmd.Flags().BoolVar(&analyzeNoCloud, "no-cloud", false, "do not query the cloud service")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print updates as JSON lines")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "local engine budget, overriding timeouts.local")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("engine") || configPath == "" {
		cfg.Engine.Path = analyzeEngine
	}
	if analyzeNoCloud {
		cfg.Cloud.Enabled = false
	}
	if analyzeTimeout > 0 {
		cfg.Timeouts.Local = analyzeTimeout
	}

	log, err := quietLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	var collector stats.Collector = stats.NewNoop()
	if verbose {
		collector = logger.New(log.Named("stats"))
	}
	b, err := cfg.OpenBook(ctx, collector, log)
	if err != nil {
		return fmt.Errorf("opening book: %w", err)
	}
	defer b.Close()

	svc, err := kibitz.New(cfg.ServiceOptions(b, collector, log)...)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close()

	start := time.Now()
	sess, err := svc.Analyze(ctx, args[0], analyzeDepth, "cli")
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for u := range sess.Updates() {
		if analyzeJSON {
			if err := enc.Encode(u); err != nil {
				return err
			}
			continue
		}
		printUpdate(u)
	}

	if _, err := sess.Wait(ctx); err != nil {
		return err
	}
	if !analyzeJSON {
		fmt.Printf("Time:   %s\n", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func printUpdate(u kibitz.Update) {
	r := u.Result
	if !u.Final {
		fmt.Printf("depth %2d  %7s  %s\n", r.Depth, r.Score, r.PVString())
		return
	}
	fmt.Println()
	fmt.Printf("Move:   %s\n", r.BestMove)
	fmt.Printf("Score:  %s\n", r.Score)
	fmt.Printf("Depth:  %d\n", r.Depth)
	if len(r.PV) > 0 {
		fmt.Printf("PV:     %s\n", r.PVString())
	}
	fmt.Printf("Source: %s\n", r.Source)
	if r.Degraded != kibitz.DegradedNone {
		fmt.Printf("Note:   %s\n", r.Degraded)
	}
}
