// Package main provides kibitz-bench, which replays recorded games against
// an analysis service and reports latency and source distribution.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/benchmark/analysis"
	"github.com/discochess/kibitz/benchmark/pgn"
	"github.com/discochess/kibitz/benchmark/replay"
	"github.com/discochess/kibitz/benchmark/reporting"
	"github.com/discochess/kibitz/internal/config"
)

var (
	configPath   string
	gamesFile    string
	maxGames     int
	enginePath   string
	useCloud     bool
	depth        int
	concurrency  int
	timeout      time.Duration
	warm         bool
	iterations   int
	outputFormat string
	outputFile   string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "kibitz-bench",
	Short: "Benchmark kibitz by replaying games",
	Long: `kibitz-bench replays PGN games against a kibitz service. Every game is
a separate caller stepping through its positions in order, and several games
run at once. The report shows latency percentiles and which source answered.

A second pass over the same games measures the warm result cache and is
compared against the first.

Examples:
  # Book and heuristic only
  kibitz-bench run --games games.pgn

  # Real engine, 8 concurrent games, Markdown report
  kibitz-bench run --games games.pgn.zst --engine stockfish --concurrency 8 \
      --format markdown --output report.md`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay games and report",
	RunE:  runBenchmark,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	runCmd.Flags().StringVarP(&gamesFile, "games", "g", "", "PGN file containing games (supports .zst)")
	runCmd.Flags().IntVar(&maxGames, "max-games", 0, "replay at most this many games (0 = all)")
	runCmd.Flags().StringVar(&enginePath, "engine", "", "engine binary; empty replays against book and heuristic only")
	runCmd.Flags().BoolVar(&useCloud, "cloud", false, "query the cloud service")
	runCmd.Flags().IntVar(&depth, "depth", replay.DefaultDepth, "depth requested for every position")
	runCmd.Flags().IntVar(&concurrency, "concurrency", replay.DefaultConcurrency, "games replayed at once")
	runCmd.Flags().DurationVar(&timeout, "timeout", replay.DefaultTimeout, "wait limit per position")
	runCmd.Flags().BoolVar(&warm, "warm", true, "run a second pass against the warm cache")
	runCmd.Flags().IntVar(&iterations, "bootstrap", 10000, "bootstrap iterations for the comparison")
	runCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "output format: text, markdown")
	runCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	_ = runCmd.MarkFlagRequired("games")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBenchmark(cmd *cobra.Command, _ []string) error {
	if outputFormat != "text" && outputFormat != "markdown" {
		return fmt.Errorf("unknown format %q", outputFormat)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("engine") || configPath == "" {
		cfg.Engine.Path = enginePath
	}
	if cmd.Flags().Changed("cloud") || configPath == "" {
		cfg.Cloud.Enabled = useCloud
	}
	// Every game is its own caller; replays must not be throttled.
	cfg.Limits.RatePerMinute = 1 << 20
	cfg.Log.Level = "warn"
	if verbose {
		cfg.Log.Level = "info"
	}

	log, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	defer log.Sync()

	games, err := readGames(gamesFile, maxGames)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		return fmt.Errorf("no games found in %s", gamesFile)
	}
	gs := pgn.Summarize(games)
	log.Info("games loaded", zap.Int("games", gs.Games), zap.Int("positions", gs.Positions))

	ctx, cancel := signalContext()
	defer cancel()

	svc, closeAll, err := openService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAll()

	runner := replay.NewRunner(svc, replay.Config{
		Depth:       depth,
		Concurrency: concurrency,
		Timeout:     timeout,
	}, log)

	names := []string{"cold"}
	if warm {
		names = append(names, "warm")
	}
	var passes []*replay.Pass
	for _, name := range names {
		p, err := runner.Run(ctx, name, games)
		if err != nil {
			return err
		}
		passes = append(passes, p)
	}

	var cmp *analysis.Comparison
	if len(passes) == 2 {
		cmp = analysis.ComparePasses(passes[0], passes[1], iterations, 0.95)
	}

	setup := reporting.Setup{
		Games:       gs.Games,
		Positions:   gs.Positions,
		Unique:      gs.UniquePositions,
		Depth:       runner.Config().Depth,
		Concurrency: runner.Config().Concurrency,
		Sources:     svc.Stats().FallbackSources,
	}

	var out io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if outputFormat == "markdown" {
		writeMarkdown(out, setup, passes, cmp)
		return nil
	}
	return reporting.WriteText(out, setup, passes, cmp)
}

func readGames(path string, limit int) ([]pgn.Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening games file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return pgn.Read(r, limit)
}

// openService starts a service over the configured book. The returned
// func closes both.
func openService(ctx context.Context, cfg config.Config, log *zap.Logger) (*kibitz.Service, func(), error) {
	b, err := cfg.OpenBook(ctx, nil, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening book: %w", err)
	}
	svc, err := kibitz.New(cfg.ServiceOptions(b, nil, log)...)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	closeAll := func() {
		_ = svc.Close()
		_ = b.Close()
	}
	if err := svc.Start(ctx); err != nil {
		closeAll()
		return nil, nil, err
	}
	return svc, closeAll, nil
}

func writeMarkdown(w io.Writer, s reporting.Setup, passes []*replay.Pass, cmp *analysis.Comparison) {
	md := reporting.NewMarkdown(w)
	md.Header("kibitz replay benchmark")
	md.Setup(s)
	md.Passes(passes)
	for _, p := range passes {
		md.Sources(p)
	}
	if cmp != nil {
		md.Comparison(cmp)
	}
	for _, p := range passes {
		md.Histogram(p, 10)
	}
	md.Footer()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
