package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/config"
)

var (
	// Global flags.
	configPath string
	logLevel   string
	devLog     bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "kibitz",
	Short: "Chess position analysis across engine, cloud, book and heuristic",
	Long: `Kibitz answers chess analysis requests from a local UCI engine, the
Lichess cloud evaluation service, an opening book and a static heuristic,
falling back in that order.

Examples:
  # Run the HTTP server
  kibitz serve --config kibitz.yaml

  # Analyze one position
  kibitz analyze "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1" --depth 18

  # Build an opening book from the Lichess evaluation dump
  kibitz book build --source lichess_db_eval.jsonl.zst --output ./data`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overriding the configuration")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev", false, "human-readable development logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadConfig reads --config and applies the global logging flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if devLog {
		cfg.Log.Development = true
	}
	return cfg, nil
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// quietLogger is used by commands whose output is for humans: only
// warnings and errors are logged unless --verbose is set.
func quietLogger(cfg config.Config) (*zap.Logger, error) {
	if !verbose && logLevel == "" {
		cfg.Log.Level = "warn"
	}
	return cfg.Log.Logger()
}
