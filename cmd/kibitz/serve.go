package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/discochess/kibitz/fx/httpfx"
	"github.com/discochess/kibitz/fx/kibitzfx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis HTTP server",
	Long: `Run the analysis service behind its HTTP API.

Endpoints:
  GET    /health
  POST   /analyze            {"fen", "depth", "caller_id"}; NDJSON stream, or ?stream=false
  POST   /analyze-batch      {"positions": [{"fen", "depth"}]}
  DELETE /sessions/{caller}
  GET    /stats
  GET    /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overriding http.addr")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	app := fx.New(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		kibitzfx.Module,
		httpfx.Module,
	)
	app.Run()
	return app.Err()
}
