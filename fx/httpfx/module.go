// Package httpfx provides an fx module serving the analysis API over HTTP.
package httpfx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/internal/config"
	"github.com/discochess/kibitz/internal/httpapi"
)

// Module provides an *http.Server for the API and runs it for the
// lifetime of the application.
// Requires config.Config, *zap.Logger, *kibitz.Service and
// prometheus.Gatherer (see kibitzfx).
var Module = fx.Module("http",
	fx.Provide(newServer),
	fx.Invoke(func(*http.Server) {}),
)

// Params holds dependencies for creating the server.
type Params struct {
	fx.In

	Config    config.Config
	Logger    *zap.Logger
	Service   *kibitz.Service
	Gatherer  prometheus.Gatherer
	Lifecycle fx.Lifecycle
}

func newServer(p Params) *http.Server {
	logger := p.Logger.Named("http")
	srv := &http.Server{
		Addr: p.Config.HTTP.Addr,
		Handler: httpapi.New(p.Service,
			httpapi.WithGatherer(p.Gatherer),
			httpapi.WithBatchLimit(p.Config.HTTP.BatchLimit),
			httpapi.WithMaxBatch(p.Config.HTTP.MaxBatch),
			httpapi.WithLogger(p.Logger),
		),
		ReadHeaderTimeout: p.Config.HTTP.RequestTimeout,
		ErrorLog:          zap.NewStdLog(logger),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", srv.Addr, err)
			}
			logger.Info("listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, p.Config.HTTP.ShutdownGrace)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
