// Package kibitzfx provides an fx module for the analysis service.
package kibitzfx

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/config"
	"github.com/discochess/kibitz/internal/stats"
	promstats "github.com/discochess/kibitz/internal/stats/prometheus"
)

// Module provides a started *kibitz.Service, its opening book and a
// Prometheus registry holding the service metrics.
// Requires a config.Config and a *zap.Logger to be provided.
var Module = fx.Module("kibitz",
	fx.Provide(
		newRegistry,
		newStatsCollector,
		newBook,
		newService,
	),
)

// Metrics holds the registry the service reports to.
type Metrics struct {
	fx.Out

	Registry *prometheus.Registry
	Gatherer prometheus.Gatherer
}

func newRegistry() Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return Metrics{Registry: reg, Gatherer: reg}
}

func newStatsCollector(reg *prometheus.Registry) stats.Collector {
	return promstats.New(reg)
}

// BookParams holds dependencies for opening the book.
type BookParams struct {
	fx.In

	Config    config.Config
	Logger    *zap.Logger
	Collector stats.Collector
	Lifecycle fx.Lifecycle
}

func newBook(p BookParams) (*book.Book, error) {
	b, err := p.Config.OpenBook(context.Background(), p.Collector, p.Logger)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.StopHook(b.Close))
	return b, nil
}

// Params holds dependencies for creating the service.
type Params struct {
	fx.In

	Config    config.Config
	Logger    *zap.Logger
	Collector stats.Collector
	Book      *book.Book
	Lifecycle fx.Lifecycle
}

func newService(p Params) (*kibitz.Service, error) {
	svc, err := kibitz.New(p.Config.ServiceOptions(p.Book, p.Collector, p.Logger)...)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: svc.Start,
		OnStop: func(ctx context.Context) error {
			return svc.Close()
		},
	})
	return svc, nil
}
