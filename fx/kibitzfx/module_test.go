package kibitzfx_test

import (
	"context"
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/fx/kibitzfx"
	"github.com/discochess/kibitz/internal/config"
)

func TestModule(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Path = ""
	cfg.Cloud.Enabled = false

	var svc *kibitz.Service
	app := fxtest.New(t,
		fx.Supply(cfg, zap.NewNop()),
		kibitzfx.Module,
		fx.Populate(&svc),
	)
	app.RequireStart()

	sess, err := svc.Analyze(context.Background(), "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 12, "fx")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	r, err := sess.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if r.Source != kibitz.SourceOpeningBook {
		t.Errorf("Source = %v, want opening book", r.Source)
	}

	app.RequireStop()
	if _, err := svc.Analyze(context.Background(), "8/8/8/8/8/8/8/K6k w - - 0 1", 1, "fx"); err == nil {
		t.Error("Analyze() after stop succeeded")
	}
}
