package prometheus

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/discochess/kibitz/internal/stats"
)

func TestNew_DefaultRegistry(t *testing.T) {
	c := New(nil)
	if c == nil {
		t.Fatal("New(nil) returned nil")
	}
	if c.registry == nil {
		t.Error("registry should not be nil")
	}
}

func TestNew_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	if c.registry != reg {
		t.Error("registry should be the custom registry")
	}
}

// gather returns the metric family called name, failing the test if absent.
func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found in registry", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestCollector_IncCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.IncCounter("test_counter", 5)
	c.IncCounter("test_counter", 3)

	mf := gather(t, reg, "test_counter")
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 8 {
		t.Errorf("counter value = %v, want 8", got)
	}
}

func TestCollector_IncCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.IncCounter("results_total", 1, stats.L("source", "cloud"))
	c.IncCounter("results_total", 2, stats.L("source", "heuristic"))
	c.IncCounter("results_total", 1, stats.L("source", "cloud"))

	mf := gather(t, reg, "results_total")
	got := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "source")] = m.GetCounter().GetValue()
	}
	if got["cloud"] != 2 || got["heuristic"] != 2 {
		t.Errorf("counter values = %v, want cloud=2 heuristic=2", got)
	}
}

func TestCollector_MismatchedLabelsAreDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.IncCounter("shape_total", 1, stats.L("source", "cloud"))
	// Different label set for the same name must not panic.
	c.IncCounter("shape_total", 1, stats.L("other", "x"))
	c.IncCounter("shape_total", 1)

	mf := gather(t, reg, "shape_total")
	if len(mf.GetMetric()) != 1 {
		t.Fatalf("got %d series, want 1", len(mf.GetMetric()))
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("counter value = %v, want 1", got)
	}
}

func TestCollector_SetGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SetGauge("test_gauge", 7)
	c.SetGauge("test_gauge", 42)

	mf := gather(t, reg, "test_gauge")
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 42 {
		t.Errorf("gauge value = %v, want 42", got)
	}
}

func TestCollector_ObserveDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveDuration("test_seconds", 500*time.Millisecond)
	c.ObserveDuration("test_seconds", 1500*time.Millisecond)
	c.ObserveDuration("test_seconds", 2500*time.Millisecond)

	h := gather(t, reg, "test_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 3 {
		t.Errorf("histogram count = %v, want 3", h.GetSampleCount())
	}
	if h.GetSampleSum() != 4.5 {
		t.Errorf("histogram sum = %v, want 4.5", h.GetSampleSum())
	}
}

func TestCollector_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg)
	b := New(reg)

	a.IncCounter("shared_total", 1)
	b.IncCounter("shared_total", 1)

	mf := gather(t, reg, "shared_total")
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("counter value = %v, want 2", got)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncCounter("concurrent_counter", 1)
				c.SetGauge("concurrent_gauge", int64(j))
				c.ObserveDuration("concurrent_seconds", time.Duration(j)*time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if got := gather(t, reg, "concurrent_counter").GetMetric()[0].GetCounter().GetValue(); got != 1000 {
		t.Errorf("counter value = %v, want 1000", got)
	}
	if got := gather(t, reg, "concurrent_seconds").GetMetric()[0].GetHistogram().GetSampleCount(); got != 1000 {
		t.Errorf("histogram count = %v, want 1000", got)
	}
	gather(t, reg, "concurrent_gauge")
}
