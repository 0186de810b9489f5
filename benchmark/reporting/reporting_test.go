package reporting

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/benchmark/analysis"
	"github.com/discochess/kibitz/benchmark/replay"
)

func samplePass(name string, src kibitz.Source, ms ...int) *replay.Pass {
	p := &replay.Pass{Name: name, Elapsed: time.Second}
	for _, v := range ms {
		p.Samples = append(p.Samples, replay.Sample{
			Latency: time.Duration(v) * time.Millisecond,
			Result:  kibitz.Result{Source: src},
		})
	}
	return p
}

func TestMarkdown(t *testing.T) {
	cold := samplePass("cold", kibitz.SourceLocalEngine, 40, 42, 45, 50, 41, 44)
	warm := samplePass("warm", kibitz.SourceCache, 1, 2, 1, 2, 1, 2)
	warm.Samples[0].Result.Degraded = kibitz.DegradedQueueFull

	var buf bytes.Buffer
	m := NewMarkdown(&buf)
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	m.Header("Replay")
	m.Setup(Setup{Games: 2, Positions: 12, Unique: 6, Depth: 12, Concurrency: 2, Sources: []string{"local-engine", "opening-book"}})
	m.Passes([]*replay.Pass{cold, warm})
	m.Sources(warm)
	m.Comparison(analysis.ComparePasses(cold, warm, 200, 0.95))
	m.Histogram(cold, 4)
	m.Footer()

	out := buf.String()
	for _, want := range []string{
		"# Replay",
		"Generated: 2026-01-02T03:04:05Z",
		"local-engine → opening-book",
		"| cold | 6 | 0 |",
		"| cache | 6 | 100.0% |",
		"- queue-full: 1",
		"## cold vs warm",
		"95% CI",
		"### cold latency distribution",
		"kibitz-bench",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestWriteText(t *testing.T) {
	p := samplePass("cold", kibitz.SourceOpeningBook, 3, 4)
	var buf bytes.Buffer
	if err := WriteText(&buf, Setup{Games: 1, Positions: 2, Sources: []string{"opening-book"}}, []*replay.Pass{p}, nil); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	if !strings.Contains(buf.String(), "opening-book=2") {
		t.Errorf("WriteText() = %q", buf.String())
	}
}

func TestWriteHistogram(t *testing.T) {
	tests := []struct {
		name   string
		sample []float64
		want   string
		lines  int
	}{
		{"empty", nil, "(no samples)", 1},
		{"constant", []float64{5, 5, 5}, " 3\n", 3},
		{"spread", []float64{1, 2, 3, 4, 5, 6, 7, 8}, "█", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeHistogram(&buf, tt.sample, 3)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
			if got := strings.Count(buf.String(), "\n"); got != tt.lines {
				t.Errorf("lines = %d, want %d", got, tt.lines)
			}
		})
	}
}
