// Package reporting renders replay results as Markdown or plain text.
package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/discochess/kibitz/benchmark/analysis"
	"github.com/discochess/kibitz/benchmark/replay"
)

// Setup describes what was replayed.
type Setup struct {
	Games       int
	Positions   int
	Unique      int
	Depth       int
	Concurrency int
	Sources     []string
}

// Markdown writes a benchmark report in Markdown.
type Markdown struct {
	w   io.Writer
	now func() time.Time
}

// NewMarkdown creates a Markdown report writer.
func NewMarkdown(w io.Writer) *Markdown {
	return &Markdown{w: w, now: time.Now}
}

// Header writes the title and generation time.
func (m *Markdown) Header(title string) {
	fmt.Fprintf(m.w, "# %s\n\n", title)
	fmt.Fprintf(m.w, "Generated: %s\n\n", m.now().UTC().Format(time.RFC3339))
}

// Setup writes the methodology section.
func (m *Markdown) Setup(s Setup) {
	fmt.Fprintln(m.w, "## Setup")
	fmt.Fprintln(m.w)
	fmt.Fprintf(m.w, "- **Games:** %d (one caller each)\n", s.Games)
	fmt.Fprintf(m.w, "- **Positions:** %d (%d unique)\n", s.Positions, s.Unique)
	fmt.Fprintf(m.w, "- **Depth requested:** %d\n", s.Depth)
	fmt.Fprintf(m.w, "- **Concurrent games:** %d\n", s.Concurrency)
	fmt.Fprintf(m.w, "- **Fallback chain:** %s\n", strings.Join(s.Sources, " → "))
	fmt.Fprintln(m.w)
}

// Passes writes the latency summary of each pass.
func (m *Markdown) Passes(passes []*replay.Pass) {
	fmt.Fprintln(m.w, "## Latency")
	fmt.Fprintln(m.w)
	fmt.Fprintln(m.w, "| Pass | Answered | Errors | p50 (ms) | p90 (ms) | p99 (ms) | Mean (ms) | Positions/s |")
	fmt.Fprintln(m.w, "|------|----------|--------|----------|----------|----------|-----------|-------------|")
	for _, p := range passes {
		s := analysis.Describe(p.Latencies())
		fmt.Fprintf(m.w, "| %s | %d | %d | %.2f | %.2f | %.2f | %.2f | %.1f |\n",
			p.Name, s.N, p.Errors(), s.P50, s.P90, s.P99, s.Mean, p.Throughput())
	}
	fmt.Fprintln(m.w)
}

// Sources writes the source and degradation distribution of a pass.
func (m *Markdown) Sources(p *replay.Pass) {
	fmt.Fprintf(m.w, "## Sources: %s\n\n", p.Name)
	fmt.Fprintln(m.w, "| Source | Results | Share |")
	fmt.Fprintln(m.w, "|--------|---------|-------|")
	for _, c := range p.Sources() {
		fmt.Fprintf(m.w, "| %s | %d | %.1f%% |\n", c.Label, c.N, c.Pct)
	}
	fmt.Fprintln(m.w)

	if deg := p.Degradations(); len(deg) > 0 {
		fmt.Fprintln(m.w, "Degraded results:")
		fmt.Fprintln(m.w)
		for _, c := range deg {
			fmt.Fprintf(m.w, "- %s: %d (%.1f%%)\n", c.Label, c.N, c.Pct)
		}
		fmt.Fprintln(m.w)
	}
}

// Comparison writes the statistical comparison of two passes.
func (m *Markdown) Comparison(c *analysis.Comparison) {
	fmt.Fprintf(m.w, "## %s vs %s\n\n", c.Baseline, c.Candidate)
	fmt.Fprintf(m.w, "- **Median speedup:** %.1fx\n", c.Speedup)
	fmt.Fprintf(m.w, "- **Mann-Whitney U:** %.1f (z=%.2f, p=%.4f)\n", c.Test.U, c.Test.Z, c.Test.PValue)
	fmt.Fprintf(m.w, "- **Effect size (Cohen's d):** %.2f (%s)\n", c.Effect.CohensD, c.Effect.Label)
	fmt.Fprintf(m.w, "- **%.0f%% CI for mean difference:** [%.2f, %.2f] ms\n",
		c.Interval.Confidence*100, c.Interval.Lower, c.Interval.Upper)
	fmt.Fprintln(m.w)

	if c.Faster() {
		fmt.Fprintf(m.w, "**%s** is significantly faster than %s (p < %.2f, %s effect).\n\n",
			c.Candidate, c.Baseline, analysis.Significance, c.Effect.Label)
	} else {
		fmt.Fprintf(m.w, "No significant improvement of %s over %s.\n\n", c.Candidate, c.Baseline)
	}
}

// Histogram writes an ASCII latency histogram of a pass.
func (m *Markdown) Histogram(p *replay.Pass, buckets int) {
	fmt.Fprintf(m.w, "### %s latency distribution\n\n", p.Name)
	fmt.Fprintln(m.w, "```")
	writeHistogram(m.w, p.Latencies(), buckets)
	fmt.Fprintln(m.w, "```")
	fmt.Fprintln(m.w)
}

// Footer writes the report footer.
func (m *Markdown) Footer() {
	fmt.Fprintln(m.w, "---")
	fmt.Fprintln(m.w)
	fmt.Fprintln(m.w, "*Report generated by kibitz-bench*")
}
