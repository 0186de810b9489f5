package analysis

import (
	"fmt"

	"github.com/discochess/kibitz/benchmark/replay"
)

// Comparison contrasts the latency of two passes over the same games,
// typically a cold-cache pass followed by a warm one.
type Comparison struct {
	Baseline  string
	Candidate string
	Before    Summary
	After     Summary
	Test      RankTest
	Effect    Effect
	Interval  Interval
	// Speedup is the ratio of baseline to candidate median latency.
	Speedup float64
}

// ComparePasses compares latencies of baseline and candidate.
func ComparePasses(baseline, candidate *replay.Pass, iterations int, confidence float64) *Comparison {
	a, b := baseline.Latencies(), candidate.Latencies()
	c := &Comparison{
		Baseline:  baseline.Name,
		Candidate: candidate.Name,
		Before:    Describe(a),
		After:     Describe(b),
		Test:      MannWhitneyU(a, b),
		Effect:    CohensD(a, b),
		Interval:  Bootstrap(a, b, iterations, confidence, 1),
	}
	if c.After.P50 > 0 {
		c.Speedup = c.Before.P50 / c.After.P50
	}
	return c
}

// Faster reports whether the candidate is significantly faster.
func (c *Comparison) Faster() bool {
	return c.Test.Significant && c.After.Mean < c.Before.Mean
}

// String returns a short multi-line summary.
func (c *Comparison) String() string {
	verdict := "no significant difference"
	if c.Test.Significant {
		verdict = fmt.Sprintf("significant (p=%.4f)", c.Test.PValue)
	}
	return fmt.Sprintf(
		"%s vs %s:\n"+
			"  %-8s p50=%.2fms p90=%.2fms mean=%.2fms\n"+
			"  %-8s p50=%.2fms p90=%.2fms mean=%.2fms\n"+
			"  median speedup %.1fx, effect %.2f (%s), %s",
		c.Baseline, c.Candidate,
		c.Baseline, c.Before.P50, c.Before.P90, c.Before.Mean,
		c.Candidate, c.After.P50, c.After.P90, c.After.Mean,
		c.Speedup, c.Effect.CohensD, c.Effect.Label, verdict,
	)
}
