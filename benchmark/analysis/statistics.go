// Package analysis provides statistics for comparing benchmark passes.
package analysis

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Significance is the p-value below which a difference is reported as
// significant.
const Significance = 0.05

// Summary holds descriptive statistics of a latency sample.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	P50    float64
	P90    float64
	P99    float64
	Max    float64
}

// Describe summarizes sample. An empty sample yields the zero Summary.
func Describe(sample []float64) Summary {
	if len(sample) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(sample)
	slices.Sort(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return Summary{
		N:      len(sorted),
		Mean:   mean,
		StdDev: std,
		Min:    sorted[0],
		P50:    stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.90, stat.Empirical, sorted, nil),
		P99:    stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

// RankTest is the outcome of a Mann-Whitney U test.
type RankTest struct {
	U           float64
	Z           float64
	PValue      float64
	Significant bool
}

// MannWhitneyU tests whether a and b come from the same distribution,
// using the normal approximation with tie-averaged ranks.
func MannWhitneyU(a, b []float64) RankTest {
	n1, n2 := float64(len(a)), float64(len(b))
	if n1 == 0 || n2 == 0 {
		return RankTest{PValue: 1}
	}

	type obs struct {
		v     float64
		first bool
	}
	all := make([]obs, 0, len(a)+len(b))
	for _, v := range a {
		all = append(all, obs{v, true})
	}
	for _, v := range b {
		all = append(all, obs{v, false})
	}
	slices.SortFunc(all, func(x, y obs) int {
		switch {
		case x.v < y.v:
			return -1
		case x.v > y.v:
			return 1
		}
		return 0
	})

	var rankSum float64
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].v == all[i].v {
			j++
		}
		rank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if all[k].first {
				rankSum += rank
			}
		}
		i = j
	}

	u1 := rankSum - n1*(n1+1)/2
	u := math.Min(u1, n1*n2-u1)
	mu := n1 * n2 / 2
	sigma := math.Sqrt(n1 * n2 * (n1 + n2 + 1) / 12)

	var z float64
	if sigma > 0 {
		z = (u - mu) / sigma
	}
	p := 2 * distuv.UnitNormal.CDF(-math.Abs(z))
	return RankTest{U: u, Z: z, PValue: p, Significant: p < Significance}
}

// Effect is a standardized mean difference.
type Effect struct {
	CohensD float64
	Label   string
}

// CohensD computes the standardized difference between the means of a and b
// using the pooled standard deviation.
func CohensD(a, b []float64) Effect {
	if len(a) < 2 || len(b) < 2 {
		return Effect{Label: "undefined"}
	}
	m1, v1 := stat.MeanVariance(a, nil)
	m2, v2 := stat.MeanVariance(b, nil)
	n1, n2 := float64(len(a)), float64(len(b))
	pooled := math.Sqrt(((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2))

	var d float64
	if pooled > 0 {
		d = (m1 - m2) / pooled
	}
	return Effect{CohensD: d, Label: effectLabel(math.Abs(d))}
}

func effectLabel(d float64) string {
	switch {
	case d < 0.2:
		return "negligible"
	case d < 0.5:
		return "small"
	case d < 0.8:
		return "medium"
	default:
		return "large"
	}
}

// Interval is a bootstrap confidence interval for mean(a) - mean(b).
type Interval struct {
	Diff       float64
	Lower      float64
	Upper      float64
	Confidence float64
}

// Bootstrap estimates a percentile confidence interval for the difference of
// means by resampling both samples with replacement. The seed makes runs
// reproducible.
func Bootstrap(a, b []float64, iterations int, confidence float64, seed uint64) Interval {
	out := Interval{Confidence: confidence}
	if len(a) == 0 || len(b) == 0 || iterations <= 0 {
		return out
	}
	out.Diff = stat.Mean(a, nil) - stat.Mean(b, nil)

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	diffs := make([]float64, iterations)
	for i := range diffs {
		diffs[i] = resampledMean(rng, a) - resampledMean(rng, b)
	}
	slices.Sort(diffs)

	alpha := 1 - confidence
	out.Lower = stat.Quantile(alpha/2, stat.Empirical, diffs, nil)
	out.Upper = stat.Quantile(1-alpha/2, stat.Empirical, diffs, nil)
	return out
}

func resampledMean(rng *rand.Rand, sample []float64) float64 {
	var sum float64
	for range sample {
		sum += sample[rng.IntN(len(sample))]
	}
	return sum / float64(len(sample))
}
