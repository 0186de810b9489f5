package reporting

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const barWidth = 40

// writeHistogram draws sample as buckets of equal width.
func writeHistogram(w io.Writer, sample []float64, buckets int) {
	if len(sample) == 0 || buckets < 1 {
		fmt.Fprintln(w, "(no samples)")
		return
	}
	sorted := slices.Clone(sample)
	slices.Sort(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi == lo {
		hi = lo + 1
	}
	dividers := floats.Span(make([]float64, buckets+1), lo, hi)
	// stat.Histogram wants the last divider strictly above the maximum.
	dividers[buckets] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	peak := floats.Max(counts)
	for i, n := range counts {
		bar := int(n / peak * barWidth)
		fmt.Fprintf(w, "%8.2f-%-8.2f │ %s %d\n", dividers[i], dividers[i+1], strings.Repeat("█", bar), int(n))
	}
}
