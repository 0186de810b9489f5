package reporting

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/discochess/kibitz/benchmark/analysis"
	"github.com/discochess/kibitz/benchmark/replay"
)

// WriteText writes a plain-text report of passes and their comparison.
// cmp may be nil.
func WriteText(w io.Writer, s Setup, passes []*replay.Pass, cmp *analysis.Comparison) error {
	fmt.Fprintf(w, "Games: %d  Positions: %d (%d unique)  Depth: %d  Concurrency: %d\n",
		s.Games, s.Positions, s.Unique, s.Depth, s.Concurrency)
	fmt.Fprintf(w, "Chain: %s\n\n", strings.Join(s.Sources, " -> "))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PASS\tANSWERED\tERRORS\tP50\tP90\tP99\tMEAN\tPOS/S\tSOURCES")
	for _, p := range passes {
		st := analysis.Describe(p.Latencies())
		var src []string
		for _, c := range p.Sources() {
			src = append(src, fmt.Sprintf("%s=%d", c.Label, c.N))
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2fms\t%.2fms\t%.2fms\t%.2fms\t%.1f\t%s\n",
			p.Name, st.N, p.Errors(), st.P50, st.P90, st.P99, st.Mean, p.Throughput(), strings.Join(src, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if cmp != nil {
		fmt.Fprintf(w, "\n%s\n", cmp)
	}
	return nil
}
