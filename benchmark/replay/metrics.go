package replay

import (
	"sort"
	"time"
)

// Latencies returns the latency of every successful sample in milliseconds.
func (p *Pass) Latencies() []float64 {
	out := make([]float64, 0, len(p.Samples))
	for _, s := range p.Samples {
		if s.Err == nil {
			out = append(out, float64(s.Latency)/float64(time.Millisecond))
		}
	}
	return out
}

// Errors counts failed samples.
func (p *Pass) Errors() int {
	var n int
	for _, s := range p.Samples {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Throughput returns answered positions per second.
func (p *Pass) Throughput() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(len(p.Samples)-p.Errors()) / p.Elapsed.Seconds()
}

// Count is a labelled tally.
type Count struct {
	Label string
	N     int
	Pct   float64
}

// Sources tallies the source of every successful result, most frequent
// first.
func (p *Pass) Sources() []Count {
	return p.tally(func(s Sample) (string, bool) {
		return s.Result.Source.String(), true
	})
}

// Degradations tallies results that were served by a fallback because the
// caller was rate limited or the engine queue was full.
func (p *Pass) Degradations() []Count {
	return p.tally(func(s Sample) (string, bool) {
		return s.Result.Degraded.String(), s.Result.Degraded != 0
	})
}

// Depths returns the depth of every successful result.
func (p *Pass) Depths() []float64 {
	out := make([]float64, 0, len(p.Samples))
	for _, s := range p.Samples {
		if s.Err == nil {
			out = append(out, float64(s.Result.Depth))
		}
	}
	return out
}

func (p *Pass) tally(label func(Sample) (string, bool)) []Count {
	counts := make(map[string]int)
	var total int
	for _, s := range p.Samples {
		if s.Err != nil {
			continue
		}
		total++
		if l, ok := label(s); ok {
			counts[l]++
		}
	}

	out := make([]Count, 0, len(counts))
	for l, n := range counts {
		out = append(out, Count{Label: l, N: n, Pct: float64(n) / float64(total) * 100})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Label < out[j].Label
	})
	return out
}
