package analysis

import (
	"strings"
	"testing"
	"time"

	"github.com/discochess/kibitz/benchmark/replay"
)

func pass(name string, ms ...int) *replay.Pass {
	p := &replay.Pass{Name: name}
	for _, v := range ms {
		p.Samples = append(p.Samples, replay.Sample{Latency: time.Duration(v) * time.Millisecond})
	}
	return p
}

func TestComparePasses(t *testing.T) {
	cold := pass("cold", 40, 42, 45, 50, 41, 44, 48, 46, 43, 47)
	warm := pass("warm", 1, 2, 1, 2, 1, 2, 1, 2, 1, 2)

	c := ComparePasses(cold, warm, 500, 0.95)
	if !c.Faster() {
		t.Fatalf("Faster() = false, comparison:\n%s", c)
	}
	if c.Speedup < 20 {
		t.Errorf("Speedup = %.1f, want at least 20", c.Speedup)
	}
	if c.Interval.Lower <= 0 {
		t.Errorf("Interval.Lower = %f, want positive", c.Interval.Lower)
	}
	if !strings.Contains(c.String(), "cold vs warm") {
		t.Errorf("String() = %q", c.String())
	}
}

func TestComparePasses_Empty(t *testing.T) {
	c := ComparePasses(pass("a"), pass("b"), 100, 0.95)
	if c.Faster() || c.Speedup != 0 {
		t.Errorf("empty comparison = %+v", c)
	}
}
