package eval

import "strings"

// Source identifies which backend produced a result.
type Source uint8

const (
	SourceUnknown Source = iota
	SourceLocalEngine
	SourceCloud
	SourceOpeningBook
	SourceHeuristic
	SourceCache
)

var sourceNames = [...]string{
	SourceUnknown:     "unknown",
	SourceLocalEngine: "local-engine",
	SourceCloud:       "cloud",
	SourceOpeningBook: "opening-book",
	SourceHeuristic:   "heuristic",
	SourceCache:       "cache",
}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return sourceNames[SourceUnknown]
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(text []byte) error {
	for i, name := range sourceNames {
		if name == string(text) {
			*s = Source(i)
			return nil
		}
	}
	*s = SourceUnknown
	return nil
}

// Degradation explains why a result came from a weaker source than the
// caller would normally get.
type Degradation uint8

const (
	DegradedNone Degradation = iota
	DegradedRateLimited
	DegradedQueueFull
)

func (d Degradation) String() string {
	switch d {
	case DegradedRateLimited:
		return "rate-limited"
	case DegradedQueueFull:
		return "queue-full"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Degradation) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Degradation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "rate-limited":
		*d = DegradedRateLimited
	case "queue-full":
		*d = DegradedQueueFull
	default:
		*d = DegradedNone
	}
	return nil
}

// Result is one evaluation of a position. Treat it as immutable: the With*
// helpers return modified copies.
type Result struct {
	Depth    int         `json:"depth"`
	Score    Score       `json:"score"`
	BestMove string      `json:"best_move"`
	PV       []string    `json:"pv"`
	Nodes    int64       `json:"nodes"`
	Source   Source      `json:"source"`
	Degraded Degradation `json:"degraded,omitempty"`
}

// NewResult builds a Result, copying pv. An empty bestMove is taken from
// the head of pv.
func NewResult(depth int, score Score, bestMove string, pv []string, nodes int64, source Source) Result {
	line := make([]string, len(pv))
	copy(line, pv)
	if bestMove == "" && len(line) > 0 {
		bestMove = line[0]
	}
	return Result{
		Depth:    depth,
		Score:    score,
		BestMove: bestMove,
		PV:       line,
		Nodes:    nodes,
		Source:   source,
	}
}

// Clone returns a copy of r that shares no memory with it.
func (r Result) Clone() Result {
	r.PV = r.Line()
	return r
}

// WithSource returns a copy of r stamped with src.
func (r Result) WithSource(src Source) Result {
	r.PV = r.Line()
	r.Source = src
	return r
}

// WithDegradation returns a copy of r tagged with d.
func (r Result) WithDegradation(d Degradation) Result {
	r.PV = r.Line()
	r.Degraded = d
	return r
}

// Line returns a copy of the principal variation.
func (r Result) Line() []string {
	if r.PV == nil {
		return nil
	}
	line := make([]string, len(r.PV))
	copy(line, r.PV)
	return line
}

// PVString returns the principal variation joined by spaces.
func (r Result) PVString() string {
	return strings.Join(r.PV, " ")
}
