// Package uci turns raw UCI engine output lines into typed events.
//
// Parsing is pure and tolerant: unknown tokens are skipped, unparseable
// numbers leave their field at zero, and PV moves are passed through as
// opaque strings. Legality of moves is the consumer's concern.
package uci

import (
	"strconv"
	"strings"

	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/fen"
)

// Kind classifies an engine output line.
type Kind uint8

const (
	Ignored Kind = iota
	HandshakeOK
	ReadyOK
	InfoUpdate
	BestMove
	Violation
)

func (k Kind) String() string {
	switch k {
	case HandshakeOK:
		return "uciok"
	case ReadyOK:
		return "readyok"
	case InfoUpdate:
		return "info"
	case BestMove:
		return "bestmove"
	case Violation:
		return "violation"
	default:
		return "ignored"
	}
}

// Bound tells whether an info score is exact or a search-window bound.
type Bound uint8

const (
	Exact Bound = iota
	LowerBound
	UpperBound
)

// Info is a parsed "info ... score ... pv ..." line.
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int
	Score    eval.Score // White's perspective
	Bound    Bound
	Nodes    int64
	PV       []string
}

// Event is the result of parsing one line.
type Event struct {
	Kind   Kind
	Info   Info
	Move   string // BestMove only; empty for "bestmove (none)"
	Ponder string
	Raw    string
}

// ParseLine parses a single engine line. side is the side to move in the
// searched position; engines report scores from the mover's point of view
// and ParseLine converts them to White's.
func ParseLine(line string, side fen.Color) Event {
	line = strings.TrimSpace(line)
	ev := Event{Kind: Ignored, Raw: line}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ev
	}

	switch fields[0] {
	case "uciok":
		ev.Kind = HandshakeOK
		return ev
	case "readyok":
		ev.Kind = ReadyOK
		return ev
	case "bestmove":
		return parseBestMove(ev, fields)
	case "info":
		if info, ok := parseInfo(fields, side); ok {
			ev.Kind = InfoUpdate
			ev.Info = info
		}
		return ev
	}

	// Some wrappers prefix the handshake tokens.
	if strings.Contains(line, "uciok") {
		ev.Kind = HandshakeOK
	} else if strings.Contains(line, "readyok") {
		ev.Kind = ReadyOK
	}
	return ev
}

func parseBestMove(ev Event, fields []string) Event {
	if len(fields) < 2 {
		ev.Kind = Violation
		return ev
	}
	ev.Kind = BestMove
	if fields[1] != "(none)" && fields[1] != "0000" {
		ev.Move = fields[1]
	}
	for i := 2; i+1 < len(fields); i++ {
		if fields[i] == "ponder" {
			ev.Ponder = fields[i+1]
			break
		}
	}
	return ev
}

func parseInfo(fields []string, side fen.Color) (Info, bool) {
	var (
		info     Info
		hasScore bool
		hasPV    bool
	)

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			info.Depth = atoi(fields, i+1)
			i++
		case "seldepth":
			info.SelDepth = atoi(fields, i+1)
			i++
		case "multipv":
			info.MultiPV = atoi(fields, i+1)
			i++
		case "nodes":
			if i+1 < len(fields) {
				info.Nodes, _ = strconv.ParseInt(fields[i+1], 10, 64)
			}
			i++
		case "score":
			if i+2 >= len(fields) {
				continue
			}
			n, err := strconv.Atoi(fields[i+2])
			if err != nil {
				i += 2
				continue
			}
			switch fields[i+1] {
			case "cp":
				info.Score = eval.Centipawns(n)
				hasScore = true
			case "mate":
				info.Score = eval.MateIn(n)
				hasScore = true
			}
			i += 2
			if i+1 < len(fields) {
				switch fields[i+1] {
				case "lowerbound":
					info.Bound = LowerBound
					i++
				case "upperbound":
					info.Bound = UpperBound
					i++
				}
			}
		case "pv":
			hasPV = true
			if i+1 < len(fields) {
				info.PV = append([]string(nil), fields[i+1:]...)
			}
			i = len(fields)
		}
	}

	if !hasScore || !hasPV {
		return Info{}, false
	}
	if side == fen.Black {
		info.Score = info.Score.Negate()
		// A lower bound for the mover is an upper bound for White.
		switch info.Bound {
		case LowerBound:
			info.Bound = UpperBound
		case UpperBound:
			info.Bound = LowerBound
		}
	}
	return info, true
}

func atoi(fields []string, i int) int {
	if i >= len(fields) {
		return 0
	}
	n, _ := strconv.Atoi(fields[i])
	return n
}
