// Package eval defines the evaluation values shared by every analysis
// backend: scores, results, provenance and the failure taxonomy.
package eval

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ScoreKind distinguishes centipawn scores from forced mates.
type ScoreKind uint8

const (
	// KindCentipawns is a material-style evaluation in 1/100 pawn units.
	KindCentipawns ScoreKind = iota
	// KindMate is a forced mate; Value holds the distance in moves.
	KindMate
	// KindCheckmate is a position that is already mated. Value is +1 when
	// White delivered the mate and -1 when Black did.
	KindCheckmate
)

// Score is an evaluation from White's perspective.
//
// Positive values favour White. For mates, a positive Value means White
// mates in Value moves and a negative Value means Black does.
type Score struct {
	Kind  ScoreKind
	Value int
}

// Centipawns returns a centipawn score.
func Centipawns(cp int) Score {
	return Score{Kind: KindCentipawns, Value: cp}
}

// MateIn returns a mate score. n > 0 means White mates, n < 0 Black.
func MateIn(n int) Score {
	return Score{Kind: KindMate, Value: n}
}

// Checkmate returns the score of a position that is already mated.
// whiteWins reports whether White delivered the mate.
func Checkmate(whiteWins bool) Score {
	if whiteWins {
		return Score{Kind: KindCheckmate, Value: 1}
	}
	return Score{Kind: KindCheckmate, Value: -1}
}

// IsMate reports whether s is a forced or delivered mate.
func (s Score) IsMate() bool {
	return s.Kind == KindMate || s.Kind == KindCheckmate
}

// Sign returns +1 when s favours White, -1 when it favours Black and 0
// for a level score.
func (s Score) Sign() int {
	switch {
	case s.Value > 0:
		return 1
	case s.Value < 0:
		return -1
	}
	return 0
}

// CP returns the centipawn value and true, or 0 and false for mates.
func (s Score) CP() (int, bool) {
	if s.Kind != KindCentipawns {
		return 0, false
	}
	return s.Value, true
}

// Mate returns the mate distance and true, or 0 and false for centipawns.
// A delivered mate has distance 0; Sign tells who won.
func (s Score) Mate() (int, bool) {
	switch s.Kind {
	case KindMate:
		return s.Value, true
	case KindCheckmate:
		return 0, true
	}
	return 0, false
}

// Pawns returns the centipawn value in pawns. Mates have no pawn value
// and return 0; callers must check IsMate first.
func (s Score) Pawns() float64 {
	if s.Kind != KindCentipawns {
		return 0
	}
	return float64(s.Value) / 100
}

// Negate flips the perspective of s.
func (s Score) Negate() Score {
	return Score{Kind: s.Kind, Value: -s.Value}
}

// String renders the score for display.
// Examples: "+0.20", "-1.05", "#3", "#-5", and "#+0" or "#-0" once
// White or Black has delivered mate.
func (s Score) String() string {
	switch s.Kind {
	case KindMate:
		return "#" + strconv.Itoa(s.Value)
	case KindCheckmate:
		if s.Value > 0 {
			return "#+0"
		}
		return "#-0"
	}
	cp := s.Value
	sign := "+"
	if cp < 0 {
		sign = "-"
		cp = -cp
	}
	return fmt.Sprintf("%s%d.%02d", sign, cp/100, cp%100)
}

type scoreJSON struct {
	CP     *int   `json:"cp,omitempty"`
	Mate   *int   `json:"mate,omitempty"`
	Winner string `json:"winner,omitempty"`
}

// MarshalJSON encodes the score as {"cp":N} or {"mate":N}, the shape the
// Lichess cloud API uses. A delivered mate is {"mate":0,"winner":"white"}
// or "black".
func (s Score) MarshalJSON() ([]byte, error) {
	v := s.Value
	switch s.Kind {
	case KindMate:
		return json.Marshal(scoreJSON{Mate: &v})
	case KindCheckmate:
		zero, winner := 0, "black"
		if v > 0 {
			winner = "white"
		}
		return json.Marshal(scoreJSON{Mate: &zero, Winner: winner})
	}
	return json.Marshal(scoreJSON{CP: &v})
}

// UnmarshalJSON decodes the {"cp":N} / {"mate":N} form.
func (s *Score) UnmarshalJSON(data []byte) error {
	var raw scoreJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Mate != nil && *raw.Mate == 0 && raw.Winner != "":
		*s = Checkmate(raw.Winner == "white")
	case raw.Mate != nil:
		*s = MateIn(*raw.Mate)
	case raw.CP != nil:
		*s = Centipawns(*raw.CP)
	default:
		return errors.New("eval: score has neither cp nor mate")
	}
	return nil
}
