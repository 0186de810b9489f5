// Package heuristic produces an instant evaluation without an engine: a
// one-ply search over a material and centre-control static score.
package heuristic

import (
	"github.com/notnil/chess"

	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/fen"
)

// Depth is the search depth reported for heuristic results.
const Depth = 1

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 320,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
}

// Evaluate scores fenStr from White's perspective. It never fails: a
// position the move generator rejects is scored on material alone, and
// an unreadable one as equal.
func Evaluate(fenStr string) eval.Result {
	pos, err := position(fenStr)
	if err != nil {
		return materialOnly(fenStr)
	}

	moves := pos.ValidMoves()
	if len(moves) == 0 {
		if pos.Status() == chess.Checkmate {
			// The side to move is already mated.
			return eval.NewResult(Depth, eval.Checkmate(pos.Turn() == chess.Black), "", nil, 1, eval.SourceHeuristic)
		}
		return eval.NewResult(Depth, eval.Centipawns(0), "", nil, 1, eval.SourceHeuristic)
	}

	white := pos.Turn() == chess.White
	var (
		best      *chess.Move
		bestScore eval.Score
	)
	for _, m := range moves {
		next := pos.Update(m)

		var s eval.Score
		if next.Status() == chess.Checkmate {
			if white {
				s = eval.MateIn(1)
			} else {
				s = eval.MateIn(-1)
			}
		} else {
			s = eval.Centipawns(Static(next))
		}

		if best == nil || better(s, bestScore, white) {
			best, bestScore = m, s
		}
	}

	return eval.NewResult(Depth, bestScore, best.String(), []string{best.String()}, int64(len(moves)), eval.SourceHeuristic)
}

// Static returns a centipawn score of pos from White's perspective.
func Static(pos *chess.Position) int {
	score := 0
	for sq, p := range pos.Board().SquareMap() {
		v := pieceValues[p.Type()] + centreBonus(sq, p.Type())
		if p.Color() == chess.White {
			score += v
		} else {
			score -= v
		}
	}
	return score
}

func centreBonus(sq chess.Square, pt chess.PieceType) int {
	if pt != chess.Pawn && pt != chess.Knight && pt != chess.Bishop {
		return 0
	}
	f, r := int(sq.File()), int(sq.Rank())
	switch {
	case (f == 3 || f == 4) && (r == 3 || r == 4):
		return 20
	case f >= 2 && f <= 5 && r >= 2 && r <= 5:
		return 10
	default:
		return 0
	}
}

// better reports whether a is preferable to b for the side to move.
func better(a, b eval.Score, white bool) bool {
	ra, rb := rank(a), rank(b)
	if white {
		return ra > rb
	}
	return ra < rb
}

// rank maps a White-perspective score onto one ordered scale: mates for
// White above every centipawn value, mates for Black below.
func rank(s eval.Score) int {
	const mateBase = 1_000_000
	if n, ok := s.Mate(); ok {
		if s.Sign() > 0 {
			return mateBase - n
		}
		return -mateBase - n
	}
	cp, _ := s.CP()
	return cp
}

func position(fenStr string) (*chess.Position, error) {
	full, err := fen.Complete(fenStr)
	if err != nil {
		return nil, err
	}
	opt, err := chess.FEN(full)
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt).Position(), nil
}

func materialOnly(fenStr string) eval.Result {
	m, err := fen.ParseMaterial(fenStr)
	if err != nil {
		return eval.NewResult(Depth, eval.Centipawns(0), "", nil, 0, eval.SourceHeuristic)
	}
	return eval.NewResult(Depth, eval.Centipawns(m.Balance()), "", nil, 0, eval.SourceHeuristic)
}
