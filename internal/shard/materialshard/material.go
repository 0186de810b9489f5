// Package materialshard groups positions by material signature.
//
// Positions from one game share few material signatures, so a game's
// lookups touch few shards and the shard cache stays warm.
package materialshard

import (
	"github.com/discochess/kibitz/internal/fen"
	"github.com/discochess/kibitz/internal/shard"
	"github.com/discochess/kibitz/internal/shard/fnvshard"
)

// Strategy implements material-based sharding.
type Strategy struct{}

var _ shard.Strategy = (*Strategy)(nil)

// New creates a new material-based sharding strategy.
func New() *Strategy {
	return &Strategy{}
}

// Name returns "material".
func (s *Strategy) Name() string {
	return "material"
}

// ShardID packs the material signature into 19 bits, three per piece
// group (queens, rooks, minors for each side, capped at 7) and one for the
// side to move, then reduces it modulo totalShards. Pawns are left out so
// that pawn moves do not change shard.
func (s *Strategy) ShardID(fenStr string, totalShards int) int {
	m, err := fen.ParseMaterial(fenStr)
	if err != nil {
		return fnvshard.Hash(fenStr, totalShards)
	}
	side, err := fen.SideToMove(fenStr)
	if err != nil {
		return fnvshard.Hash(fenStr, totalShards)
	}

	groups := [...]int{
		m.WhiteQueens,
		m.BlackQueens,
		m.WhiteRooks,
		m.BlackRooks,
		m.WhiteBishops + m.WhiteKnights,
		m.BlackBishops + m.BlackKnights,
	}

	var id uint32
	for i, n := range groups {
		id |= uint32(min(n, 7)) << (3 * i)
	}
	if side == fen.Black {
		id |= 1 << 18
	}

	return int(id % uint32(totalShards))
}
