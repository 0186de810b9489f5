package shard_test

import (
	"testing"

	"github.com/discochess/kibitz/internal/shard"
	"github.com/discochess/kibitz/internal/shard/fnvshard"
	"github.com/discochess/kibitz/internal/shard/materialshard"
)

var positions = []string{
	"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
	"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",
	"8/8/8/4k3/8/8/4K3/4R3 w - - 0 1",
	"r1bqkb1r/pppp1ppp/2n2n2/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4",
	"not a fen at all",
}

func TestStrategies(t *testing.T) {
	strategies := []struct {
		s    shard.Strategy
		name string
	}{
		{fnvshard.New(), "fnv32"},
		{materialshard.New(), "material"},
	}

	for _, st := range strategies {
		t.Run(st.name, func(t *testing.T) {
			if got := st.s.Name(); got != st.name {
				t.Errorf("Name() = %q, want %q", got, st.name)
			}
			for _, total := range []int{1, 7, 32768} {
				for _, fen := range positions {
					id := st.s.ShardID(fen, total)
					if id < 0 || id >= total {
						t.Errorf("ShardID(%q, %d) = %d, out of range", fen, total, id)
					}
					if again := st.s.ShardID(fen, total); again != id {
						t.Errorf("ShardID(%q) not stable: %d then %d", fen, id, again)
					}
				}
			}

			// Move counters do not change the shard.
			a := st.s.ShardID("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 32768)
			b := st.s.ShardID("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 7 30", 32768)
			if a != b {
				t.Errorf("counters changed shard: %d vs %d", a, b)
			}
		})
	}
}

func TestMaterial_GroupsPawnMoves(t *testing.T) {
	s := materialshard.New()
	before := s.ShardID("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 32768)
	after := s.ShardID("rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2", 32768)
	if before != after {
		t.Errorf("pawn moves changed shard: %d vs %d", before, after)
	}

	// The side-to-move bit sits above the 18 material bits, so it only
	// survives a shard count of at least 1<<19.
	white := s.ShardID("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 1<<19)
	black := s.ShardID("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", 1<<19)
	if black != white|1<<18 {
		t.Errorf("black to move = %d, want %d", black, white|1<<18)
	}
}

func TestMaterial_Encoding(t *testing.T) {
	s := materialshard.New()
	// Start position: 1 queen, 2 rooks, 4 minors each side, white to move.
	want := 1 | 1<<3 | 2<<6 | 2<<9 | 4<<12 | 4<<15
	if got := s.ShardID("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 1<<19); got != want {
		t.Errorf("ShardID() = %d, want %d", got, want)
	}
}
