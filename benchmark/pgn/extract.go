// Package pgn turns PGN game collections into position sequences that can be
// replayed against an analysis service.
package pgn

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/notnil/chess"

	"github.com/discochess/kibitz/internal/fen"
)

// Game is one parsed game. Positions holds the full FEN of every position,
// starting with the initial one.
type Game struct {
	White     string
	Black     string
	Result    string
	Positions []string
}

// Title returns "White vs Black (Result)".
func (g Game) Title() string {
	return fmt.Sprintf("%s vs %s (%s)", g.White, g.Black, g.Result)
}

// Read parses up to limit games from r. A limit of 0 reads everything.
// Games without any moves are skipped.
func Read(r io.Reader, limit int) ([]Game, error) {
	scanner := chess.NewScanner(r)

	var games []Game
	for scanner.Scan() {
		if limit > 0 && len(games) >= limit {
			break
		}
		g := scanner.Next()
		if len(g.Moves()) == 0 {
			continue
		}
		games = append(games, fromGame(g))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return games, fmt.Errorf("reading PGN: %w", err)
	}
	return games, nil
}

// Parse parses a single game from its PGN text.
func Parse(text string) (Game, error) {
	update, err := chess.PGN(strings.NewReader(text))
	if err != nil {
		return Game{}, fmt.Errorf("parsing PGN: %w", err)
	}
	return fromGame(chess.NewGame(update)), nil
}

func fromGame(g *chess.Game) Game {
	positions := g.Positions()
	out := Game{
		White:     tag(g, "White"),
		Black:     tag(g, "Black"),
		Result:    tag(g, "Result"),
		Positions: make([]string, len(positions)),
	}
	for i, pos := range positions {
		out.Positions[i] = pos.String()
	}
	return out
}

func tag(g *chess.Game, key string) string {
	if tp := g.GetTagPair(key); tp != nil {
		return tp.Value
	}
	return "?"
}

// Stats summarizes a game collection.
type Stats struct {
	Games           int
	Positions       int
	UniquePositions int
	AvgPlies        float64
}

// Summarize counts positions across games. Positions are deduplicated by
// their cache key, so move counters do not make two positions distinct.
func Summarize(games []Game) Stats {
	seen := make(map[fen.Key]struct{})
	var st Stats
	st.Games = len(games)
	for _, g := range games {
		st.Positions += len(g.Positions)
		for _, p := range g.Positions {
			k, err := fen.KeyOf(p)
			if err != nil {
				continue
			}
			seen[k] = struct{}{}
		}
	}
	st.UniquePositions = len(seen)
	if st.Games > 0 {
		st.AvgPlies = float64(st.Positions-st.Games) / float64(st.Games)
	}
	return st
}
