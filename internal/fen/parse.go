// Package fen provides FEN (Forsyth-Edwards Notation) parsing utilities.
package fen

import (
	"errors"
	"strings"
)

// ErrInvalidFEN indicates the FEN string is malformed.
var ErrInvalidFEN = errors.New("invalid FEN notation")

// Key identifies a position independently of the halfmove clock and
// fullmove number, which affect neither the best move nor the evaluation.
type Key string

// Color is the side to move.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "b"
	}
	return "w"
}

// Material represents the piece counts for both sides.
type Material struct {
	WhitePawns   int
	WhiteKnights int
	WhiteBishops int
	WhiteRooks   int
	WhiteQueens  int

	BlackPawns   int
	BlackKnights int
	BlackBishops int
	BlackRooks   int
	BlackQueens  int
}

// Balance returns White's material advantage in centipawns using the
// classic 1/3/3/5/9 piece values.
func (m Material) Balance() int {
	white := m.WhitePawns*100 + (m.WhiteKnights+m.WhiteBishops)*300 + m.WhiteRooks*500 + m.WhiteQueens*900
	black := m.BlackPawns*100 + (m.BlackKnights+m.BlackBishops)*300 + m.BlackRooks*500 + m.BlackQueens*900
	return white - black
}

// Normalize returns the first four FEN fields (placement, side to move,
// castling rights, en passant square) after validating them.
func Normalize(fen string) (string, error) {
	parts := strings.Fields(fen)
	if len(parts) < 4 {
		return "", ErrInvalidFEN
	}
	if !isValidPiecePlacement(parts[0]) {
		return "", ErrInvalidFEN
	}
	if parts[1] != "w" && parts[1] != "b" {
		return "", ErrInvalidFEN
	}
	return strings.Join(parts[:4], " "), nil
}

// KeyOf returns the cache/lookup key for fen.
func KeyOf(fen string) (Key, error) {
	n, err := Normalize(fen)
	if err != nil {
		return "", err
	}
	return Key(n), nil
}

// Complete returns fen with default counters appended when they are
// missing, so that engines which insist on six fields accept it.
func Complete(fen string) (string, error) {
	parts := strings.Fields(fen)
	n, err := Normalize(fen)
	if err != nil {
		return "", err
	}
	switch len(parts) {
	case 4:
		return n + " 0 1", nil
	case 5:
		return n + " " + parts[4] + " 1", nil
	default:
		return strings.Join(parts[:6], " "), nil
	}
}

// ParseMaterial extracts material counts from a FEN string.
func ParseMaterial(fen string) (Material, error) {
	parts := strings.Fields(fen)
	if len(parts) == 0 {
		return Material{}, ErrInvalidFEN
	}

	var m Material
	for _, ch := range parts[0] {
		switch ch {
		case 'P':
			m.WhitePawns++
		case 'N':
			m.WhiteKnights++
		case 'B':
			m.WhiteBishops++
		case 'R':
			m.WhiteRooks++
		case 'Q':
			m.WhiteQueens++
		case 'p':
			m.BlackPawns++
		case 'n':
			m.BlackKnights++
		case 'b':
			m.BlackBishops++
		case 'r':
			m.BlackRooks++
		case 'q':
			m.BlackQueens++
		case 'K', 'k', '/', '1', '2', '3', '4', '5', '6', '7', '8':
		default:
			return Material{}, ErrInvalidFEN
		}
	}

	return m, nil
}

// SideToMove returns the side to move in fen.
func SideToMove(fen string) (Color, error) {
	parts := strings.Fields(fen)
	if len(parts) < 2 {
		return White, ErrInvalidFEN
	}
	switch parts[1] {
	case "w":
		return White, nil
	case "b":
		return Black, nil
	default:
		return White, ErrInvalidFEN
	}
}

func isValidPiecePlacement(placement string) bool {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return false
	}

	for _, rank := range ranks {
		squares := 0
		for _, ch := range rank {
			switch {
			case ch >= '1' && ch <= '8':
				squares += int(ch - '0')
			case strings.ContainsRune("PNBRQKpnbrqk", ch):
				squares++
			default:
				return false
			}
		}
		if squares != 8 {
			return false
		}
	}

	return true
}
