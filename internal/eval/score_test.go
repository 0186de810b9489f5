package eval

import (
	"encoding/json"
	"testing"
)

func TestScore_String(t *testing.T) {
	tests := []struct {
		name  string
		score Score
		want  string
	}{
		{"positive cp", Centipawns(20), "+0.20"},
		{"negative cp", Centipawns(-105), "-1.05"},
		{"zero", Centipawns(0), "+0.00"},
		{"large cp", Centipawns(1234), "+12.34"},
		{"white mates", MateIn(3), "#3"},
		{"black mates", MateIn(-3), "#-3"},
		{"white has mated", Checkmate(true), "#+0"},
		{"black has mated", Checkmate(false), "#-0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.score.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScore_MateIsDistinct(t *testing.T) {
	white := MateIn(3)
	black := MateIn(-3)
	if white == black {
		t.Fatal("mate 3 and mate -3 compare equal")
	}
	if white == Centipawns(3) {
		t.Fatal("mate 3 compares equal to 3 centipawns")
	}
	if !white.IsMate() || !black.IsMate() {
		t.Fatal("IsMate() = false for mate score")
	}
	if n, ok := black.Mate(); !ok || n != -3 {
		t.Errorf("Mate() = %d, %v; want -3, true", n, ok)
	}
	if _, ok := white.CP(); ok {
		t.Error("CP() ok for mate score")
	}
}

func TestScore_Pawns(t *testing.T) {
	if got := Centipawns(20).Pawns(); got != 0.2 {
		t.Errorf("Pawns() = %v, want 0.2", got)
	}
	if got := MateIn(2).Pawns(); got != 0 {
		t.Errorf("Pawns() for mate = %v, want 0", got)
	}
}

func TestScore_JSON(t *testing.T) {
	tests := []struct {
		score Score
		want  string
	}{
		{Centipawns(-35), `{"cp":-35}`},
		{MateIn(-4), `{"mate":-4}`},
		{Checkmate(true), `{"mate":0,"winner":"white"}`},
		{Checkmate(false), `{"mate":0,"winner":"black"}`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.score)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if string(data) != tt.want {
			t.Errorf("Marshal() = %s, want %s", data, tt.want)
		}
		var back Score
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if back != tt.score {
			t.Errorf("Unmarshal() = %+v, want %+v", back, tt.score)
		}
	}

	var s Score
	if err := json.Unmarshal([]byte(`{}`), &s); err == nil {
		t.Error("Unmarshal({}) succeeded, want error")
	}
}

func TestNewResult_CopiesPV(t *testing.T) {
	pv := []string{"e2e4", "e7e5"}
	r := NewResult(10, Centipawns(20), "", pv, 1000, SourceLocalEngine)

	pv[0] = "d2d4"
	if r.PV[0] != "e2e4" {
		t.Errorf("PV aliased caller slice: %v", r.PV)
	}
	if r.BestMove != "e2e4" {
		t.Errorf("BestMove = %q, want e2e4 from PV head", r.BestMove)
	}

	stamped := r.WithSource(SourceCache)
	stamped.PV[0] = "g1f3"
	if r.PV[0] != "e2e4" {
		t.Error("WithSource shares PV backing array with original")
	}
	if r.Source != SourceLocalEngine || stamped.Source != SourceCache {
		t.Errorf("sources = %v / %v", r.Source, stamped.Source)
	}
}

func TestSource_Text(t *testing.T) {
	for _, src := range []Source{SourceLocalEngine, SourceCloud, SourceOpeningBook, SourceHeuristic, SourceCache} {
		text, _ := src.MarshalText()
		var back Source
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s) error = %v", text, err)
		}
		if back != src {
			t.Errorf("round trip %v -> %s -> %v", src, text, back)
		}
	}
}

func TestCheckmate_CarriesWinner(t *testing.T) {
	white, black := Checkmate(true), Checkmate(false)
	if white == black {
		t.Fatal("checkmates by White and Black compare equal")
	}
	for _, s := range []Score{white, black} {
		if n, ok := s.Mate(); !ok || n != 0 {
			t.Errorf("%v Mate() = %d, %v; want 0, true", s, n, ok)
		}
	}
	if white.Sign() != 1 || black.Sign() != -1 {
		t.Errorf("Sign() = %d, %d; want 1, -1", white.Sign(), black.Sign())
	}
	if white.Negate() != black {
		t.Errorf("Negate() = %v, want %v", white.Negate(), black)
	}
}
