package book

import (
	"errors"
	"testing"

	"github.com/discochess/kibitz/internal/eval"
)

const sampleShard = `{"fen":"8/8/8/4k3/8/8/4K3/4R3 w - -","evals":[{"pvs":[{"mate":7,"line":"e1e3 d5c4"}],"knodes":1000,"depth":20}]}
{"fen":"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq -","evals":[{"pvs":[{"cp":25,"line":"f1b5 a7a6"}],"knodes":2000,"depth":25}]}
{"fen":"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -","evals":[{"pvs":[{"cp":18,"line":"e2e4"}],"knodes":50,"depth":12},{"pvs":[{"cp":20,"line":"e2e4 e7e5"}],"knodes":3000,"depth":30}]}
`

func TestSearch(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		wantScore eval.Score
		wantDepth int
		wantMove  string
		wantErr   error
	}{
		{
			name:      "start position picks deepest analysis",
			key:       "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -",
			wantScore: eval.Centipawns(20),
			wantDepth: 30,
			wantMove:  "e2e4",
		},
		{
			name:      "mate score",
			key:       "8/8/8/4k3/8/8/4K3/4R3 w - -",
			wantScore: eval.MateIn(7),
			wantDepth: 20,
			wantMove:  "e1e3",
		},
		{
			name:      "middle of shard",
			key:       "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq -",
			wantScore: eval.Centipawns(25),
			wantDepth: 25,
			wantMove:  "f1b5",
		},
		{
			name:    "not found",
			key:     "8/8/8/8/8/8/8/4K2k w - -",
			wantErr: eval.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Search([]byte(sampleShard), tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Search() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}

			res, err := rec.Result()
			if err != nil {
				t.Fatalf("Result() error = %v", err)
			}
			if res.Score != tt.wantScore || res.Depth != tt.wantDepth || res.BestMove != tt.wantMove {
				t.Errorf("Result() = %v depth %d %s, want %v depth %d %s",
					res.Score, res.Depth, res.BestMove, tt.wantScore, tt.wantDepth, tt.wantMove)
			}
			if res.Source != eval.SourceOpeningBook {
				t.Errorf("Source = %v, want opening book", res.Source)
			}
		})
	}
}

func TestSearch_EmptyData(t *testing.T) {
	if _, err := Search(nil, "8/8/8/8/8/8/8/K6k w - -"); !errors.Is(err, eval.ErrNotFound) {
		t.Errorf("Search() error = %v, want ErrNotFound", err)
	}
}

func TestRecord_ResultWithoutPV(t *testing.T) {
	rec := &Record{FEN: "8/8/8/8/8/8/8/K6k w - -", Evals: []Analysis{{Depth: 10}}}
	if _, err := rec.Result(); !errors.Is(err, eval.ErrNotFound) {
		t.Errorf("Result() error = %v, want ErrNotFound", err)
	}
}

func TestExtractFEN(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"valid json", `{"fen":"8/8/8/4k3/8/8/4K3/4R3 w - -","evals":[]}`, "8/8/8/4k3/8/8/4K3/4R3 w - -"},
		{"no fen field", `{"other":"value"}`, ""},
		{"malformed", `{"fen":}`, ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractFEN([]byte(tt.line)); got != tt.want {
				t.Errorf("ExtractFEN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSortLines(t *testing.T) {
	lines := [][]byte{
		[]byte(`{"fen":"c"}`),
		[]byte(`{"fen":"a"}`),
		[]byte(`{"fen":"b"}`),
	}
	SortLines(lines)

	for i, want := range []string{"a", "b", "c"} {
		if got := ExtractFEN(lines[i]); got != want {
			t.Errorf("lines[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		data  string
		count int
	}{
		{"line1", 1},
		{"line1\nline2\nline3", 3},
		{"line1\nline2\n", 2},
		{"line1\n\nline2\n\n", 2},
		{"", 0},
	}

	for _, tt := range tests {
		if got := len(splitLines([]byte(tt.data))); got != tt.count {
			t.Errorf("splitLines(%q) returned %d lines, want %d", tt.data, got, tt.count)
		}
	}
}

func BenchmarkSearch(b *testing.B) {
	var data []byte
	for i := 0; i < 1000; i++ {
		key := "position" + string(rune('A'+i/26)) + string(rune('A'+i%26))
		data = append(data, `{"fen":"`+key+`","evals":[{"pvs":[{"cp":0,"line":"e2e4"}],"knodes":1000,"depth":20}]}`+"\n"...)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Search(data, "positionMN")
	}
}
