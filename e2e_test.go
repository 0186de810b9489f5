//go:build e2e

package kibitz_test

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/engine"
)

// TestE2E_Stockfish runs the service against a real engine binary, taken
// from $KIBITZ_ENGINE or "stockfish" on the PATH.
func TestE2E_Stockfish(t *testing.T) {
	path := os.Getenv("KIBITZ_ENGINE")
	if path == "" {
		var err error
		if path, err = exec.LookPath("stockfish"); err != nil {
			t.Skip("Skipping: no engine binary (set KIBITZ_ENGINE)")
		}
	}

	svc, err := kibitz.New(
		kibitz.WithEngine(&engine.ExecTransport{Path: path},
			engine.WithSetting("Threads", 1),
			engine.WithSetting("Hash", 16),
		),
		kibitz.WithLocalTimeout(30*time.Second),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.Close()

	// Scholar's mate threat: black to move, must defend f7.
	positions := []string{
		startFEN,
		"r1bqkbnr/pppp1ppp/2n5/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR b KQkq - 3 3",
		offBookFEN,
	}
	for i, pos := range positions {
		sess, err := svc.Analyze(ctx, pos, 14, "e2e")
		if err != nil {
			t.Fatalf("Analyze(%d) error = %v", i, err)
		}
		last := 0
		var final kibitz.Result
		for u := range sess.Updates() {
			if u.Result.Depth < last {
				t.Errorf("position %d: depth went from %d to %d", i, last, u.Result.Depth)
			}
			last = u.Result.Depth
			if u.Final {
				final = u.Result
			}
		}
		if final.Source != kibitz.SourceLocalEngine {
			t.Errorf("position %d: Source = %v, want local engine", i, final.Source)
		}
		if final.Depth != 14 || final.BestMove == "" {
			t.Errorf("position %d: final = %+v, want a depth-14 move", i, final)
		}
		t.Logf("   %d: %s %s depth %d", i, final.Score, final.BestMove, final.Depth)
	}
}

func TestE2E_RealBook(t *testing.T) {
	sourceFile := "./data/lichess_db_eval.jsonl.zst"
	if _, err := os.Stat(sourceFile); os.IsNotExist(err) {
		t.Skip("Skipping: lichess_db_eval.jsonl.zst not found in data/")
	}

	tmpDir := t.TempDir()
	sampleFile := filepath.Join(tmpDir, "sample.jsonl")
	dataDir := filepath.Join(tmpDir, "data")

	t.Log("Extracting 10,000 sample positions...")
	start := time.Now()
	fens, err := extractSample(sourceFile, sampleFile, 10000)
	if err != nil {
		t.Fatalf("Error extracting sample: %v", err)
	}
	t.Logf("   Extracted %d positions in %v", len(fens), time.Since(start))

	t.Log("Building shards...")
	start = time.Now()
	cmd := exec.Command("go", "run", "./cmd/kibitz", "book", "build",
		"--source", sampleFile,
		"--output", dataDir,
		"--shards", "64",
		"--workers", "4",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("Error building: %v", err)
	}
	t.Logf("   Built shards in %v", time.Since(start))

	dirOpt, err := book.WithDataDir(dataDir)
	if err != nil {
		t.Fatalf("Error opening data dir: %v", err)
	}
	b, err := book.New(dirOpt, book.WithoutBuiltin())
	if err != nil {
		t.Fatalf("Error creating book: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	found := 0
	var totalTime time.Duration

	testCount := min(100, len(fens))
	for i := 0; i < testCount; i++ {
		start := time.Now()
		r, err := b.Lookup(ctx, fens[i])
		totalTime += time.Since(start)
		if err != nil {
			continue
		}
		found++
		if i < 5 {
			t.Logf("   %s: %s %s depth %d", fens[i], r.Score, r.BestMove, r.Depth)
		}
	}

	t.Logf("Tested %d, found %d (%.1f%%), avg %v",
		testCount, found, float64(found)/float64(testCount)*100, totalTime/time.Duration(testCount))

	if found < testCount/2 {
		t.Errorf("Expected to find at least 50%% of positions, found %d/%d", found, testCount)
	}
}

func extractSample(source, dest string, count int) ([]string, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	out, err := os.Create(dest)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	scanner := bufio.NewScanner(decoder)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	var fens []string
	for n := 0; scanner.Scan() && n < count; n++ {
		line := scanner.Text()
		if _, err := out.WriteString(line + "\n"); err != nil {
			return nil, err
		}
		if idx := strings.Index(line, `"fen":"`); idx >= 0 {
			rest := line[idx+7:]
			if end := strings.Index(rest, `"`); end > 0 {
				fens = append(fens, rest[:end])
			}
		}
	}
	return fens, scanner.Err()
}
