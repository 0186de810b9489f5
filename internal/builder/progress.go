// Package builder turns a Lichess-format evaluation dump into a sharded
// opening book.
package builder

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Build phases reported through Progress.
const (
	PhaseRead  = "read"
	PhaseShard = "shard"
	PhaseDone  = "done"
)

// Progress tracks build progress.
type Progress struct {
	Phase          string
	BytesRead      int64
	BytesTotal     int64
	RecordsRead    int64
	RecordsSkipped int64
	RecordsWritten int64
	ShardsCreated  int
	ShardsTotal    int
	StartTime      time.Time
}

// ProgressFunc is called periodically with progress updates.
type ProgressFunc func(Progress)

// progressReader counts the bytes read through it.
type progressReader struct {
	r    io.Reader
	read *atomic.Int64
}

func newProgressReader(r io.Reader, counter *atomic.Int64) *progressReader {
	return &progressReader{r: r, read: counter}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.read.Add(int64(n))
	return n, err
}

// FormatBytes formats bytes as human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats duration as human-readable string.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// TextProgress returns a ProgressFunc that redraws one status line on w.
func TextProgress(w io.Writer) ProgressFunc {
	return func(p Progress) {
		switch p.Phase {
		case PhaseRead:
			if p.BytesTotal > 0 {
				fmt.Fprintf(w, "\r[Read] %s / %s, %d records",
					FormatBytes(p.BytesRead), FormatBytes(p.BytesTotal), p.RecordsRead)
			} else {
				fmt.Fprintf(w, "\r[Read] %d records", p.RecordsRead)
			}
		case PhaseShard:
			fmt.Fprintf(w, "\r[Shard] %d / %d shards written, %d records",
				p.ShardsCreated, p.ShardsTotal, p.RecordsWritten)
		case PhaseDone:
			fmt.Fprintf(w, "\n[Done] %d records in %d shards, %d skipped (%s)\n",
				p.RecordsWritten, p.ShardsCreated, p.RecordsSkipped, FormatDuration(time.Since(p.StartTime)))
		}
	}
}
