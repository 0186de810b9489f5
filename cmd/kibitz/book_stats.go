package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/builder"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics about a built book",
	Long: `Display statistics about the book including:
- Layout recorded in the manifest
- Number of shards on disk
- Total size on disk`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	bookCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	if err := requireDir(bookDataDir); err != nil {
		return err
	}
	m, err := book.ReadManifest(bookDataDir)
	if err != nil {
		return err
	}
	c, err := m.Codec()
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(filepath.Join(bookDataDir, "shards"))
	if err != nil {
		return fmt.Errorf("reading shards directory: %w", err)
	}
	var shardCount int
	var totalSize int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), c.Extension()) {
			continue
		}
		shardCount++
		if info, err := entry.Info(); err == nil {
			totalSize += info.Size()
		}
	}

	fmt.Printf("Data directory: %s\n", bookDataDir)
	fmt.Printf("Positions:      %d\n", m.RecordCount)
	fmt.Printf("Shards:         %d of %d\n", shardCount, m.TotalShards)
	fmt.Printf("Strategy:       %s\n", m.Strategy)
	fmt.Printf("Compression:    %s\n", m.Compression)
	fmt.Printf("Total size:     %s\n", builder.FormatBytes(totalSize))
	if !m.BuiltAt.IsZero() {
		fmt.Printf("Built:          %s\n", m.BuiltAt.Format(time.RFC3339))
	}
	if m.Source != "" {
		fmt.Printf("Source:         %s\n", m.Source)
	}
	return nil
}
