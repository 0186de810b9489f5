package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/builder"
	"github.com/discochess/kibitz/internal/store/diskstore"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of a built book",
	Long: `Verify that every shard of the book is valid.

This command checks:
- Each shard can be decompressed
- Each line is a record with a normalized position key
- Positions are sorted within each shard
- Each position lives in the shard its strategy assigns
- Record counts match the manifest`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	bookCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
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
	src, err := diskstore.New(bookDataDir, c)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Verifying %d shards...\n", m.TotalShards)
	report, err := builder.Verify(ctx, src, m)
	if err != nil {
		return err
	}

	fmt.Printf("Shards present: %d\n", report.ShardsPresent)
	fmt.Printf("Shards missing: %d\n", report.ShardsMissing)
	fmt.Printf("Records:        %d\n", report.Records)
	if report.OK() {
		fmt.Println("OK")
		return nil
	}
	for _, p := range report.Problems {
		fmt.Printf("  ERROR: %s\n", p)
	}
	return fmt.Errorf("verification failed with %d problems", len(report.Problems))
}
