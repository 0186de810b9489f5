package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/builder"
	"github.com/discochess/kibitz/internal/store"
	"github.com/discochess/kibitz/internal/store/diskstore"
	"github.com/discochess/kibitz/internal/store/gcsstore"
	"github.com/discochess/kibitz/internal/store/s3store"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the opening book from a Lichess evaluation dump",
	Long: `Shard a Lichess evaluation dump (JSONL, optionally .zst or .gz) into
an opening book.

This command will:
1. Read the evaluations, normalizing each FEN to its position key
2. Distribute positions to shards using the configured strategy
3. Sort positions within each shard by key
4. Compress and write each shard, then write manifest.json

The dump is published at:
  ` + builder.DefaultSourceURL + `

Examples:
  # Build to a local directory
  kibitz book build --source ./lichess_db_eval.jsonl.zst --output ./data

  # Specify number of shards and strategy
  kibitz book build --source ./evals.jsonl --output ./data --shards 4096 --strategy fnv32

  # Write shards to S3 (the manifest is still written to --output)
  kibitz book build --source ./lichess_db_eval.jsonl.zst --output-s3 s3://evals/book`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

var (
	sourcePath   string
	outputDir    string
	outputS3     string
	outputGCS    string
	totalShards  int
	strategyName string
	compression  string
	workers      int
	maxMemoryMB  int
	tempDir      string
)

func init() {
	buildCmd.Flags().StringVar(&sourcePath, "source", "", "local evaluation dump (.jsonl, .jsonl.zst or .jsonl.gz)")
	buildCmd.Flags().StringVarP(&outputDir, "output", "o", "./data", "output directory for shards and manifest")
	buildCmd.Flags().StringVar(&outputS3, "output-s3", "", "write shards to s3://bucket/prefix")
	buildCmd.Flags().StringVar(&outputGCS, "output-gcs", "", "write shards to gs://bucket/prefix")
	buildCmd.Flags().IntVar(&totalShards, "shards", book.DefaultTotalShards, "number of shards to create")
	buildCmd.Flags().StringVar(&strategyName, "strategy", "material", "sharding strategy: material, fnv32")
	buildCmd.Flags().StringVar(&compression, "compression", "zstd", "shard compression: zstd, gzip, none")
	buildCmd.Flags().IntVar(&workers, "workers", 4, "number of parallel workers for compression")
	buildCmd.Flags().IntVar(&maxMemoryMB, "max-memory", 1024, "max memory in MB before spilling to disk (lower = less RAM usage)")
	buildCmd.Flags().StringVar(&tempDir, "temp-dir", "", "directory for spill files")
	_ = buildCmd.MarkFlagRequired("source")
	buildCmd.MarkFlagsMutuallyExclusive("output-s3", "output-gcs")
	bookCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	strategy, err := book.StrategyByName(strategyName)
	if err != nil {
		return err
	}
	codec, err := book.CodecByName(compression)
	if err != nil {
		return err
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return fmt.Errorf("source: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := quietLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	var dst store.Writer
	target := outputDir
	switch {
	case outputS3 != "":
		bucket, prefix, err := parseBucketURL(outputS3, "s3")
		if err != nil {
			return err
		}
		dst, err = s3store.New(ctx, bucket, codec,
			s3store.WithPrefix(prefix),
			s3store.WithRegion(cfg.Book.S3Region),
			s3store.WithEndpoint(cfg.Book.S3Endpoint),
		)
		if err != nil {
			return err
		}
		target = outputS3
	case outputGCS != "":
		bucket, prefix, err := parseBucketURL(outputGCS, "gs")
		if err != nil {
			return err
		}
		dst, err = gcsstore.New(ctx, bucket, codec, gcsstore.WithPrefix(prefix))
		if err != nil {
			return err
		}
		target = outputGCS
	default:
		dst, err = diskstore.New(outputDir, codec)
		if err != nil {
			return err
		}
	}
	defer dst.Close()

	b := builder.NewBuilder(dst,
		builder.WithTotalShards(totalShards),
		builder.WithStrategy(strategy),
		builder.WithCompression(codec.Name()),
		builder.WithWorkers(workers),
		builder.WithMaxMemoryMB(maxMemoryMB),
		builder.WithTempDir(tempDir),
		builder.WithProgress(builder.TextProgress(os.Stdout)),
		builder.WithLogger(log),
	)

	fmt.Printf("Building opening book\n")
	fmt.Printf("  Source:      %s\n", sourcePath)
	fmt.Printf("  Output:      %s\n", target)
	fmt.Printf("  Shards:      %d\n", totalShards)
	fmt.Printf("  Strategy:    %s\n", strategy.Name())
	fmt.Printf("  Compression: %s\n", codec.Name())
	fmt.Printf("  Workers:     %d\n", workers)
	fmt.Printf("  Max Memory:  %d MB\n", maxMemoryMB)
	fmt.Println()

	m, err := b.BuildFromFile(ctx, sourcePath)
	if err != nil {
		return err
	}
	if err := book.WriteManifest(outputDir, m); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Wrote %d positions to %d shards (%d lines skipped)\n", m.RecordCount, m.ShardCount, m.Skipped)
	return nil
}
