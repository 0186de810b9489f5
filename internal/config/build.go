package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/cloud"
	"github.com/discochess/kibitz/internal/engine"
	"github.com/discochess/kibitz/internal/stats"
	"github.com/discochess/kibitz/internal/store"
	"github.com/discochess/kibitz/internal/store/cachedstore"
	"github.com/discochess/kibitz/internal/store/gcsstore"
	"github.com/discochess/kibitz/internal/store/s3store"
)

// Logger builds a zap logger: JSON in production, console in development.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// OpenBook opens the configured opening book. Remote shards are fronted
// by an LRU of CacheShards decompressed shards.
func (c Config) OpenBook(ctx context.Context, collector stats.Collector, logger *zap.Logger) (*book.Book, error) {
	opts := []book.Option{book.WithStats(collector), book.WithLogger(logger)}

	b := c.Book
	switch {
	case b.DataDir != "":
		dir, err := book.WithDataDir(b.DataDir)
		if err != nil {
			return nil, fmt.Errorf("book.data_dir: %w", err)
		}
		opts = append(opts, dir)

	case b.S3Bucket != "" || b.GCSBucket != "":
		layout, err := book.WithManifest(&book.Manifest{
			TotalShards: b.TotalShards,
			Strategy:    b.Strategy,
			Compression: b.Compression,
		})
		if err != nil {
			return nil, fmt.Errorf("book: %w", err)
		}
		remote, err := c.openRemote(ctx)
		if err != nil {
			return nil, err
		}
		cached, err := cachedstore.New(remote, b.CacheShards, cachedstore.WithStats(collector))
		if err != nil {
			_ = remote.Close()
			return nil, fmt.Errorf("book cache: %w", err)
		}
		opts = append(opts, layout, book.WithStore(cached))
	}

	return book.New(opts...)
}

func (c Config) openRemote(ctx context.Context) (store.Store, error) {
	b := c.Book
	codec, err := book.CodecByName(b.Compression)
	if err != nil {
		return nil, fmt.Errorf("book.compression: %w", err)
	}

	if b.S3Bucket != "" {
		st, err := s3store.New(ctx, b.S3Bucket, codec,
			s3store.WithPrefix(b.S3Prefix),
			s3store.WithRegion(b.S3Region),
			s3store.WithEndpoint(b.S3Endpoint),
		)
		if err != nil {
			return nil, fmt.Errorf("book.s3_bucket: %w", err)
		}
		return st, nil
	}

	st, err := gcsstore.New(ctx, b.GCSBucket, codec, gcsstore.WithPrefix(b.GCSPrefix))
	if err != nil {
		return nil, fmt.Errorf("book.gcs_bucket: %w", err)
	}
	return st, nil
}

// CloudClient returns the configured cloud client, or nil when the cloud
// is disabled.
func (c Config) CloudClient(collector stats.Collector, logger *zap.Logger) *cloud.Client {
	if !c.Cloud.Enabled {
		return nil
	}
	return cloud.New(
		cloud.WithBaseURL(c.Cloud.BaseURL),
		cloud.WithTimeout(c.Cloud.Timeout),
		cloud.WithMaxConcurrent(c.Cloud.MaxConcurrent),
		cloud.WithAcquireTimeout(c.Cloud.AcquireTimeout),
		cloud.WithStats(collector),
		cloud.WithLogger(logger),
	)
}

// ServiceOptions translates the configuration into service options.
// b may be nil, in which case the service uses the built-in book.
func (c Config) ServiceOptions(b *book.Book, collector stats.Collector, logger *zap.Logger) []kibitz.Option {
	opts := []kibitz.Option{
		kibitz.WithQueueLength(c.Limits.QueueLength),
		kibitz.WithRateLimit(c.Limits.RatePerMinute),
		kibitz.WithMaxDepth(c.Limits.MaxDepth),
		kibitz.WithLocalTimeout(c.Timeouts.Local),
		kibitz.WithCloudTimeout(c.Cloud.Timeout),
		kibitz.WithCacheCapacity(c.Cache.Capacity),
		kibitz.WithCacheTTL(c.Cache.TTL),
		kibitz.WithSweepInterval(c.Cache.SweepInterval),
		kibitz.WithRestart(c.Engine.RestartAttempts, c.Engine.RestartBackoff),
		kibitz.WithStats(collector),
		kibitz.WithLogger(logger),
	}

	if e := c.Engine; e.Path != "" {
		engineOpts := []engine.Option{
			engine.WithStartTimeout(e.StartTimeout),
			engine.WithStopTimeout(e.StopTimeout),
		}
		if e.Threads > 0 {
			engineOpts = append(engineOpts, engine.WithSetting("Threads", e.Threads))
		}
		if e.HashMB > 0 {
			engineOpts = append(engineOpts, engine.WithSetting("Hash", e.HashMB))
		}
		opts = append(opts, kibitz.WithEngine(&engine.ExecTransport{Path: e.Path, Args: e.Args}, engineOpts...))
	}
	if cl := c.CloudClient(collector, logger); cl != nil {
		opts = append(opts, kibitz.WithCloud(cl))
	}
	if b != nil {
		opts = append(opts, kibitz.WithBook(b))
	}
	return opts
}
