// Package config loads the kibitz server configuration from YAML.
//
// Every field has a default, so an empty file (or no file) is a valid
// configuration. Durations are written as Go duration strings ("5s", "30m").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/cloud"
	"github.com/discochess/kibitz/internal/store/cachedstore"
)

// Config is the complete server configuration.
type Config struct {
	Engine   Engine   `yaml:"engine"`
	Cloud    Cloud    `yaml:"cloud"`
	Book     Book     `yaml:"book"`
	Cache    Cache    `yaml:"cache"`
	Limits   Limits   `yaml:"limits"`
	Timeouts Timeouts `yaml:"timeouts"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
}

// Engine configures the local UCI engine. An empty Path disables it.
type Engine struct {
	Path            string        `yaml:"path"`
	Args            []string      `yaml:"args"`
	Threads         int           `yaml:"threads"`
	HashMB          int           `yaml:"hash_mb"`
	StartTimeout    time.Duration `yaml:"start_timeout"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`
	RestartAttempts int           `yaml:"restart_attempts"`
	RestartBackoff  time.Duration `yaml:"restart_backoff"`
}

// Cloud configures the remote evaluation service.
type Cloud struct {
	Enabled        bool          `yaml:"enabled"`
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// Book configures the sharded opening book. At most one of DataDir,
// S3Bucket and GCSBucket may be set; with none, only the built-in
// positions are served.
type Book struct {
	DataDir     string `yaml:"data_dir"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Prefix    string `yaml:"s3_prefix"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	GCSBucket   string `yaml:"gcs_bucket"`
	GCSPrefix   string `yaml:"gcs_prefix"`
	CacheShards int    `yaml:"cache_shards"`

	// Layout of a remote book. A data_dir book reads it from its manifest.
	TotalShards int    `yaml:"total_shards"`
	Strategy    string `yaml:"strategy"`
	Compression string `yaml:"compression"`
}

// Cache configures the result cache.
type Cache struct {
	Capacity      int           `yaml:"capacity"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Limits bounds per-caller and global load.
type Limits struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	QueueLength   int `yaml:"queue_length"`
	MaxDepth      int `yaml:"max_depth"`
}

// Timeouts bounds each fallback stage.
type Timeouts struct {
	Local time.Duration `yaml:"local"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr           string        `yaml:"addr"`
	BatchLimit     int           `yaml:"batch_limit"`
	MaxBatch       int           `yaml:"max_batch"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Log configures zap.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Engine: Engine{
			Path:            "stockfish",
			Threads:         1,
			HashMB:          64,
			StartTimeout:    5 * time.Second,
			StopTimeout:     2 * time.Second,
			RestartAttempts: kibitz.DefaultRestartAttempts,
			RestartBackoff:  kibitz.DefaultRestartBackoff,
		},
		Cloud: Cloud{
			Enabled:        true,
			BaseURL:        cloud.DefaultBaseURL,
			Timeout:        kibitz.DefaultCloudTimeout,
			MaxConcurrent:  cloud.DefaultMaxConcurrent,
			AcquireTimeout: cloud.DefaultAcquireTimeout,
		},
		Book: Book{
			CacheShards: cachedstore.DefaultCapacity,
			TotalShards: book.DefaultTotalShards,
			Strategy:    "material",
			Compression: "zstd",
		},
		Cache: Cache{
			Capacity:      kibitz.DefaultCacheCapacity,
			TTL:           kibitz.DefaultCacheTTL,
			SweepInterval: kibitz.DefaultSweepInterval,
		},
		Limits: Limits{
			RatePerMinute: kibitz.DefaultRatePerMinute,
			QueueLength:   kibitz.DefaultQueueLength,
			MaxDepth:      kibitz.DefaultMaxDepth,
		},
		Timeouts: Timeouts{
			Local: kibitz.DefaultLocalTimeout,
		},
		HTTP: HTTP{
			Addr:           ":3001",
			BatchLimit:     4,
			MaxBatch:       50,
			ShutdownGrace:  10 * time.Second,
			RequestTimeout: 60 * time.Second,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Engine.RestartAttempts >= 1, "engine.restart_attempts must be at least 1, got %d", c.Engine.RestartAttempts)
	check(c.Engine.StartTimeout > 0, "engine.start_timeout must be positive")
	check(c.Engine.StopTimeout > 0, "engine.stop_timeout must be positive")
	if c.Cloud.Enabled {
		check(c.Cloud.BaseURL != "", "cloud.base_url is required when cloud is enabled")
		check(c.Cloud.MaxConcurrent >= 1, "cloud.max_concurrent must be at least 1, got %d", c.Cloud.MaxConcurrent)
		check(c.Cloud.Timeout > 0, "cloud.timeout must be positive")
	}

	sources := 0
	for _, s := range []string{c.Book.DataDir, c.Book.S3Bucket, c.Book.GCSBucket} {
		if s != "" {
			sources++
		}
	}
	check(sources <= 1, "book: set at most one of data_dir, s3_bucket and gcs_bucket")
	check(c.Book.CacheShards >= 1, "book.cache_shards must be at least 1, got %d", c.Book.CacheShards)
	check(c.Book.TotalShards >= 1, "book.total_shards must be at least 1, got %d", c.Book.TotalShards)

	check(c.Cache.Capacity >= 1, "cache.capacity must be at least 1, got %d", c.Cache.Capacity)
	check(c.Cache.TTL > 0, "cache.ttl must be positive")
	check(c.Cache.SweepInterval > 0, "cache.sweep_interval must be positive")
	check(c.Limits.RatePerMinute >= 1, "limits.rate_per_minute must be at least 1, got %d", c.Limits.RatePerMinute)
	check(c.Limits.QueueLength >= 1, "limits.queue_length must be at least 1, got %d", c.Limits.QueueLength)
	check(c.Limits.MaxDepth >= 1, "limits.max_depth must be at least 1, got %d", c.Limits.MaxDepth)
	check(c.Timeouts.Local > 0, "timeouts.local must be positive")
	check(c.HTTP.BatchLimit >= 1, "http.batch_limit must be at least 1, got %d", c.HTTP.BatchLimit)
	check(c.HTTP.MaxBatch >= 1, "http.max_batch must be at least 1, got %d", c.HTTP.MaxBatch)

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errs[0])
	}
	return nil
}
