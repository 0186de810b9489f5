package book

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/discochess/kibitz/internal/codec"
	"github.com/discochess/kibitz/internal/codec/gzipcodec"
	"github.com/discochess/kibitz/internal/codec/noopcodec"
	"github.com/discochess/kibitz/internal/codec/zstdcodec"
	"github.com/discochess/kibitz/internal/shard"
	"github.com/discochess/kibitz/internal/shard/fnvshard"
	"github.com/discochess/kibitz/internal/shard/materialshard"
)

// ManifestFilename is the name of the manifest inside a book directory.
const ManifestFilename = "manifest.json"

// Manifest describes how a book was built.
type Manifest struct {
	Version     int       `json:"version"`
	TotalShards int       `json:"total_shards"`
	Strategy    string    `json:"strategy"`
	Compression string    `json:"compression"`
	RecordCount int64     `json:"record_count"`
	ShardCount  int       `json:"shard_count"` // Non-empty shards
	Skipped     int64     `json:"skipped,omitempty"`
	BuiltAt     time.Time `json:"built_at"`
	Source      string    `json:"source,omitempty"`
}

// ShardStrategy returns the strategy named by the manifest.
func (m *Manifest) ShardStrategy() (shard.Strategy, error) {
	return StrategyByName(m.Strategy)
}

// Codec returns the codec named by the manifest.
func (m *Manifest) Codec() (codec.Codec, error) {
	return CodecByName(m.Compression)
}

// StrategyByName resolves a shard strategy name.
func StrategyByName(name string) (shard.Strategy, error) {
	switch name {
	case "material", "":
		return materialshard.New(), nil
	case "fnv32":
		return fnvshard.New(), nil
	default:
		return nil, fmt.Errorf("unknown shard strategy %q", name)
	}
}

// CodecByName resolves a codec name.
func CodecByName(name string) (codec.Codec, error) {
	switch name {
	case "zstd", "":
		return zstdcodec.New(), nil
	case "gzip":
		return gzipcodec.New(), nil
	case "none":
		return noopcodec.New(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

// WriteManifest writes the manifest to dir.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFilename), data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest from a book directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.TotalShards <= 0 {
		return nil, fmt.Errorf("manifest: invalid total_shards %d", m.TotalShards)
	}
	return &m, nil
}
