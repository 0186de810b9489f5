// Package store defines where opening-book shards live.
//
// Shards are addressed by integer ID and stored as "shards/<id>.<ext>"
// under a backend-specific root, where ext comes from the codec.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/discochess/kibitz/internal/codec"
)

// ErrNotFound is returned when a shard does not exist in the store.
var ErrNotFound = errors.New("store: shard not found")

// Store reads shards. Implementations decompress with their codec, so
// ReadShard always returns plain sorted JSONL.
type Store interface {
	ReadShard(ctx context.Context, shardID int) ([]byte, error)
	Close() error
}

// Writer is a Store that can also persist shards. WriteShard takes plain
// data and compresses it with the store's codec.
type Writer interface {
	Store
	WriteShard(ctx context.Context, shardID int, data []byte) error
}

// ShardName returns the object name of a shard, e.g. "00042.zst".
func ShardName(shardID int, c codec.Codec) string {
	name := fmt.Sprintf("%05d", shardID)
	if ext := c.Extension(); ext != "" {
		name += "." + ext
	}
	return name
}

// ShardKey returns the slash-separated key of a shard below prefix.
// prefix is either empty or ends in "/".
func ShardKey(prefix string, shardID int, c codec.Codec) string {
	return prefix + "shards/" + ShardName(shardID, c)
}
