// Package shard defines how opening-book positions are spread across
// shard files.
package shard

// Strategy maps positions to shard IDs. Positions that differ only in the
// halfmove and fullmove counters must map to the same shard.
type Strategy interface {
	// Name identifies the strategy in a book manifest.
	Name() string

	// ShardID returns a shard ID in [0, totalShards).
	ShardID(fen string, totalShards int) int
}
