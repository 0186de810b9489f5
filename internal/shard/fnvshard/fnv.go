// Package fnvshard spreads positions uniformly by hashing the position
// key with FNV-1a.
package fnvshard

import (
	"hash/fnv"

	"github.com/discochess/kibitz/internal/fen"
	"github.com/discochess/kibitz/internal/shard"
)

// Strategy implements FNV-1a hash-based sharding.
type Strategy struct{}

var _ shard.Strategy = (*Strategy)(nil)

// New creates a new FNV-based sharding strategy.
func New() *Strategy {
	return &Strategy{}
}

// Name returns "fnv32".
func (s *Strategy) Name() string {
	return "fnv32"
}

// ShardID hashes the position key. Unparseable input is hashed as is.
func (s *Strategy) ShardID(fenStr string, totalShards int) int {
	key := fenStr
	if k, err := fen.KeyOf(fenStr); err == nil {
		key = string(k)
	}
	return Hash(key, totalShards)
}

// Hash returns the FNV-1a hash of s reduced to [0, totalShards).
func Hash(s string, totalShards int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(totalShards))
}
