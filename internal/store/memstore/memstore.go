// Package memstore provides an in-memory store, used for the built-in
// opening book and in tests.
package memstore

import (
	"context"
	"sync"

	"github.com/discochess/kibitz/internal/store"
)

// Compile-time check that Store implements store.Writer.
var _ store.Writer = (*Store)(nil)

// Store keeps uncompressed shards in memory.
type Store struct {
	mu     sync.RWMutex
	shards map[int][]byte
	reads  int
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		shards: make(map[int][]byte),
	}
}

// SetShard sets the data for a shard. The data is copied.
func (s *Store) SetShard(shardID int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shards[shardID] = append([]byte(nil), data...)
}

// WriteShard implements store.Writer.
func (s *Store) WriteShard(ctx context.Context, shardID int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.SetShard(shardID, data)
	return nil
}

// ReadShard reads a shard from memory.
func (s *Store) ReadShard(ctx context.Context, shardID int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++

	data, ok := s.shards[shardID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

// Reads returns how many times ReadShard has been called.
func (s *Store) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}

// Len returns the number of shards held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shards)
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}
