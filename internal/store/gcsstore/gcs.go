// Package gcsstore implements a Google Cloud Storage backend.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/discochess/kibitz/internal/codec"
	"github.com/discochess/kibitz/internal/store"
)

// Compile-time check that Store implements store.Writer.
var _ store.Writer = (*Store)(nil)

// Bucket opens readers and writers for objects in one bucket.
type Bucket interface {
	NewReader(ctx context.Context, name string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, name string) io.WriteCloser
}

// Store is a Google Cloud Storage backend.
type Store struct {
	client *storage.Client
	bucket Bucket
	prefix string
	codec  codec.Codec
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets a key prefix for all operations.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = strings.TrimSuffix(prefix, "/")
		if s.prefix != "" {
			s.prefix += "/"
		}
	}
}

// WithBucket replaces the GCS bucket handle, e.g. with an in-memory
// bucket. No client is created when it is set.
func WithBucket(b Bucket) Option {
	return func(s *Store) {
		s.bucket = b
	}
}

// New creates a new GCS store. The bucket must already exist.
func New(ctx context.Context, bucketName string, c codec.Codec, opts ...Option) (*Store, error) {
	s := &Store{codec: c}
	for _, opt := range opts {
		opt(s)
	}

	if s.bucket == nil {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating GCS client: %w", err)
		}
		s.client = client
		s.bucket = handle{client.Bucket(bucketName)}
	}
	return s, nil
}

// ReadShard reads and decompresses the content of the given shard.
func (s *Store) ReadShard(ctx context.Context, shardID int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := s.bucket.NewReader(ctx, s.key(shardID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("creating reader: %w", err)
	}
	defer reader.Close()

	dec, err := s.codec.Reader(reader)
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompressing shard: %w", err)
	}
	return data, nil
}

// WriteShard compresses data straight into a new object.
func (s *Store) WriteShard(ctx context.Context, shardID int, data []byte) error {
	ow := s.bucket.NewWriter(ctx, s.key(shardID))

	w, err := s.codec.Writer(ow)
	if err != nil {
		ow.Close()
		return fmt.Errorf("creating compressor: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		ow.Close()
		return fmt.Errorf("compressing shard: %w", err)
	}
	if err := w.Close(); err != nil {
		ow.Close()
		return fmt.Errorf("flushing compressor: %w", err)
	}
	// The upload is committed by Close.
	if err := ow.Close(); err != nil {
		return fmt.Errorf("uploading shard %d: %w", shardID, err)
	}
	return nil
}

// Close closes the underlying GCS client, if the store created one.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) key(shardID int) string {
	return store.ShardKey(s.prefix, shardID, s.codec)
}

type handle struct {
	b *storage.BucketHandle
}

func (h handle) NewReader(ctx context.Context, name string) (io.ReadCloser, error) {
	return h.b.Object(name).NewReader(ctx)
}

func (h handle) NewWriter(ctx context.Context, name string) io.WriteCloser {
	return h.b.Object(name).NewWriter(ctx)
}
