// Package s3store reads and writes book shards in an S3 bucket.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/discochess/kibitz/internal/codec"
	"github.com/discochess/kibitz/internal/store"
)

// Compile-time check that Store implements store.Writer.
var _ store.Writer = (*Store)(nil)

// API is the subset of the S3 client the store uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store is an S3 storage backend. S3-compatible services such as MinIO
// work through WithEndpoint.
type Store struct {
	client API
	bucket string
	prefix string
	codec  codec.Codec
}

type settings struct {
	prefix   string
	region   string
	endpoint string
	client   API
}

// Option configures a Store.
type Option func(*settings)

// WithPrefix sets a key prefix for all operations.
func WithPrefix(prefix string) Option {
	return func(s *settings) {
		s.prefix = normalizePrefix(prefix)
	}
}

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(s *settings) {
		s.region = region
	}
}

// WithEndpoint sets a custom endpoint and switches to path-style
// addressing.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) {
		s.endpoint = endpoint
	}
}

// WithClient uses c instead of a client built from the default AWS
// configuration.
func WithClient(c API) Option {
	return func(s *settings) {
		s.client = c
	}
}

// New creates a new S3 store. The bucket must already exist.
func New(ctx context.Context, bucketName string, c codec.Codec, opts ...Option) (*Store, error) {
	var set settings
	for _, opt := range opts {
		opt(&set)
	}

	client := set.client
	if client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if set.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(set.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if set.endpoint != "" {
				o.BaseEndpoint = aws.String(set.endpoint)
				o.UsePathStyle = true
			}
		})
	}

	return &Store{
		client: client,
		bucket: bucketName,
		prefix: set.prefix,
		codec:  c,
	}, nil
}

// ReadShard reads and decompresses the content of the given shard.
func (s *Store) ReadShard(ctx context.Context, shardID int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(shardID)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("reading shard: %w", err)
	}
	defer out.Body.Close()

	r, err := s.codec.Reader(out.Body)
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing shard: %w", err)
	}
	return data, nil
}

// WriteShard compresses data and uploads it.
func (s *Store) WriteShard(ctx context.Context, shardID int, data []byte) error {
	var buf bytes.Buffer
	w, err := s.codec.Writer(&buf)
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("compressing shard: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flushing compressor: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(shardID)),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return fmt.Errorf("uploading shard %d: %w", shardID, err)
	}
	return nil
}

// Close releases resources. The S3 client holds none.
func (s *Store) Close() error {
	return nil
}

func (s *Store) key(shardID int) string {
	return store.ShardKey(s.prefix, shardID, s.codec)
}

// isNotFound recognizes both the typed NoSuchKey error and the bare
// error codes some S3-compatible services return.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
