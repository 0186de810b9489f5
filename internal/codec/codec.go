// Package codec provides compression and decompression for shard data.
package codec

import "io"

// Codec compresses shard files. Writers returned by a Codec never close
// the underlying writer.
type Codec interface {
	// Name identifies the codec in a book manifest.
	Name() string
	// Reader wraps r to decompress data read from it.
	Reader(r io.Reader) (io.ReadCloser, error)
	// Writer wraps w to compress data written to it.
	Writer(w io.Writer) (io.WriteCloser, error)
	// Extension returns the file extension without dot (e.g., "zst", "gz").
	// Returns empty string for no compression.
	Extension() string
}
