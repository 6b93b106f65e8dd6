// Package objectstore defines the byte-range object-store contract the
// core consumes and a default HTTP-ranged-GET adapter.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Metadata is the result of a HEAD call.
type Metadata struct {
	ContentLength int64
	ContentType   string
}

// Reader is the contract the core consumes. Implementations never hand
// back a stream of the whole object; every read is a bounded byte range.
type Reader interface {
	// Head returns size and content type metadata for bucket/key.
	Head(ctx context.Context, bucket, key string) (Metadata, error)

	// GetRange returns the inclusive byte range [startByte, endByte] as a
	// stream. Callers are responsible for closing it.
	GetRange(ctx context.Context, bucket, key string, startByte, endByte int64) (io.ReadCloser, error)

	// Presign returns a URL valid for ttl that an external tool (the
	// silence probe's audio analyser) can read directly.
	Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
