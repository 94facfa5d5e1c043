package sync

import (
	"context"
	"io"
	"time"
)

// Source enumerates and serves content for the side being mirrored.
type Source interface {
	// List returns all source objects whose path starts with prefix.
	// An empty prefix returns everything. Listings are materialized;
	// the classifier needs random access to both sides.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Open returns a reader over the object's bytes and its size.
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)
}

// Target is the write side the source converges onto.
type Target interface {
	// List returns all target objects whose path starts with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Put uploads content at the given relative path, optionally attaching
	// key/value metadata.
	Put(ctx context.Context, path string, r io.Reader, size int64, modTime time.Time, metadata map[string]string) error
	// Delete removes an object by path.
	Delete(ctx context.Context, path string) error
	// EnsureFolder creates the marker object for folder if it is missing.
	// Re-requesting an already-present folder is a no-op, not an error.
	EnsureFolder(ctx context.Context, folder string) error
}
