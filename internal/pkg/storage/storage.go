package storage

import (
	"context"
	"io"
)

// Storage defines the minimal interface for canonical file storage.
type Storage interface {
	// Put stores a file at the given key.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get retrieves a file by key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a file by key. Returns nil if the file doesn't exist.
	Delete(ctx context.Context, key string) error

	// List returns the keys present under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// GetURL returns the public URL for a key.
	GetURL(key string) string
}
