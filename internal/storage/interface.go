package storage

import (
	"context"
	"io"
)

// ObjectStorage is the audio archive abstraction. Synthesized segment audio
// is written here when archiving is enabled; nothing in the relay reads it
// back, clients fetch objects through the public URL.
type ObjectStorage interface {
	// Upload writes an object to the archive.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns the public URL for accessing an object.
	GetURL(key string) string

	// Delete removes an object from the archive.
	Delete(ctx context.Context, key string) error

	// EnsureBucket creates the backing bucket if it does not exist.
	EnsureBucket(ctx context.Context) error
}
