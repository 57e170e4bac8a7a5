package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("storage: object not found")

// BlobStore is the chunk/artifact store. Keys are slash-separated paths,
// e.g. recordings/{sessionId}/chunk-{n}.webm or merged/{name}.mp3.
// Uploads overwrite existing keys, so chunk re-uploads are idempotent.
type BlobStore interface {
	// Upload writes the object at key, replacing any existing object.
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error

	// Download returns a reader for the object at key. The caller closes it.
	// Returns ErrNotFound when the key does not exist.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns all keys under the given prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// PublicURL returns a stable URL for the object at key.
	PublicURL(key string) string
}
