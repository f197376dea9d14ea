package photostore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports that no photo exists for the given key. Callers treat
// it as "no image", not as a failure.
var ErrNotFound = errors.New("photo not found")

// PhotoStore is a keyed binary blob store, independent of the record store.
// Keys are scan record ids; at most one photo exists per key.
type PhotoStore interface {
	Save(ctx context.Context, key, mimeType string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}
