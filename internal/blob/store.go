// Package blob abstracts the durable object store holding raw documents
// and intermediate artifacts. The pipeline depends only on the narrow
// Store interface; adapters cover real S3/MinIO and a local filesystem
// twin used for tests and local mode.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("blob: object not found")

// Store is the minimal object-store surface the pipeline needs.
type Store interface {
	// Get reads the full object at key.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put writes data under key, overwriting any existing object.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error

	// List returns the keys under prefix, sorted.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// IsNotFound reports whether err indicates a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
