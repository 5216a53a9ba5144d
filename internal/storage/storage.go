// Package storage provides object storage abstractions for the raw sales feed.
package storage

import (
	"context"
	"errors"
	"io"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrGetFailed      = errors.New("get failed")
	ErrPutFailed      = errors.New("put failed")
)

// ObjectStorage abstracts object storage access.
// Implementations include S3/MinIO and local filesystem for testing.
type ObjectStorage interface {
	// Get opens the object body for streaming reads.
	// The caller must close the returned reader.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Put uploads an object from a reader. Used by seeding tools and tests.
	Put(ctx context.Context, bucket, key string, body io.Reader) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, bucket, key string) (bool, error)
}
