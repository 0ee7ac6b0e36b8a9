package repository

import (
	"context"
	"io"
	"time"
)

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStorage defines the interface for bucket-backed origin sources.
// Implementations should be provided by the infrastructure layer (e.g., MinIO,
// any S3/R2-compatible endpoint).
type ObjectStorage interface {
	// Download retrieves an object. Caller closes the returned ReadCloser.
	// Returns ErrObjectNotFound when the key does not exist.
	Download(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// GeneratePresignedDownloadURL creates a presigned GET URL for an object,
	// valid for the given expiry. The presigner contract requires expiry of
	// at least 60 seconds.
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Exists checks whether an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}
