package repository

import "errors"

var (
	// ErrChunkNotFound is returned when a manifest references a missing chunk.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrObjectNotFound is returned when a bucket source has no such object.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAllSourcesFailed is returned when every candidate source failed with
	// a non-404 error.
	ErrAllSourcesFailed = errors.New("all origin sources failed")

	// ErrStoreSkipped is returned when a body exceeds the KV skip limit and
	// was intentionally not cached.
	ErrStoreSkipped = errors.New("store skipped: body exceeds limit")
)
