package repository

import (
	"context"
	"io"

	"github.com/vidproxy/vidproxy/internal/domain/model"
)

// VariantStore defines the interface for the variant-body KV namespace.
// Implementations decide between single-entry and chunked layout.
type VariantStore interface {
	// Store persists a variant body under baseKey. Bodies above the single
	// entry limit are chunked behind a manifest; bodies above the skip limit
	// return ErrStoreSkipped without touching KV.
	Store(ctx context.Context, baseKey string, body []byte, meta model.VariantMetadata) error

	// Retrieve reads the entry at baseKey. Returns nil, nil on a miss.
	// Chunked entries come back with their manifest and a nil body.
	Retrieve(ctx context.Context, baseKey string) (*model.Variant, error)

	// ReadChunk fetches chunk n of a chunked entry.
	ReadChunk(ctx context.Context, baseKey string, n int) ([]byte, error)

	// StreamRange writes the byte window [start, end] of a chunked entry to w,
	// fetching only the chunks that intersect it.
	StreamRange(ctx context.Context, baseKey string, m model.Manifest, start, end int64, w io.Writer) error

	// Delete removes the base entry and, for chunked entries, every chunk.
	Delete(ctx context.Context, baseKey string) error
}

// VersionStore defines the interface for the version KV namespace. Versions
// default to 1 and only ever move forward; they bust upstream caches and
// never change cache keys.
type VersionStore interface {
	// Get returns the stored version for cacheKey and whether a counter
	// exists. Absent counters report (1, false).
	Get(ctx context.Context, cacheKey string) (int, bool, error)

	// Seed establishes the counter at the default version if absent. A key
	// with an existing counter is left untouched.
	Seed(ctx context.Context, cacheKey string) error

	// Increment atomically bumps the counter and returns the new value.
	Increment(ctx context.Context, cacheKey string) (int, error)
}
