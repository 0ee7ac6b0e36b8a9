package repository

import (
	"context"
	"time"
)

// IndexEntry is one row of the durable variant index. The index mirrors the
// current contents of the variant KV namespace so diagnostics can list by
// path and purges can resolve tags to keys without scanning the keyspace.
type IndexEntry struct {
	CacheKey     string
	Path         string
	Derivative   string
	Mode         string
	Format       string
	ContentType  string
	TotalSize    int64
	ChunkCount   int
	CacheVersion int
	Tags         []string
	SourceType   string
	CreatedAt    time.Time
}

// VariantIndex defines the interface for the variant metadata index.
type VariantIndex interface {
	// Upsert records or replaces the row for entry.CacheKey.
	Upsert(ctx context.Context, entry IndexEntry) error

	// Delete removes the row for cacheKey. Deleting an absent row is not an
	// error.
	Delete(ctx context.Context, cacheKey string) error

	// KeysByTag resolves a purge tag to the cache keys carrying it.
	KeysByTag(ctx context.Context, tag string) ([]string, error)

	// ListByPath returns entries whose path starts with prefix, newest first.
	ListByPath(ctx context.Context, prefix string) ([]IndexEntry, error)
}
