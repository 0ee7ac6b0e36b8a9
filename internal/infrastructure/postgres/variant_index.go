package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidproxy/vidproxy/internal/domain/repository"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VariantIndex implements repository.VariantIndex using PostgreSQL. It mirrors
// the variant KV namespace so purges can resolve tags to keys and diagnostics
// can list variants by path.
type VariantIndex struct {
	db DBTX
}

// NewVariantIndex creates a new VariantIndex instance.
func NewVariantIndex(db DBTX) *VariantIndex {
	return &VariantIndex{db: db}
}

// Upsert records or replaces the index row for entry.CacheKey.
func (r *VariantIndex) Upsert(ctx context.Context, entry repository.IndexEntry) error {
	const query = `
		INSERT INTO variants (cache_key, path, derivative, mode, format, content_type,
			total_size, chunk_count, cache_version, tags, source_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (cache_key) DO UPDATE
		SET path = EXCLUDED.path,
			derivative = EXCLUDED.derivative,
			mode = EXCLUDED.mode,
			format = EXCLUDED.format,
			content_type = EXCLUDED.content_type,
			total_size = EXCLUDED.total_size,
			chunk_count = EXCLUDED.chunk_count,
			cache_version = EXCLUDED.cache_version,
			tags = EXCLUDED.tags,
			source_type = EXCLUDED.source_type,
			created_at = EXCLUDED.created_at
	`

	_, err := r.db.Exec(ctx, query,
		entry.CacheKey,
		entry.Path,
		nullString(entry.Derivative),
		entry.Mode,
		nullString(entry.Format),
		entry.ContentType,
		entry.TotalSize,
		entry.ChunkCount,
		entry.CacheVersion,
		entry.Tags,
		entry.SourceType,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert variant index row: %w", err)
	}

	return nil
}

// Delete removes the index row for cacheKey. Absent rows are not an error.
func (r *VariantIndex) Delete(ctx context.Context, cacheKey string) error {
	const query = `DELETE FROM variants WHERE cache_key = $1`

	if _, err := r.db.Exec(ctx, query, cacheKey); err != nil {
		return fmt.Errorf("failed to delete variant index row: %w", err)
	}

	return nil
}

// KeysByTag resolves a purge tag to the cache keys that carry it.
func (r *VariantIndex) KeysByTag(ctx context.Context, tag string) ([]string, error) {
	const query = `
		SELECT cache_key
		FROM variants
		WHERE $1 = ANY(tags)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys by tag: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache keys: %w", err)
	}

	return keys, nil
}

// ListByPath returns index entries whose path starts with prefix, newest first.
func (r *VariantIndex) ListByPath(ctx context.Context, prefix string) ([]repository.IndexEntry, error) {
	const query = `
		SELECT cache_key, path, derivative, mode, format, content_type,
			total_size, chunk_count, cache_version, tags, source_type, created_at
		FROM variants
		WHERE path LIKE $1 || '%'
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants by path: %w", err)
	}
	defer rows.Close()

	var entries []repository.IndexEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant index row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}

	return entries, nil
}

// scanEntry scans one row into an IndexEntry.
func scanEntry(rows pgx.Rows) (repository.IndexEntry, error) {
	var (
		entry      repository.IndexEntry
		derivative *string
		format     *string
	)

	err := rows.Scan(
		&entry.CacheKey,
		&entry.Path,
		&derivative,
		&entry.Mode,
		&format,
		&entry.ContentType,
		&entry.TotalSize,
		&entry.ChunkCount,
		&entry.CacheVersion,
		&entry.Tags,
		&entry.SourceType,
		&entry.CreatedAt,
	)
	if err != nil {
		return repository.IndexEntry{}, err
	}

	if derivative != nil {
		entry.Derivative = *derivative
	}
	if format != nil {
		entry.Format = *format
	}

	return entry, nil
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time verification that VariantIndex implements repository.VariantIndex.
var _ repository.VariantIndex = (*VariantIndex)(nil)
