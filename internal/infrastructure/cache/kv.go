package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/domain/repository"
	"github.com/vidproxy/vidproxy/internal/infrastructure/metrics"
)

const (
	// metaSuffix addresses the metadata entry companion to a body or
	// manifest entry.
	metaSuffix = "_meta"

	// kvReadEdgeTTL is the minimum remaining lifetime a hot entry keeps
	// after a read.
	kvReadEdgeTTL = time.Hour

	// chunkFetchTimeout bounds each individual chunk read, independent of
	// the request deadline.
	chunkFetchTimeout = 10 * time.Second

	// streamSegmentSize bounds individual client writes while streaming
	// chunk slices, so slow clients cannot pin large buffers.
	streamSegmentSize = 512 * 1024

	// writeBackoffBase is the initial retry backoff for KV writes.
	writeBackoffBase = 100 * time.Millisecond
)

// EngineConfig holds configuration for the KV engine.
type EngineConfig struct {
	// TTL for stored entries; zero stores indefinitely.
	TTL time.Duration
	// Retries per individual KV write.
	Retries int
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TTL:     24 * time.Hour,
		Retries: 3,
	}
}

// Engine implements repository.VariantStore on Redis. Bodies at or below the
// single entry limit are stored whole; larger bodies are split into standard
// chunks behind a manifest stored at the base key. Every entry, base or
// chunk, has a companion metadata entry.
type Engine struct {
	client *redis.Client
	cfg    EngineConfig
	locks  *keyLocks
}

// Compile-time verification that Engine implements repository.VariantStore.
var _ repository.VariantStore = (*Engine)(nil)

// NewEngine creates a new Redis-backed variant store.
func NewEngine(client *redis.Client, cfg EngineConfig) *Engine {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &Engine{
		client: client,
		cfg:    cfg,
		locks:  newKeyLocks(),
	}
}

// Store persists a variant body under baseKey. Bodies above the skip limit
// return ErrStoreSkipped without touching KV; bodies above the single entry
// limit are chunked. Chunked writes for the same base key serialize on a
// per-key lock.
func (e *Engine) Store(ctx context.Context, baseKey string, body []byte, meta model.VariantMetadata) error {
	if int64(len(body)) > model.StoreSkipLimit {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSkipped).Inc()
		return fmt.Errorf("%w: %d bytes", repository.ErrStoreSkipped, len(body))
	}

	meta.ContentLength = int64(len(body))
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	var err error
	if int64(len(body)) <= model.SingleEntryLimit {
		err = e.storeSingle(ctx, baseKey, body, meta)
	} else {
		err = e.storeChunked(ctx, baseKey, body, meta)
	}

	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError).Inc()
		return err
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess).Inc()
	return nil
}

func (e *Engine) storeSingle(ctx context.Context, baseKey string, body []byte, meta model.VariantMetadata) error {
	meta.IsChunked = false

	if err := e.setWithRetry(ctx, baseKey, body); err != nil {
		return fmt.Errorf("store body: %w", err)
	}
	if err := e.setMeta(ctx, baseKey, meta); err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}
	return nil
}

func (e *Engine) storeChunked(ctx context.Context, baseKey string, body []byte, meta model.VariantMetadata) error {
	manifest := model.NewManifest(int64(len(body)), meta.ContentType)
	if err := manifest.Validate(); err != nil {
		return err
	}

	e.locks.acquire(baseKey)
	defer e.locks.release(baseKey)

	var offset int64
	for i, size := range manifest.ActualChunkSizes {
		chunkKey := model.ChunkKey(baseKey, i)
		slice := body[offset : offset+size]
		offset += size

		idx := i
		chunkMeta := meta
		chunkMeta.IsChunked = false
		chunkMeta.ChunkIndex = &idx
		chunkMeta.ContentLength = size

		if err := e.setWithRetry(ctx, chunkKey, slice); err != nil {
			e.deleteChunks(ctx, baseKey, i)
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpChunkSet, metrics.CacheStatusError).Inc()
			return fmt.Errorf("store chunk %d: %w", i, err)
		}
		if err := e.setMeta(ctx, chunkKey, chunkMeta); err != nil {
			e.deleteChunks(ctx, baseKey, i+1)
			return fmt.Errorf("store chunk %d metadata: %w", i, err)
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpChunkSet, metrics.CacheStatusSuccess).Inc()
	}

	if offset != manifest.TotalSize {
		e.deleteChunks(ctx, baseKey, manifest.ChunkCount)
		return model.ErrManifestInvalid
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		e.deleteChunks(ctx, baseKey, manifest.ChunkCount)
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := e.setWithRetry(ctx, baseKey, manifestJSON); err != nil {
		e.deleteChunks(ctx, baseKey, manifest.ChunkCount)
		return fmt.Errorf("store manifest: %w", err)
	}

	meta.IsChunked = true
	if err := e.setMeta(ctx, baseKey, meta); err != nil {
		e.deleteChunks(ctx, baseKey, manifest.ChunkCount)
		_ = e.client.Del(ctx, baseKey).Err()
		return fmt.Errorf("store manifest metadata: %w", err)
	}
	return nil
}

// deleteChunks removes chunks [0, n) and their metadata after a partial write.
func (e *Engine) deleteChunks(ctx context.Context, baseKey string, n int) {
	for i := 0; i < n; i++ {
		chunkKey := model.ChunkKey(baseKey, i)
		if err := e.client.Del(ctx, chunkKey, chunkKey+metaSuffix).Err(); err != nil {
			slog.Warn("failed to clean up orphan chunk",
				"base_key", baseKey,
				"chunk", i,
				"error", err,
			)
		}
	}
}

// Retrieve reads the entry at baseKey. Returns nil, nil on a miss. Hot
// entries keep at least kvReadEdgeTTL of remaining lifetime after a hit.
func (e *Engine) Retrieve(ctx context.Context, baseKey string) (*model.Variant, error) {
	metaData, err := e.client.Get(ctx, baseKey+metaSuffix).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss).Inc()
			return nil, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError).Inc()
		return nil, fmt.Errorf("kv get metadata: %w", err)
	}

	var meta model.VariantMetadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	value, err := e.client.Get(ctx, baseKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Metadata without a body entry means a torn write; treat as miss.
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss).Inc()
			return nil, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError).Inc()
		return nil, fmt.Errorf("kv get body: %w", err)
	}

	e.refreshEdgeTTL(ctx, baseKey)

	variant := &model.Variant{BaseKey: baseKey, Metadata: meta}
	if meta.IsChunked {
		var manifest model.Manifest
		if err := json.Unmarshal(value, &manifest); err != nil {
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
		if err := manifest.Validate(); err != nil {
			return nil, err
		}
		variant.Manifest = &manifest
	} else {
		variant.Body = value
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit).Inc()
	return variant, nil
}

// refreshEdgeTTL extends entries close to expiry so hot content does not
// fall out mid-stream. No-op when entries are stored indefinitely.
func (e *Engine) refreshEdgeTTL(ctx context.Context, baseKey string) {
	if e.cfg.TTL == 0 {
		return
	}
	_ = e.client.ExpireGT(ctx, baseKey, kvReadEdgeTTL).Err()
	_ = e.client.ExpireGT(ctx, baseKey+metaSuffix, kvReadEdgeTTL).Err()
}

// ReadChunk fetches chunk n of a chunked entry with its own timeout,
// independent of the request deadline.
func (e *Engine) ReadChunk(ctx context.Context, baseKey string, n int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, chunkFetchTimeout)
	defer cancel()

	data, err := e.client.Get(ctx, model.ChunkKey(baseKey, n)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpChunkGet, metrics.CacheStatusMiss).Inc()
			return nil, fmt.Errorf("%w: %s chunk %d", repository.ErrChunkNotFound, baseKey, n)
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpChunkGet, metrics.CacheStatusError).Inc()
		return nil, fmt.Errorf("kv get chunk %d: %w", n, err)
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpChunkGet, metrics.CacheStatusHit).Inc()
	return data, nil
}

// StreamRange writes the closed byte window [start, end] to w, fetching only
// the chunks that intersect it and slicing the first and last to the exact
// boundary. Writes go out in bounded segments; a client disconnect cancels
// outstanding chunk fetches via ctx.
func (e *Engine) StreamRange(ctx context.Context, baseKey string, m model.Manifest, start, end int64, w io.Writer) error {
	if start < 0 || end >= m.TotalSize || start > end {
		return fmt.Errorf("range [%d, %d] outside body of %d bytes", start, end, m.TotalSize)
	}

	first, last, offset := m.ChunkRange(start, end)
	for i := first; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := e.ReadChunk(ctx, baseKey, i)
		if err != nil {
			return err
		}
		if int64(len(data)) != m.ActualChunkSizes[i] {
			return fmt.Errorf("chunk %d: got %d bytes, manifest says %d", i, len(data), m.ActualChunkSizes[i])
		}

		lo := int64(0)
		if start > offset {
			lo = start - offset
		}
		hi := int64(len(data)) - 1
		if end < offset+int64(len(data))-1 {
			hi = end - offset
		}

		if err := writeSegmented(ctx, w, data[lo:hi+1]); err != nil {
			return err
		}
		offset += int64(len(data))
	}
	return nil
}

// writeSegmented writes p in bounded segments, checking for cancellation
// between writes so slow clients release resources promptly.
func writeSegmented(ctx context.Context, w io.Writer, p []byte) error {
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := len(p)
		if n > streamSegmentSize {
			n = streamSegmentSize
		}
		if _, err := w.Write(p[:n]); err != nil {
			return fmt.Errorf("write body segment: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Delete removes the base entry, its metadata and, for chunked entries,
// every chunk. Chunked deletes take the per-key lock so they do not race a
// concurrent chunked store.
func (e *Engine) Delete(ctx context.Context, baseKey string) error {
	metaData, err := e.client.Get(ctx, baseKey+metaSuffix).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("kv get metadata: %w", err)
	}

	chunkCount := 0
	if err == nil {
		var meta model.VariantMetadata
		if jsonErr := json.Unmarshal(metaData, &meta); jsonErr == nil && meta.IsChunked {
			if value, getErr := e.client.Get(ctx, baseKey).Bytes(); getErr == nil {
				var manifest model.Manifest
				if json.Unmarshal(value, &manifest) == nil {
					chunkCount = manifest.ChunkCount
				}
			}
		}
	}

	if chunkCount > 0 {
		e.locks.acquire(baseKey)
		defer e.locks.release(baseKey)
		e.deleteChunks(ctx, baseKey, chunkCount)
	}

	if err := e.client.Del(ctx, baseKey, baseKey+metaSuffix).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError).Inc()
		return fmt.Errorf("kv delete: %w", err)
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess).Inc()
	return nil
}

// setWithRetry writes one key with bounded exponential backoff. The value is
// not mutated between attempts, so each retry reuses the same bytes.
func (e *Engine) setWithRetry(ctx context.Context, key string, value []byte) error {
	var lastErr error
	backoff := writeBackoffBase
	for attempt := 0; attempt < e.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := e.client.Set(ctx, key, value, e.cfg.TTL).Err(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", e.cfg.Retries, lastErr)
}

func (e *Engine) setMeta(ctx context.Context, key string, meta model.VariantMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return e.setWithRetry(ctx, key+metaSuffix, data)
}
