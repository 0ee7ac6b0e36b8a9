package model

import (
	"errors"
	"fmt"
	"time"
)

// Storage layout constants for the variant KV namespace.
const (
	// SingleEntryLimit is the largest body stored as a single KV value.
	SingleEntryLimit = 20 * 1024 * 1024
	// StandardChunkSize is the slice size for chunked entries.
	StandardChunkSize = 5 * 1024 * 1024
	// StoreSkipLimit is the upper bound above which bodies bypass KV entirely.
	StoreSkipLimit = 128 * 1024 * 1024
)

var ErrManifestInvalid = errors.New("manifest chunk sizes do not sum to total size")

// Manifest is stored as the value of the base key when an entry is chunked.
// It describes the exact chunk layout so ranges can be served without reading
// every chunk.
type Manifest struct {
	TotalSize           int64   `json:"totalSize"`
	ChunkCount          int     `json:"chunkCount"`
	StandardChunkSize   int64   `json:"standardChunkSize"`
	ActualChunkSizes    []int64 `json:"actualChunkSizes"`
	OriginalContentType string  `json:"originalContentType"`
}

// NewManifest computes the chunk layout for a body of totalSize bytes.
func NewManifest(totalSize int64, contentType string) Manifest {
	count := int((totalSize + StandardChunkSize - 1) / StandardChunkSize)
	sizes := make([]int64, count)
	remaining := totalSize
	for i := range sizes {
		if remaining > StandardChunkSize {
			sizes[i] = StandardChunkSize
		} else {
			sizes[i] = remaining
		}
		remaining -= sizes[i]
	}
	return Manifest{
		TotalSize:           totalSize,
		ChunkCount:          count,
		StandardChunkSize:   StandardChunkSize,
		ActualChunkSizes:    sizes,
		OriginalContentType: contentType,
	}
}

// Validate checks the manifest invariants: chunk sizes sum to the total and
// their count matches ChunkCount.
func (m Manifest) Validate() error {
	if len(m.ActualChunkSizes) != m.ChunkCount {
		return fmt.Errorf("%w: %d sizes for %d chunks", ErrManifestInvalid, len(m.ActualChunkSizes), m.ChunkCount)
	}
	var sum int64
	for _, s := range m.ActualChunkSizes {
		sum += s
	}
	if sum != m.TotalSize {
		return fmt.Errorf("%w: sum %d, total %d", ErrManifestInvalid, sum, m.TotalSize)
	}
	return nil
}

// ChunkRange returns the inclusive chunk indexes intersecting the byte window
// [start, end] plus the byte offset of the first intersecting chunk.
func (m Manifest) ChunkRange(start, end int64) (first, last int, firstOffset int64) {
	var offset int64
	first, last = -1, -1
	for i, size := range m.ActualChunkSizes {
		chunkEnd := offset + size - 1
		if first == -1 && start <= chunkEnd {
			first = i
			firstOffset = offset
		}
		if end <= chunkEnd {
			last = i
			break
		}
		offset += size
	}
	if last == -1 {
		last = m.ChunkCount - 1
	}
	return first, last, firstOffset
}

// VariantMetadata annotates every KV entry, base and chunk alike.
type VariantMetadata struct {
	ContentType   string    `json:"contentType"`
	ContentLength int64     `json:"contentLength"`
	CacheVersion  int       `json:"cacheVersion"`
	CacheTags     []string  `json:"cacheTags,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`

	// IsChunked is set on base entries only; ChunkIndex on chunk entries only.
	IsChunked  bool `json:"isChunked,omitempty"`
	ChunkIndex *int `json:"chunkIndex,omitempty"`

	SourceType string `json:"sourceType,omitempty"`

	Derivative      string `json:"derivative,omitempty"`
	RequestedWidth  int    `json:"requestedWidth,omitempty"`
	RequestedHeight int    `json:"requestedHeight,omitempty"`
	MappedFrom      string `json:"mappedFrom,omitempty"`
}

// Variant is a retrieved cache entry: metadata plus the body bytes or a
// manifest describing where the bytes live.
type Variant struct {
	BaseKey  string
	Metadata VariantMetadata
	// Body holds the full bytes for single entries; nil for chunked entries.
	Body []byte
	// Manifest is set when the entry is chunked.
	Manifest *Manifest
}
