package usecase

import (
	"context"
	"io"

	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/domain/repository"
)

// mockVariantStore provides a configurable mock for VariantStore.
type mockVariantStore struct {
	storeFn       func(ctx context.Context, baseKey string, body []byte, meta model.VariantMetadata) error
	retrieveFn    func(ctx context.Context, baseKey string) (*model.Variant, error)
	readChunkFn   func(ctx context.Context, baseKey string, n int) ([]byte, error)
	streamRangeFn func(ctx context.Context, baseKey string, m model.Manifest, start, end int64, w io.Writer) error
	deleteFn      func(ctx context.Context, baseKey string) error
}

func (m *mockVariantStore) Store(ctx context.Context, baseKey string, body []byte, meta model.VariantMetadata) error {
	if m.storeFn != nil {
		return m.storeFn(ctx, baseKey, body, meta)
	}
	return nil
}

func (m *mockVariantStore) Retrieve(ctx context.Context, baseKey string) (*model.Variant, error) {
	if m.retrieveFn != nil {
		return m.retrieveFn(ctx, baseKey)
	}
	return nil, nil
}

func (m *mockVariantStore) ReadChunk(ctx context.Context, baseKey string, n int) ([]byte, error) {
	if m.readChunkFn != nil {
		return m.readChunkFn(ctx, baseKey, n)
	}
	return nil, repository.ErrChunkNotFound
}

func (m *mockVariantStore) StreamRange(ctx context.Context, baseKey string, manifest model.Manifest, start, end int64, w io.Writer) error {
	if m.streamRangeFn != nil {
		return m.streamRangeFn(ctx, baseKey, manifest, start, end, w)
	}
	return nil
}

func (m *mockVariantStore) Delete(ctx context.Context, baseKey string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, baseKey)
	}
	return nil
}

// mockVersionStore provides a configurable mock for VersionStore.
type mockVersionStore struct {
	getFn       func(ctx context.Context, cacheKey string) (int, bool, error)
	seedFn      func(ctx context.Context, cacheKey string) error
	incrementFn func(ctx context.Context, cacheKey string) (int, error)
}

func (m *mockVersionStore) Get(ctx context.Context, cacheKey string) (int, bool, error) {
	if m.getFn != nil {
		return m.getFn(ctx, cacheKey)
	}
	return 1, false, nil
}

func (m *mockVersionStore) Seed(ctx context.Context, cacheKey string) error {
	if m.seedFn != nil {
		return m.seedFn(ctx, cacheKey)
	}
	return nil
}

func (m *mockVersionStore) Increment(ctx context.Context, cacheKey string) (int, error) {
	if m.incrementFn != nil {
		return m.incrementFn(ctx, cacheKey)
	}
	return 2, nil
}

// mockOriginFetcher provides a configurable mock for OriginFetcher.
type mockOriginFetcher struct {
	fetchFn func(ctx context.Context, origin *model.Origin, captures []string, exclude []model.SourceRef) (*repository.OriginResult, error)
}

func (m *mockOriginFetcher) Fetch(ctx context.Context, origin *model.Origin, captures []string, exclude []model.SourceRef) (*repository.OriginResult, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, origin, captures, exclude)
	}
	return &repository.OriginResult{
		Source: model.SourceRef{Origin: "videos", Type: model.SourceBucket, Priority: 1},
		URL:    "https://origin.example/a.mp4",
	}, nil
}

// mockTransformClient provides a configurable mock for TransformClient.
type mockTransformClient struct {
	transformFn func(ctx context.Context, originURL string, opts model.TransformOptions) (*repository.TransformResult, error)
}

func (m *mockTransformClient) Transform(ctx context.Context, originURL string, opts model.TransformOptions) (*repository.TransformResult, error) {
	if m.transformFn != nil {
		return m.transformFn(ctx, originURL, opts)
	}
	return &repository.TransformResult{Body: []byte("transformed-body"), ContentType: "video/mp4"}, nil
}

// mockVariantIndex provides a configurable mock for VariantIndex.
type mockVariantIndex struct {
	upsertFn     func(ctx context.Context, entry repository.IndexEntry) error
	deleteFn     func(ctx context.Context, cacheKey string) error
	keysByTagFn  func(ctx context.Context, tag string) ([]string, error)
	listByPathFn func(ctx context.Context, prefix string) ([]repository.IndexEntry, error)
}

func (m *mockVariantIndex) Upsert(ctx context.Context, entry repository.IndexEntry) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, entry)
	}
	return nil
}

func (m *mockVariantIndex) Delete(ctx context.Context, cacheKey string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, cacheKey)
	}
	return nil
}

func (m *mockVariantIndex) KeysByTag(ctx context.Context, tag string) ([]string, error) {
	if m.keysByTagFn != nil {
		return m.keysByTagFn(ctx, tag)
	}
	return nil, nil
}

func (m *mockVariantIndex) ListByPath(ctx context.Context, prefix string) ([]repository.IndexEntry, error) {
	if m.listByPathFn != nil {
		return m.listByPathFn(ctx, prefix)
	}
	return nil, nil
}
