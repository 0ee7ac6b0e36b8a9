package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vidproxy/vidproxy/internal/background"
	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/domain/repository"
	"github.com/vidproxy/vidproxy/internal/infrastructure/metrics"
)

// Cache status values reported on responses. A hit names the serving tier
// rather than the outcome, so readers of X-Cache-Source see where the bytes
// came from.
const (
	CacheHit    = "kv"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// Retry breadcrumb headers attached when source failover recovered a miss.
const (
	HeaderRetryApplied      = "X-Retry-Applied"
	HeaderFailedSource      = "X-Failed-Source"
	HeaderAlternativeSource = "X-Alternative-Source"
)

// Request carries the resolved inputs for one variant lookup.
type Request struct {
	Method       string
	Path         string
	Query        url.Values
	CacheControl string

	Options  model.TransformOptions
	Origin   *model.Origin
	Captures []string
}

// Response is the orchestrator's answer. Exactly one of Body or Manifest is
// set: chunked cache hits return the manifest and the caller streams chunks
// through the variant store.
type Response struct {
	BaseKey     string
	Body        []byte
	Manifest    *model.Manifest
	ContentType string
	CacheStatus string
	Metadata    *model.VariantMetadata
	// Headers carries failover breadcrumbs to attach to the client response.
	Headers map[string]string
}

// VariantService orchestrates the KV-first lookup with single-flight
// coalescing and background write-back.
type VariantService interface {
	Serve(ctx context.Context, req *Request) (*Response, error)
}

// VariantServiceConfig holds configuration for the variant service.
type VariantServiceConfig struct {
	// BypassParameters are query parameter names whose presence skips the
	// cache entirely.
	BypassParameters []string
	// DisableVersioning pins every variant at version 1: no counter reads,
	// no upstream cache busting.
	DisableVersioning bool
	// DisableCacheTags stores variants without tags, making tag purges no-ops.
	DisableCacheTags bool
}

// DefaultVariantServiceConfig returns the default configuration.
func DefaultVariantServiceConfig() VariantServiceConfig {
	return VariantServiceConfig{
		BypassParameters: []string{"nocache", "bypass", "debug"},
	}
}

type variantService struct {
	store       repository.VariantStore
	versions    repository.VersionStore
	fetcher     repository.OriginFetcher
	transformer repository.TransformClient
	// index mirrors stored variants for tag purge resolution; may be nil.
	index repository.VariantIndex

	sfGroup      singleflight.Group
	bypassParams []string
	noVersioning bool
	noTags       bool
}

// NewVariantService creates the cache orchestrator. index may be nil when the
// durable variant index is disabled.
func NewVariantService(
	store repository.VariantStore,
	versions repository.VersionStore,
	fetcher repository.OriginFetcher,
	transformer repository.TransformClient,
	index repository.VariantIndex,
	cfg VariantServiceConfig,
) VariantService {
	if len(cfg.BypassParameters) == 0 {
		cfg.BypassParameters = DefaultVariantServiceConfig().BypassParameters
	}
	return &variantService{
		store:        store,
		versions:     versions,
		fetcher:      fetcher,
		transformer:  transformer,
		index:        index,
		bypassParams: cfg.BypassParameters,
		noVersioning: cfg.DisableVersioning,
		noTags:       cfg.DisableCacheTags,
	}
}

// Serve performs the KV-first lookup for the request, coalescing concurrent
// misses per base key and scheduling the write-back off the response path.
func (s *variantService) Serve(ctx context.Context, req *Request) (*Response, error) {
	baseKey := model.CacheKey(req.Path, req.Options)

	if s.shouldBypass(req) {
		resp, err := s.fetchFresh(ctx, req, baseKey)
		if err != nil {
			return nil, err
		}
		resp.CacheStatus = CacheBypass
		return resp, nil
	}

	variant, err := s.store.Retrieve(ctx, baseKey)
	if err != nil {
		// A KV read failure is served as a miss; the entry may well be
		// intact, so the version is not bumped here either.
		slog.Warn("variant retrieve failed, treating as miss",
			"base_key", baseKey,
			"error", err,
		)
	}
	if variant != nil {
		return hitResponse(baseKey, variant), nil
	}

	result, err, shared := s.sfGroup.Do(baseKey, func() (any, error) {
		return s.fetchAndStore(ctx, req, baseKey)
	})
	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}
	if err != nil {
		return nil, err
	}

	resp := result.(*Response)
	if shared {
		resp = cloneResponse(resp)
	}
	return resp, nil
}

// shouldBypass applies the cache bypass rules: control query parameters,
// non-read methods, and client Cache-Control directives.
func (s *variantService) shouldBypass(req *Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return true
	}
	for _, p := range s.bypassParams {
		if req.Query.Has(p) {
			return true
		}
	}
	cc := strings.ToLower(req.CacheControl)
	return strings.Contains(cc, "no-store") || strings.Contains(cc, "no-cache")
}

// fetchAndStore runs the miss path: version read, origin fetch, transform with
// failover, then a background write-back. The response is complete before the
// write-back runs a single KV operation.
func (s *variantService) fetchAndStore(ctx context.Context, req *Request, baseKey string) (*Response, error) {
	resp, fetch, err := s.fetchTransformed(ctx, req, baseKey)
	if err != nil {
		return nil, err
	}

	s.scheduleStore(ctx, req, baseKey, resp, fetch)
	return resp, nil
}

// fetchFresh runs the miss path without any cache interaction.
func (s *variantService) fetchFresh(ctx context.Context, req *Request, baseKey string) (*Response, error) {
	resp, _, err := s.fetchTransformed(ctx, req, baseKey)
	return resp, err
}

// fetchResult carries what the background store needs to persist the miss.
type fetchResult struct {
	source model.SourceRef
	// version used in the transform URL; recorded on the stored metadata.
	version int
	// bump is set when the key has version history: the counter is
	// incremented on store rather than seeded.
	bump bool
}

func (s *variantService) fetchTransformed(ctx context.Context, req *Request, baseKey string) (*Response, fetchResult, error) {
	opts := req.Options
	version, found := 1, false
	if !s.noVersioning {
		var err error
		version, found, err = s.versions.Get(ctx, baseKey)
		if err != nil {
			slog.Warn("version read failed, assuming first version",
				"base_key", baseKey,
				"error", err,
			)
			version, found = 1, false
		}
	}
	// A key with version history is being repopulated after invalidation:
	// bust the upstream cache with the next version. A brand-new key stays
	// at the default so its URL carries no version marker.
	if found {
		version++
	}
	opts.Version = version

	origin, err := s.fetcher.Fetch(ctx, req.Origin, req.Captures, nil)
	if err != nil {
		return nil, fetchResult{}, mapOriginError(err)
	}

	result, source, headers, err := s.transformWithFailover(ctx, req, origin, opts)
	if err != nil {
		return nil, fetchResult{}, err
	}

	return &Response{
		BaseKey:     baseKey,
		Body:        result.Body,
		ContentType: result.ContentType,
		CacheStatus: CacheMiss,
		Headers:     headers,
	}, fetchResult{source: source, version: version, bump: found}, nil
}

// transformWithFailover wraps the transform call with source failover: when
// the upstream reports the source missing (404), the next source is fetched
// with the failed one excluded and the transform retried. A retryable
// upstream error (timeout, rate limit, internal) gets a single retry with a
// fresh source. The cache key, derivative, and transform parameters are
// unchanged across retries.
func (s *variantService) transformWithFailover(
	ctx context.Context,
	req *Request,
	origin *repository.OriginResult,
	opts model.TransformOptions,
) (*repository.TransformResult, model.SourceRef, map[string]string, error) {
	current := origin
	var exclude []model.SourceRef
	var headers map[string]string
	retried := false

	for {
		result, err := s.transformer.Transform(ctx, current.URL, opts)
		if err == nil {
			if headers != nil {
				metrics.FailoverRetriesTotal.WithLabelValues(metrics.FailoverRecovered).Inc()
			}
			return result, current.Source, headers, nil
		}

		var terr *model.TransformError
		if !errors.As(err, &terr) {
			return nil, model.SourceRef{}, nil, err
		}
		if terr.Status != http.StatusNotFound {
			if !terr.Retryable || retried {
				return nil, model.SourceRef{}, nil, err
			}
			retried = true
		}

		// Try the next source with the failing one excluded.
		exclude = append(exclude, current.Source)
		next, ferr := s.fetcher.Fetch(ctx, req.Origin, req.Captures, exclude)
		if ferr != nil {
			metrics.FailoverRetriesTotal.WithLabelValues(metrics.FailoverExhausted).Inc()
			slog.Warn("source failover exhausted",
				"base_key", model.CacheKey(req.Path, opts),
				"failed_source", current.Source.Type,
				"error", ferr,
			)
			return nil, model.SourceRef{}, nil, terr
		}

		slog.Info("retrying transform with alternative source",
			"origin", req.Origin.Name,
			"failed_source", current.Source.Type,
			"alternative_source", next.Source.Type,
		)
		headers = map[string]string{
			HeaderRetryApplied:      "true",
			HeaderFailedSource:      string(current.Source.Type),
			HeaderAlternativeSource: string(next.Source.Type),
		}
		current = next
	}
}

// scheduleStore hands the version write and KV store to the background
// executor. Failover retries do not reach here a second time for the same
// response, so the version moves at most once per confirmed miss.
func (s *variantService) scheduleStore(ctx context.Context, req *Request, baseKey string, resp *Response, fetch fetchResult) {
	// The stored body must not alias the response body the handler is about
	// to write.
	body := make([]byte, len(resp.Body))
	copy(body, resp.Body)
	opts := req.Options
	path := req.Path
	contentType := resp.ContentType

	background.Schedule(ctx, "store:"+baseKey, func(ctx context.Context) {
		// Persist the version the transform URL carried: increment for a
		// repopulation, seed the counter for a first population. A dropped
		// write only delays the next bust, which is benign.
		if !s.noVersioning {
			if fetch.bump {
				if _, err := s.versions.Increment(ctx, baseKey); err != nil {
					slog.Warn("version bump failed",
						"base_key", baseKey,
						"error", err,
					)
				}
			} else if err := s.versions.Seed(ctx, baseKey); err != nil {
				slog.Warn("version seed failed",
					"base_key", baseKey,
					"error", err,
				)
			}
		}

		var tags []string
		if !s.noTags {
			tags = model.CacheTags(path, opts)
		}
		meta := model.VariantMetadata{
			ContentType:     contentType,
			ContentLength:   int64(len(body)),
			CacheVersion:    fetch.version,
			CacheTags:       tags,
			CreatedAt:       time.Now(),
			SourceType:      string(fetch.source.Type),
			Derivative:      opts.Derivative,
			RequestedWidth:  opts.RequestedWidth,
			RequestedHeight: opts.RequestedHeight,
			MappedFrom:      opts.MappedFrom,
		}

		if err := s.store.Store(ctx, baseKey, body, meta); err != nil {
			if errors.Is(err, repository.ErrStoreSkipped) {
				slog.Debug("variant above store limit, not cached",
					"base_key", baseKey,
					"size", len(body),
				)
				return
			}
			slog.Warn("background store failed",
				"base_key", baseKey,
				"error", err,
			)
			return
		}

		s.upsertIndex(ctx, baseKey, path, meta)
	})
}

func (s *variantService) upsertIndex(ctx context.Context, baseKey, path string, meta model.VariantMetadata) {
	if s.index == nil {
		return
	}
	entry := repository.IndexEntry{
		CacheKey:     baseKey,
		Path:         path,
		Derivative:   meta.Derivative,
		Mode:         keyMode(baseKey),
		Format:       "",
		ContentType:  meta.ContentType,
		TotalSize:    meta.ContentLength,
		ChunkCount:   chunkCount(meta.ContentLength),
		CacheVersion: meta.CacheVersion,
		Tags:         meta.CacheTags,
		SourceType:   meta.SourceType,
		CreatedAt:    meta.CreatedAt,
	}
	if err := s.index.Upsert(ctx, entry); err != nil {
		slog.Warn("variant index upsert failed",
			"base_key", baseKey,
			"error", err,
		)
	}
}

func keyMode(baseKey string) string {
	if i := strings.IndexByte(baseKey, ':'); i > 0 {
		return baseKey[:i]
	}
	return ""
}

func chunkCount(size int64) int {
	if size <= model.SingleEntryLimit {
		return 0
	}
	return int((size + model.StandardChunkSize - 1) / model.StandardChunkSize)
}

func hitResponse(baseKey string, v *model.Variant) *Response {
	resp := &Response{
		BaseKey:     baseKey,
		ContentType: v.Metadata.ContentType,
		CacheStatus: CacheHit,
		Metadata:    &v.Metadata,
	}
	if v.Manifest != nil {
		resp.Manifest = v.Manifest
	} else {
		resp.Body = v.Body
	}
	return resp
}

// cloneResponse copies the body so coalesced requesters never share a slice
// with the initiating request.
func cloneResponse(resp *Response) *Response {
	clone := *resp
	if resp.Body != nil {
		clone.Body = make([]byte, len(resp.Body))
		copy(clone.Body, resp.Body)
	}
	if resp.Headers != nil {
		clone.Headers = make(map[string]string, len(resp.Headers))
		for k, v := range resp.Headers {
			clone.Headers[k] = v
		}
	}
	return &clone
}

func mapOriginError(err error) error {
	switch {
	case errors.Is(err, repository.ErrObjectNotFound):
		return model.NotFound("no source had the requested object")
	case errors.Is(err, repository.ErrAllSourcesFailed):
		return model.OriginUnavailable(err)
	default:
		return err
	}
}
