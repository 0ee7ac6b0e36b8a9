package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/vidproxy/vidproxy/internal/api/middleware"
	"github.com/vidproxy/vidproxy/internal/config"
	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/domain/repository"
	"github.com/vidproxy/vidproxy/internal/infrastructure/cache"
	"github.com/vidproxy/vidproxy/internal/infrastructure/metrics"
	"github.com/vidproxy/vidproxy/internal/options"
	"github.com/vidproxy/vidproxy/internal/usecase"
)

// Response headers the variant handler emits.
const (
	HeaderCacheSource = "X-Cache-Source"
	HeaderBreadcrumbs = "X-Breadcrumbs"

	headerDebugCacheKey   = "X-Debug-Cache-Key"
	headerDebugDerivative = "X-Debug-Derivative"
	headerDebugMappedFrom = "X-Debug-Mapped-From"
)

// VariantHandlerConfig holds configuration for the variant handler.
type VariantHandlerConfig struct {
	// DefaultMaxAge is the Cache-Control max-age (seconds) when the matched
	// origin has no TTL config.
	DefaultMaxAge int
}

// VariantHandler is the catch-all entry point: origin match, option
// resolution, cache orchestration, and response building including ranges.
type VariantHandler struct {
	svc      usecase.VariantService
	store    repository.VariantStore
	routing  *config.Routing
	resolver *options.Resolver
	cfg      VariantHandlerConfig
}

// NewVariantHandler creates a new VariantHandler.
func NewVariantHandler(
	svc usecase.VariantService,
	store repository.VariantStore,
	routing *config.Routing,
	resolver *options.Resolver,
	cfg VariantHandlerConfig,
) *VariantHandler {
	return &VariantHandler{
		svc:      svc,
		store:    store,
		routing:  routing,
		resolver: resolver,
		cfg:      cfg,
	}
}

// Serve handles GET/HEAD for any media path.
func (h *VariantHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trace := middleware.TraceFrom(ctx)

	origin, captures, ok := h.routing.MatchOrigin(r.URL.Path)
	if !ok {
		Error(w, r, http.StatusNotFound, string(model.KindNotFound), "no origin matches the request path")
		return
	}
	if trace != nil {
		trace.Add("origin:" + origin.Name)
	}

	opts, err := h.resolver.Resolve(r.URL.Query(), origin)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	if trace != nil {
		if opts.Derivative != "" {
			trace.Add("derivative:" + opts.Derivative)
		}
		if opts.MappedFrom != "" {
			trace.Add("mapped:" + opts.MappedFrom)
		}
	}

	resp, err := h.svc.Serve(ctx, &usecase.Request{
		Method:       r.Method,
		Path:         r.URL.Path,
		Query:        r.URL.Query(),
		CacheControl: r.Header.Get("Cache-Control"),
		Options:      opts,
		Origin:       origin,
		Captures:     captures,
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	if trace != nil {
		trace.Add("cache:" + resp.CacheStatus)
	}

	h.writeHeaders(w, r, origin, opts, resp, trace)
	h.writeBody(w, r, resp)
}

func (h *VariantHandler) writeHeaders(w http.ResponseWriter, r *http.Request, origin *model.Origin, opts model.TransformOptions, resp *usecase.Response, trace *middleware.Trace) {
	header := w.Header()
	header.Set("Content-Type", resp.ContentType)
	header.Set(HeaderCacheSource, resp.CacheStatus)
	header.Set("Accept-Ranges", "bytes")

	maxAge := h.cfg.DefaultMaxAge
	if origin.TTL != nil && origin.TTL.OK > 0 {
		maxAge = origin.TTL.OK
	}
	if maxAge > 0 {
		header.Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
	}

	for k, v := range resp.Headers {
		header.Set(k, v)
	}

	if trace != nil && trace.Debug() {
		if crumbs := trace.Header(); crumbs != "" {
			header.Set(HeaderBreadcrumbs, crumbs)
		}
		header.Set(headerDebugCacheKey, resp.BaseKey)
		if opts.Derivative != "" {
			header.Set(headerDebugDerivative, opts.Derivative)
		}
		if opts.MappedFrom != "" {
			header.Set(headerDebugMappedFrom, opts.MappedFrom)
		}
	}
}

// writeBody emits the variant, honoring a single-range request when it is
// satisfiable and falling back to a full 200 when it is not.
func (h *VariantHandler) writeBody(w http.ResponseWriter, r *http.Request, resp *usecase.Response) {
	totalSize := int64(len(resp.Body))
	if resp.Manifest != nil {
		totalSize = resp.Manifest.TotalSize
	}

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		start, end, ok := cache.ParseRange(rangeHeader, totalSize)
		if ok {
			metrics.RangeRequestsTotal.WithLabelValues(metrics.RangePartial).Inc()
			h.writeRange(w, r, resp, start, end, totalSize)
			return
		}
		// Bad or multi ranges get the full body so players keep playing.
		metrics.RangeRequestsTotal.WithLabelValues(metrics.RangeFullFallback).Inc()
	}

	w.Header().Set("Content-Length", strconv.FormatInt(totalSize, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	if resp.Manifest != nil {
		if err := h.store.StreamRange(r.Context(), resp.BaseKey, *resp.Manifest, 0, totalSize-1, w); err != nil {
			// Headers are out; nothing to do but stop writing.
			return
		}
		return
	}
	_, _ = w.Write(resp.Body)
}

func (h *VariantHandler) writeRange(w http.ResponseWriter, r *http.Request, resp *usecase.Response, start, end, totalSize int64) {
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, totalSize))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}

	if resp.Manifest != nil {
		_ = h.store.StreamRange(r.Context(), resp.BaseKey, *resp.Manifest, start, end, w)
		return
	}
	_, _ = w.Write(resp.Body[start : end+1])
}
