// Package origin fetches source media for a matched origin, walking the
// ordered source list until one answers.
package origin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/domain/repository"
	"github.com/vidproxy/vidproxy/internal/infrastructure/metrics"
)

const (
	// defaultSourceTimeout bounds each individual source fetch. Source
	// fetches inherit the request deadline but keep at least this much
	// room to finish even when the client is slow.
	defaultSourceTimeout = 30 * time.Second

	// defaultPresignExpiry is used when a bucket source's auth config does
	// not set one. The presigner contract requires at least 60s.
	defaultPresignExpiry = 5 * time.Minute
)

// FetcherConfig holds configuration for the origin fetcher.
type FetcherConfig struct {
	SourceTimeout time.Duration
}

// Fetcher implements repository.OriginFetcher over bucket and HTTP sources.
type Fetcher struct {
	httpClient *http.Client
	// buckets maps a bucket name to its storage client; wired at startup
	// from the sources referenced in the routing config.
	buckets map[string]repository.ObjectStorage
	timeout time.Duration
}

var _ repository.OriginFetcher = (*Fetcher)(nil)

// NewFetcher creates an origin fetcher. buckets must contain a client for
// every bucket name the routing config references.
func NewFetcher(httpClient *http.Client, buckets map[string]repository.ObjectStorage, cfg FetcherConfig) *Fetcher {
	if cfg.SourceTimeout == 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Fetcher{
		httpClient: httpClient,
		buckets:    buckets,
		timeout:    cfg.SourceTimeout,
	}
}

// Fetch tries each source in ascending priority order, skipping exclude, and
// returns the first source whose object is reachable, with the origin URL the
// transform endpoint should fetch. The object bytes stay at the source; the
// transform endpoint downloads them itself.
func (f *Fetcher) Fetch(ctx context.Context, origin *model.Origin, captures []string, exclude []model.SourceRef) (*repository.OriginResult, error) {
	sources := origin.SortedSources(exclude)
	if len(sources) == 0 {
		return nil, repository.ErrObjectNotFound
	}

	sawNonNotFound := false
	for _, s := range sources {
		result, err := f.fetchSource(ctx, origin, s, captures)
		if err == nil {
			metrics.OriginFetchesTotal.WithLabelValues(string(s.Type), metrics.OriginStatusOK).Inc()
			return result, nil
		}
		if err == repository.ErrObjectNotFound {
			metrics.OriginFetchesTotal.WithLabelValues(string(s.Type), metrics.OriginStatusNotFound).Inc()
		} else {
			metrics.OriginFetchesTotal.WithLabelValues(string(s.Type), metrics.OriginStatusError).Inc()
			sawNonNotFound = true
		}
		slog.Warn("origin source failed",
			"origin", origin.Name,
			"source_type", s.Type,
			"priority", s.Priority,
			"error", err,
		)
	}

	if sawNonNotFound {
		return nil, repository.ErrAllSourcesFailed
	}
	return nil, repository.ErrObjectNotFound
}

func (f *Fetcher) fetchSource(ctx context.Context, origin *model.Origin, s model.Source, captures []string) (*repository.OriginResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	path := s.ResolvePath(captures)
	ref := model.SourceRef{Origin: origin.Name, Type: s.Type, Priority: s.Priority}

	if s.Type == model.SourceBucket {
		return f.fetchBucket(ctx, s, path, ref)
	}
	return f.fetchHTTP(ctx, s, path, ref)
}

// fetchBucket checks the object with a Stat call, never a download, then
// presigns a GET URL the transform endpoint can reach.
func (f *Fetcher) fetchBucket(ctx context.Context, s model.Source, path string, ref model.SourceRef) (*repository.OriginResult, error) {
	store, ok := f.buckets[s.Bucket]
	if !ok {
		return nil, fmt.Errorf("no storage client for bucket %q", s.Bucket)
	}

	exists, err := store.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("stat bucket object: %w", err)
	}
	if !exists {
		return nil, repository.ErrObjectNotFound
	}

	expiry := defaultPresignExpiry
	if s.Auth != nil && s.Auth.ExpirySeconds > 0 {
		expiry = time.Duration(s.Auth.ExpirySeconds) * time.Second
	}
	signedURL, err := store.GeneratePresignedDownloadURL(ctx, path, expiry)
	if err != nil {
		return nil, fmt.Errorf("presign object URL: %w", err)
	}

	return &repository.OriginResult{
		Source: ref,
		URL:    signedURL,
	}, nil
}

// fetchHTTP checks the source with a HEAD request. Only the status matters;
// no body is ever read.
func (f *Fetcher) fetchHTTP(ctx context.Context, s model.Source, path string, ref model.SourceRef) (*repository.OriginResult, error) {
	sourceURL, err := buildSourceURL(s, path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build source request: %w", err)
	}
	applyHeaderAuth(req, s.Auth)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("head source: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &repository.OriginResult{
			Source: ref,
			URL:    sourceURL,
		}, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, repository.ErrObjectNotFound
	default:
		return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
	}
}

// buildSourceURL joins the base URL and resolved path and applies query-token
// auth when configured.
func buildSourceURL(s model.Source, path string) (string, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse source base URL: %w", err)
	}
	u = u.JoinPath(path)

	if s.Auth != nil && s.Auth.Type == model.AuthQueryToken {
		q := u.Query()
		q.Set(s.Auth.Name, s.Auth.Token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func applyHeaderAuth(req *http.Request, auth *model.AuthConfig) {
	if auth != nil && auth.Type == model.AuthHeaderToken {
		req.Header.Set(auth.Name, auth.Token)
	}
}
