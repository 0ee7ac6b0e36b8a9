package origin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/domain/repository"
)

type mockObjectStorage struct {
	existsFunc  func(ctx context.Context, key string) (bool, error)
	presignFunc func(ctx context.Context, key string, expiry time.Duration) (string, error)
}

func (m *mockObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, repository.ObjectInfo, error) {
	return nil, repository.ObjectInfo{}, errors.New("fetcher must not download origin objects")
}

func (m *mockObjectStorage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return m.presignFunc(ctx, key, expiry)
}

func (m *mockObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	return m.existsFunc(ctx, key)
}

func compiledOrigin(t *testing.T, o *model.Origin) *model.Origin {
	t.Helper()
	if err := o.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return o
}

func TestFetcher_RemoteSource(t *testing.T) {
	var gotMethod, gotPath, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
	}))
	defer server.Close()

	origin := compiledOrigin(t, &model.Origin{
		Name:    "videos",
		Matcher: `^/videos/(.+)$`,
		Sources: []model.Source{
			{
				Type:         model.SourceRemote,
				Priority:     1,
				PathTemplate: "media/{1}",
				BaseURL:      server.URL,
				Auth:         &model.AuthConfig{Type: model.AuthQueryToken, Name: "token", Token: "s3cret"},
			},
		},
	})

	f := NewFetcher(server.Client(), nil, FetcherConfig{})
	result, err := f.Fetch(context.Background(), origin, []string{"/videos/clip.mp4", "clip.mp4"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	// Only availability is checked here; the transform endpoint downloads
	// the object itself via result.URL.
	if gotMethod != http.MethodHead {
		t.Errorf("request method = %q, want HEAD", gotMethod)
	}
	if gotPath != "/media/clip.mp4" {
		t.Errorf("request path = %q, want /media/clip.mp4", gotPath)
	}
	if gotToken != "s3cret" {
		t.Errorf("token = %q, want s3cret", gotToken)
	}
	if result.URL != server.URL+"/media/clip.mp4?token=s3cret" {
		t.Errorf("URL = %q", result.URL)
	}
	if result.Source.Type != model.SourceRemote || result.Source.Priority != 1 {
		t.Errorf("Source = %+v, want remote priority 1", result.Source)
	}
}

func TestFetcher_HeaderAuth(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
	}))
	defer server.Close()

	origin := compiledOrigin(t, &model.Origin{
		Name:    "videos",
		Matcher: `^/videos/(.+)$`,
		Sources: []model.Source{
			{
				Type:         model.SourceRemote,
				Priority:     1,
				PathTemplate: "{1}",
				BaseURL:      server.URL,
				Auth:         &model.AuthConfig{Type: model.AuthHeaderToken, Name: "X-Api-Key", Token: "k3y"},
			},
		},
	})

	f := NewFetcher(server.Client(), nil, FetcherConfig{})
	if _, err := f.Fetch(context.Background(), origin, []string{"/videos/a.mp4", "a.mp4"}, nil); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotHeader != "k3y" {
		t.Errorf("X-Api-Key = %q, want k3y", gotHeader)
	}
}

func TestFetcher_FailoverOn404(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer secondary.Close()

	origin := compiledOrigin(t, &model.Origin{
		Name:    "videos",
		Matcher: `^/videos/(.+)$`,
		Sources: []model.Source{
			{Type: model.SourceFallback, Priority: 2, PathTemplate: "{1}", BaseURL: secondary.URL},
			{Type: model.SourceRemote, Priority: 1, PathTemplate: "{1}", BaseURL: primary.URL},
		},
	})

	f := NewFetcher(http.DefaultClient, nil, FetcherConfig{})
	result, err := f.Fetch(context.Background(), origin, []string{"/videos/a.mp4", "a.mp4"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Source.Type != model.SourceFallback {
		t.Errorf("Source.Type = %q, want fallback", result.Source.Type)
	}
	if result.URL != secondary.URL+"/a.mp4" {
		t.Errorf("URL = %q, want the fallback source URL", result.URL)
	}
}

func TestFetcher_AllNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	origin := compiledOrigin(t, &model.Origin{
		Name:    "videos",
		Matcher: `^/videos/(.+)$`,
		Sources: []model.Source{
			{Type: model.SourceRemote, Priority: 1, PathTemplate: "{1}", BaseURL: server.URL},
			{Type: model.SourceFallback, Priority: 2, PathTemplate: "{1}", BaseURL: server.URL},
		},
	})

	f := NewFetcher(http.DefaultClient, nil, FetcherConfig{})
	_, err := f.Fetch(context.Background(), origin, []string{"/videos/a.mp4", "a.mp4"}, nil)
	if err != repository.ErrObjectNotFound {
		t.Errorf("Fetch() error = %v, want ErrObjectNotFound", err)
	}
}

func TestFetcher_MixedFailures(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer notFound.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	origin := compiledOrigin(t, &model.Origin{
		Name:    "videos",
		Matcher: `^/videos/(.+)$`,
		Sources: []model.Source{
			{Type: model.SourceRemote, Priority: 1, PathTemplate: "{1}", BaseURL: notFound.URL},
			{Type: model.SourceFallback, Priority: 2, PathTemplate: "{1}", BaseURL: broken.URL},
		},
	})

	f := NewFetcher(http.DefaultClient, nil, FetcherConfig{})
	_, err := f.Fetch(context.Background(), origin, []string{"/videos/a.mp4", "a.mp4"}, nil)
	if err != repository.ErrAllSourcesFailed {
		t.Errorf("Fetch() error = %v, want ErrAllSourcesFailed", err)
	}
}

func TestFetcher_ExcludedSourceSkipped(t *testing.T) {
	var primaryHits int
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits++
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer secondary.Close()

	origin := compiledOrigin(t, &model.Origin{
		Name:    "videos",
		Matcher: `^/videos/(.+)$`,
		Sources: []model.Source{
			{Type: model.SourceRemote, Priority: 1, PathTemplate: "{1}", BaseURL: primary.URL},
			{Type: model.SourceFallback, Priority: 2, PathTemplate: "{1}", BaseURL: secondary.URL},
		},
	})

	exclude := []model.SourceRef{{Origin: "videos", Type: model.SourceRemote, Priority: 1}}
	f := NewFetcher(http.DefaultClient, nil, FetcherConfig{})
	result, err := f.Fetch(context.Background(), origin, []string{"/videos/a.mp4", "a.mp4"}, exclude)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Source.Type != model.SourceFallback {
		t.Errorf("Source.Type = %q, want fallback", result.Source.Type)
	}
	if primaryHits != 0 {
		t.Errorf("primary hit %d times, want 0", primaryHits)
	}
}

func TestFetcher_BucketSource(t *testing.T) {
	store := &mockObjectStorage{
		existsFunc: func(_ context.Context, key string) (bool, error) {
			if key != "media/clip.mp4" {
				t.Errorf("Exists key = %q, want media/clip.mp4", key)
			}
			return true, nil
		},
		presignFunc: func(_ context.Context, key string, expiry time.Duration) (string, error) {
			if expiry != defaultPresignExpiry {
				t.Errorf("presign expiry = %v, want %v", expiry, defaultPresignExpiry)
			}
			return "https://bucket.example/" + key + "?sig=abc", nil
		},
	}

	origin := compiledOrigin(t, &model.Origin{
		Name:    "videos",
		Matcher: `^/videos/(.+)$`,
		Sources: []model.Source{
			{Type: model.SourceBucket, Priority: 1, PathTemplate: "media/{1}", Bucket: "videos"},
		},
	})

	f := NewFetcher(nil, map[string]repository.ObjectStorage{"videos": store}, FetcherConfig{})
	result, err := f.Fetch(context.Background(), origin, []string{"/videos/clip.mp4", "clip.mp4"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.URL != "https://bucket.example/media/clip.mp4?sig=abc" {
		t.Errorf("URL = %q", result.URL)
	}
	if result.Source.Type != model.SourceBucket {
		t.Errorf("Source.Type = %q, want r2", result.Source.Type)
	}
}

func TestFetcher_BucketNotFoundFailsOver(t *testing.T) {
	store := &mockObjectStorage{
		existsFunc: func(context.Context, string) (bool, error) {
			return false, nil
		},
	}
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer secondary.Close()

	origin := compiledOrigin(t, &model.Origin{
		Name:    "videos",
		Matcher: `^/videos/(.+)$`,
		Sources: []model.Source{
			{Type: model.SourceBucket, Priority: 1, PathTemplate: "{1}", Bucket: "videos"},
			{Type: model.SourceRemote, Priority: 2, PathTemplate: "{1}", BaseURL: secondary.URL},
		},
	})

	f := NewFetcher(http.DefaultClient, map[string]repository.ObjectStorage{"videos": store}, FetcherConfig{})
	result, err := f.Fetch(context.Background(), origin, []string{"/videos/a.mp4", "a.mp4"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Source.Type != model.SourceRemote {
		t.Errorf("Source.Type = %q, want remote failover", result.Source.Type)
	}
}
