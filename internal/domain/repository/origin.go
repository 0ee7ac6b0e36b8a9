package repository

import (
	"context"

	"github.com/vidproxy/vidproxy/internal/domain/model"
)

// OriginResult is the first available source for an origin. The body itself
// is never carried here: the transform endpoint fetches URL on its own, so
// the gateway only establishes that the object exists.
type OriginResult struct {
	// Source identifies which source had the object.
	Source model.SourceRef
	// URL is the concrete origin URL handed to the transform endpoint.
	URL string
}

// OriginFetcher iterates an origin's ordered source list and returns the
// first source whose object is reachable.
type OriginFetcher interface {
	// Fetch tries each source by ascending priority, skipping exclude.
	// Returns ErrObjectNotFound when every source 404ed, ErrAllSourcesFailed
	// when non-404 failures exhausted the list.
	Fetch(ctx context.Context, origin *model.Origin, captures []string, exclude []model.SourceRef) (*OriginResult, error)
}

// TransformResult is a successful response from the transform endpoint.
type TransformResult struct {
	Body        []byte
	ContentType string
}

// TransformClient performs the upstream media transformation fetch.
type TransformClient interface {
	// Transform builds the upstream URL for originURL and opts and performs
	// the GET. Failures with a provider error header come back as
	// *model.TransformError.
	Transform(ctx context.Context, originURL string, opts model.TransformOptions) (*TransformResult, error)
}
