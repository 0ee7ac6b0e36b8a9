package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SourceType identifies the concrete kind of a source endpoint.
type SourceType string

const (
	SourceBucket   SourceType = "r2"
	SourceRemote   SourceType = "remote"
	SourceFallback SourceType = "fallback"
)

func (s SourceType) IsValid() bool {
	switch s {
	case SourceBucket, SourceRemote, SourceFallback:
		return true
	default:
		return false
	}
}

// AuthType selects how a source request is authenticated.
type AuthType string

const (
	AuthNone        AuthType = "none"
	AuthQueryToken  AuthType = "query-token"
	AuthHeaderToken AuthType = "header-token"
	AuthPresigned   AuthType = "presigned"
)

// AuthConfig carries per-source authentication settings.
type AuthConfig struct {
	Type AuthType `json:"type"`
	// Token parameter or header name, depending on Type.
	Name  string `json:"name,omitempty"`
	Token string `json:"token,omitempty"`
	// Presigned URL validity; must be at least 60s per the presigner contract.
	ExpirySeconds int `json:"expirySeconds,omitempty"`
}

// Source is one concrete endpoint inside an Origin's ordered source list.
// The (origin name, type, priority) triple uniquely identifies a source.
type Source struct {
	Type         SourceType `json:"type"`
	Priority     int        `json:"priority"`
	PathTemplate string     `json:"pathTemplate"`
	// BaseURL applies to remote/fallback sources; bucket name to r2 sources.
	BaseURL string      `json:"baseUrl,omitempty"`
	Bucket  string      `json:"bucket,omitempty"`
	Auth    *AuthConfig `json:"auth,omitempty"`
}

// ResolvePath expands the source's path template with the origin matcher's
// capture groups: {0} is the full match, {1}.. the groups.
func (s Source) ResolvePath(captures []string) string {
	path := s.PathTemplate
	for i, c := range captures {
		path = strings.ReplaceAll(path, "{"+strconv.Itoa(i)+"}", c)
	}
	return strings.TrimLeft(path, "/")
}

// TTLConfig holds per-status-class response TTLs in seconds.
type TTLConfig struct {
	OK          int `json:"ok"`
	ClientError int `json:"clientError"`
	ServerError int `json:"serverError"`
	Redirects   int `json:"redirects"`
}

// Origin is a declarative routing rule: a path regex with capture groups and
// an ordered list of candidate sources.
type Origin struct {
	Name    string     `json:"name"`
	Matcher string     `json:"matcher"`
	Sources []Source   `json:"sources"`
	TTL     *TTLConfig `json:"ttl,omitempty"`
	// TransformationOverrides are applied by the option resolver between
	// derivative defaults and query parameters.
	TransformationOverrides map[string]string `json:"transformationOverrides,omitempty"`

	matcher *regexp.Regexp
}

// Compile validates and compiles the origin's matcher. It must be called once
// at configuration load; origins are read-only afterwards.
func (o *Origin) Compile() error {
	if o.Name == "" {
		return fmt.Errorf("origin requires a name")
	}
	re, err := regexp.Compile(o.Matcher)
	if err != nil {
		return fmt.Errorf("origin %q: compile matcher: %w", o.Name, err)
	}
	for _, s := range o.Sources {
		if !s.Type.IsValid() {
			return fmt.Errorf("origin %q: invalid source type %q", o.Name, s.Type)
		}
	}
	o.matcher = re
	return nil
}

// Match tests the request path against the origin's matcher and returns the
// capture groups ({0} = full match) on success.
func (o *Origin) Match(path string) ([]string, bool) {
	if o.matcher == nil {
		return nil, false
	}
	m := o.matcher.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	return m, true
}

// SortedSources returns the sources in ascending priority order, skipping any
// whose (type, priority) pair appears in exclude.
func (o *Origin) SortedSources(exclude []SourceRef) []Source {
	out := make([]Source, 0, len(o.Sources))
	for _, s := range o.Sources {
		if refExcluded(exclude, o.Name, s) {
			continue
		}
		out = append(out, s)
	}
	// Source lists are short; insertion sort keeps this allocation-free.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority < out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// SourceRef identifies a source within an origin for exclusion lists.
type SourceRef struct {
	Origin   string
	Type     SourceType
	Priority int
}

func refExcluded(exclude []SourceRef, origin string, s Source) bool {
	for _, ref := range exclude {
		if ref.Origin == origin && ref.Type == s.Type && ref.Priority == s.Priority {
			return true
		}
	}
	return false
}
