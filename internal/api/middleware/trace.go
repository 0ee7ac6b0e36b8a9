package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// headerBudget bounds the serialized breadcrumb header size.
const headerBudget = 512

const traceKey ctxKey = 100

// Trace is the request-scoped breadcrumb trail. Handlers append steps as the
// pipeline advances; the variant handler serializes them into a response
// header. The trace lives exactly one request and is dropped with the context.
type Trace struct {
	Start time.Time
	debug bool

	mu    sync.Mutex
	steps []string
}

// Add appends a breadcrumb step.
func (t *Trace) Add(step string) {
	t.mu.Lock()
	t.steps = append(t.steps, step)
	t.mu.Unlock()
}

// Debug reports whether the request asked for debug headers.
func (t *Trace) Debug() bool {
	return t.debug
}

// Header serializes the breadcrumbs, truncated to the header budget.
func (t *Trace) Header() string {
	t.mu.Lock()
	joined := strings.Join(t.steps, ",")
	t.mu.Unlock()
	if len(joined) > headerBudget {
		joined = joined[:headerBudget]
	}
	return joined
}

// WithTrace installs a fresh Trace into every request context. Debug headers
// are emitted only when the deployment allows them and the request asks with
// the debug query parameter.
func WithTrace(allowDebug bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := &Trace{
				Start: time.Now(),
				debug: allowDebug && r.URL.Query().Has("debug"),
			}
			ctx := context.WithValue(r.Context(), traceKey, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TraceFrom retrieves the request trace; nil when the middleware is absent.
func TraceFrom(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey).(*Trace)
	return t
}
