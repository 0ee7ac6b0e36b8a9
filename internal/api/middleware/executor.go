package middleware

import (
	"net/http"

	"github.com/vidproxy/vidproxy/internal/background"
)

// Executor attaches the process-wide background executor to every request
// context so cache write-backs can outlive the response.
func Executor(e *background.Executor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := background.WithExecutor(r.Context(), e)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
