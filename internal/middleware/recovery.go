package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/darshjasani/Pulse/internal/model"
)

// NewRecoveryMiddleware converts handler panics into 500 responses
// instead of crashing the process.
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					WriteErrorResponse(w, http.StatusInternalServerError,
						"internal server error", string(model.KindInternal))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
