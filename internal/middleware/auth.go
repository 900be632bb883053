package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/darshjasani/Pulse/internal/model"
)

// TokenVerifier verifies a bearer token and returns the user id it
// identifies; *auth.TokenService satisfies it.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

type contextKey string

const userIDKey contextKey = "user_id"

// UserIDFromContext returns the authenticated user id placed on the
// request context by NewAuthMiddleware.
func UserIDFromContext(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0, model.NewUnauthorized("authentication required")
	}
	return id, nil
}

// WithUserID returns a context carrying the user id, for tests that
// exercise handlers without the middleware chain.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// NewAuthMiddleware requires a valid bearer credential on every request
// it wraps and stores the verified user id on the context.
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized,
					"missing bearer credential", string(model.KindUnauthorized))
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
