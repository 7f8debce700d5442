package identity

import (
	"context"
	"net/http"

	"github.com/ashureev/chatsync/internal/domain"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the signed-in user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// CurrentIdentity yields the signed-in identity, if any.
type CurrentIdentity interface {
	Current() (domain.Identity, bool)
}

// RequireSession rejects requests with 401 unless there is an active session,
// and injects the user ID otherwise.
func RequireSession(p CurrentIdentity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := p.Current()
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"not signed in"}`))
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, id.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
