package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"coai-backend/core/marketplace"
	auth "coai-backend/storage/auth"
)

// UserLookup resolves the user behind a session.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (marketplace.User, error)
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// RequireSession rejects requests without a live session token and attaches
// the caller to the request context.
func RequireSession(sessions auth.SessionStore, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "token_required", "Not authorized, no token")
				return
			}
			sess, err := sessions.Lookup(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrSessionNotFound) {
					log.Printf("session lookup failed: %v", err)
				}
				writeError(w, http.StatusUnauthorized, "token_invalid", "Not authorized, token failed")
				return
			}
			user, err := users.GetUser(r.Context(), sess.UserID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "user_not_found", "User not found")
				return
			}
			ctx := WithActor(r.Context(), Actor{User: user, Session: sess})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after RequireSession.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := ActorFrom(r.Context())
		if !ok || a.User.Role != marketplace.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden", "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
