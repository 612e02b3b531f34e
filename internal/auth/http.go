// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts the JWT from the Authorization header (or access_token query) and adds the actor to context

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// ActorStore reports whether an actor is known.
type ActorStore interface {
	ActorExists(ctx context.Context, actorID string) (bool, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// requestToken prefers the Authorization header; browsers cannot set headers
// on a websocket handshake, so access_token is accepted as a fallback.
func requestToken(r *http.Request) (string, string) {
	if r.Header.Get("Authorization") == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, ""
		}
	}
	return extractBearerToken(r.Header.Get("Authorization"))
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// HTTPAuthMiddleware creates an HTTP middleware that validates JWT tokens and
// rejects actors the store does not know.
func HTTPAuthMiddleware(actors ActorStore, verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := requestToken(r)
			if errMsg != "" {
				writeAuthError(w, http.StatusUnauthorized, errMsg)
				return
			}

			actorID, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("token rejected", "error", err, "path", r.URL.Path)
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			exists, err := actors.ActorExists(r.Context(), actorID)
			if err != nil {
				logger.Error("actor lookup failed", "actor_id", actorID, "error", err)
				writeAuthError(w, http.StatusServiceUnavailable, "actor lookup failed")
				return
			}
			if !exists {
				writeAuthError(w, http.StatusUnauthorized, "unknown actor")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), &AuthContext{ActorID: actorID})))
		})
	}
}
