// Package middleware holds the chi middleware of the HTTP API: bearer authentication,
// client IP capture, request logging and panic recovery.
package middleware

import (
	"net/http"
	"strings"

	"nova-workspace/backend/internal/platform/httpx"
	"nova-workspace/backend/internal/security"
)

const bearerPrefix = "bearer "

// TokenValidator validates a bearer token and returns the caller.
type TokenValidator interface {
	Validate(token string) (*security.Identity, error)
}

// Auth returns middleware that validates the Bearer token and stores the identity in the request
// context. A missing or malformed header answers 401 UNAUTHORIZED; a token that fails validation
// answers 401 INVALID_TOKEN.
func Auth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				httpx.Error(w, http.StatusServiceUnavailable, "AUTH_UNCONFIGURED", "Token verification is not configured", "")
				return
			}
			token := ExtractBearer(r.Header.Get("Authorization"))
			if token == "" {
				httpx.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authorization header", "")
				return
			}
			id, err := tokens.Validate(token)
			if err != nil {
				httpx.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header value, or "" if missing or malformed.
func ExtractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
