package middleware

import (
	"context"

	"nova-workspace/backend/internal/security"
)

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	clientIPKey = contextKey{"client_ip"}
)

// WithIdentity returns a context carrying the authenticated caller.
// Handlers read it via GetIdentity or GetUserID.
func WithIdentity(ctx context.Context, id *security.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the caller identity from context and true if set; otherwise nil, false.
func GetIdentity(ctx context.Context) (*security.Identity, bool) {
	v, ok := ctx.Value(identityKey).(*security.Identity)
	return v, ok && v != nil
}

// GetUserID returns the caller user id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := GetIdentity(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP recorded by the ClientIP middleware, or "".
// Its signature matches audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}
