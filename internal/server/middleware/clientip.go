package middleware

import (
	"net"
	"net/http"
	"strings"
)

// RealIP records the client IP (X-Forwarded-For, X-Real-IP, then RemoteAddr) in the request context.
func RealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), clientIP(r))))
	})
}

func clientIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
