package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"nova-workspace/backend/internal/logging"
	"nova-workspace/backend/internal/platform/httpx"
)

// RequestLogger logs one line per request with status and latency.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("client_ip", ClientIP(r.Context())),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			}
			fields = append(fields, logging.TraceFields(r.Context())...)
			if ww.Status() >= http.StatusInternalServerError {
				logger.Warn("http request", fields...)
				return
			}
			logger.Debug("http request", fields...)
		})
	}
}

// Recover turns a panic into a 500 SERVER_ERROR JSON response.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("http: panic", zap.Any("panic", v), zap.String("path", r.URL.Path), zap.Stack("stack"))
					httpx.Error(w, http.StatusInternalServerError, "SERVER_ERROR", "Internal server error", "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
