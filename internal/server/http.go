package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"nova-workspace/backend/internal/platform/httpx"
	"nova-workspace/backend/internal/server/middleware"
)

// RouteRegistrar mounts a handler's routes under /api.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// HTTPDeps holds the dependencies of the HTTP API router.
type HTTPDeps struct {
	// Tokens validates bearer tokens. If nil, every /api route answers 503 AUTH_UNCONFIGURED.
	Tokens middleware.TokenValidator
	// Health serves GET /healthz. If nil, /healthz always answers 200.
	Health http.Handler
	// Routes are mounted under /api behind authentication.
	Routes []RouteRegistrar
	Logger *zap.Logger
}

// NewRouter returns the HTTP API handler.
func NewRouter(deps HTTPDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recover(deps.Logger))

	if deps.Health != nil {
		r.Method(http.MethodGet, "/healthz", deps.Health)
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Tokens))
		for _, rr := range deps.Routes {
			if rr != nil {
				rr.RegisterRoutes(r)
			}
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "Not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", "")
	})
	return r
}
