// Package handler serves the bootstrap endpoint.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"nova-workspace/backend/internal/bootstrap/service"
	"nova-workspace/backend/internal/logging"
	"nova-workspace/backend/internal/platform/httpx"
	"nova-workspace/backend/internal/server/middleware"
)

// Bootstrapper is the provisioning operation behind POST /api/bootstrap.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, in service.Input) (*service.Result, error)
}

// Response is the JSON body of a successful bootstrap.
type Response struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
}

// Handler handles bootstrap HTTP requests.
type Handler struct {
	service Bootstrapper
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler returns a Handler. A nil service answers 503 BOOTSTRAP_UNCONFIGURED.
func NewHandler(svc Bootstrapper, timeout time.Duration, logger *zap.Logger) *Handler {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Handler{service: svc, timeout: timeout, logger: logging.OrNop(logger)}
}

// RegisterRoutes mounts the bootstrap routes. The router must already apply middleware.Auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/bootstrap", h.Bootstrap)
	r.Post("/auth/onboard", h.Onboard)
}

// Bootstrap handles POST /api/bootstrap.
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "BOOTSTRAP_UNCONFIGURED", "Bootstrap is not configured", "")
		return
	}
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user context", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	res, err := h.service.Bootstrap(ctx, service.Input{UserID: id.UserID, Email: id.Email, FullName: id.FullName})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, Response{TenantID: res.TenantID, UserID: res.UserID, Role: string(res.Role)})
}

// Onboard handles the retired POST /api/auth/onboard.
func (h *Handler) Onboard(w http.ResponseWriter, r *http.Request) {
	httpx.Error(w, http.StatusGone, "DEPRECATED", "Onboarding moved to POST /api/bootstrap", "")
}

// writeError maps a bootstrap error to its response. A passed deadline wins over the store or
// policy error it surfaced as.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var be *service.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		h.logger.Warn("bootstrap: timed out", zap.Duration("timeout", h.timeout), zap.Error(err))
		httpx.Error(w, http.StatusGatewayTimeout, "TIMEOUT", "Bootstrap timed out", "")
	case errors.As(err, &be):
		code := map[service.ErrorKind]string{
			service.KindProfileUpsert:    "PROFILE_ERROR",
			service.KindWorkspaceCreate:  "WORKSPACE_ERROR",
			service.KindWorkspaceNoID:    "WORKSPACE_NO_ID",
			service.KindMembershipUpsert: "MEMBER_ERROR",
		}[be.Kind]
		if code == "" {
			code = "SERVER_ERROR"
		}
		details := ""
		if be.Err != nil {
			details = be.Err.Error()
		}
		httpx.Error(w, http.StatusInternalServerError, code, "Bootstrap failed", details)
	case errors.Is(err, service.ErrForbidden):
		httpx.Error(w, http.StatusForbidden, "BOOTSTRAP_FORBIDDEN", "Workspace provisioning is not permitted for this account", err.Error())
	case errors.Is(err, service.ErrPolicyUnavailable):
		httpx.Error(w, http.StatusServiceUnavailable, "BOOTSTRAP_UNCONFIGURED", "Bootstrap policy is unavailable", "")
	case errors.Is(err, service.ErrInvalidIdentity):
		httpx.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Token is missing required claims", "")
	default:
		h.logger.Error("bootstrap: unexpected error", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "SERVER_ERROR", "Internal server error", "")
	}
}
