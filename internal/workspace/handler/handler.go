// Package handler serves the workspace read endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"nova-workspace/backend/internal/logging"
	"nova-workspace/backend/internal/platform/httpx"
	"nova-workspace/backend/internal/platform/rbac"
	"nova-workspace/backend/internal/server/middleware"
	"nova-workspace/backend/internal/workspace/service"
)

// WorkspaceJSON is a workspace as returned by the API.
type WorkspaceJSON struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Role      string     `json:"role"`
	OwnerID   string     `json:"owner_id"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// MembershipJSON is a membership as returned by the API.
type MembershipJSON struct {
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Handler handles workspace HTTP requests.
type Handler struct {
	service    *service.Service
	timeout    time.Duration
	production bool
	logger     *zap.Logger
}

// NewHandler returns a Handler. production disables the debug endpoint.
func NewHandler(svc *service.Service, timeout time.Duration, production bool, logger *zap.Logger) *Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handler{service: svc, timeout: timeout, production: production, logger: logging.OrNop(logger)}
}

// RegisterRoutes mounts the workspace routes. The router must already apply middleware.Auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/workspaces/active", h.Active)
	r.Get("/workspaces", h.List)
	r.Get("/memberships", h.Memberships)
	r.Get("/tenants/{id}", h.Tenant)
	r.Get("/tenants/{id}/audit-logs", h.AuditLogs)
	r.Get("/debug/bootstrap-status", h.BootstrapStatus)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user context", "")
	}
	return userID, ok
}

func (h *Handler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

// Active handles GET /api/workspaces/active?workspace_id=.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	ws, err := h.service.Active(ctx, userID, r.URL.Query().Get("workspace_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"workspace": toJSON(ws, false)})
}

// List handles GET /api/workspaces.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	list, err := h.service.Workspaces(ctx, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]WorkspaceJSON, 0, len(list))
	for i := range list {
		out = append(out, toJSON(&list[i], true))
	}
	var defaultID interface{}
	if len(out) > 0 {
		defaultID = out[0].ID
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"workspaces": out, "default_workspace_id": defaultID})
}

// Memberships handles GET /api/memberships.
func (h *Handler) Memberships(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	list, err := h.service.Memberships(ctx, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]MembershipJSON, 0, len(list))
	for _, m := range list {
		out = append(out, MembershipJSON{TenantID: m.TenantID, Role: string(m.Role), CreatedAt: m.CreatedAt})
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"memberships": out})
}

// Tenant handles GET /api/tenants/{id}.
func (h *Handler) Tenant(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()
	ws, err := h.service.Tenant(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"tenant": toJSON(ws, true)})
}

// AuditLogs handles GET /api/tenants/{id}/audit-logs?limit=.
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()
	// Out-of-range values parse to the nearest int32 bound, which the service then clamps.
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 32)
	logs, err := h.service.AuditLogs(ctx, chi.URLParam(r, "id"), int32(limit))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(logs))
	for _, l := range logs {
		out = append(out, map[string]interface{}{
			"id":         l.ID,
			"user_id":    l.UserID,
			"action":     l.Action,
			"resource":   l.Resource,
			"ip":         l.IP,
			"metadata":   l.Details(),
			"failed":     l.Failed(),
			"created_at": l.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"audit_logs": out})
}

// BootstrapStatus handles GET /api/debug/bootstrap-status. Not available in production.
func (h *Handler) BootstrapStatus(w http.ResponseWriter, r *http.Request) {
	if h.production {
		httpx.Error(w, http.StatusForbidden, "FORBIDDEN", "Not available in production", "")
		return
	}
	httpx.NoCache(w)
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user context", "")
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	st, err := h.service.BootstrapStatus(ctx, id.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var profile interface{}
	if st.Profile != nil {
		profile = map[string]interface{}{
			"id":        st.Profile.ID,
			"email":     st.Profile.Email,
			"full_name": st.Profile.FullName,
			"role":      st.Profile.Role,
		}
	}
	memberships := make([]MembershipJSON, 0, len(st.Memberships))
	for _, m := range st.Memberships {
		memberships = append(memberships, MembershipJSON{TenantID: m.TenantID, Role: string(m.Role), CreatedAt: m.CreatedAt})
	}
	tenants := make([]map[string]interface{}, 0, len(st.Tenants))
	for _, t := range st.Tenants {
		tenants = append(tenants, map[string]interface{}{
			"id": t.ID, "name": t.Name, "slug": t.Slug, "owner_id": t.OwnerID, "created_at": t.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     id.UserID,
		"user_email":  id.Email,
		"profile":     profile,
		"memberships": memberships,
		"workspaces":  tenants,
		"timestamp":   time.Now().UTC(),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoWorkspace):
		httpx.Error(w, http.StatusNotFound, "NO_WORKSPACE", "No workspace found", "")
	case errors.Is(err, service.ErrWorkspaceNotFound):
		httpx.Error(w, http.StatusNotFound, "WORKSPACE_NOT_FOUND", "Workspace not found", "")
	case errors.Is(err, rbac.ErrUnauthenticated):
		httpx.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user context", "")
	case errors.Is(err, rbac.ErrNotMember):
		httpx.Error(w, http.StatusForbidden, "NOT_MEMBER", "Not a member of this workspace", "")
	case errors.Is(err, service.ErrQuery), errors.Is(err, rbac.ErrLookup):
		h.logger.Error("workspace: query failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to fetch workspace membership", "")
	default:
		h.logger.Error("workspace: unexpected error", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "SERVER_ERROR", "Internal server error", "")
	}
}

func toJSON(ws *service.Workspace, withCreated bool) WorkspaceJSON {
	out := WorkspaceJSON{
		ID:      ws.ID,
		Name:    ws.Name,
		Slug:    ws.Slug,
		Role:    string(ws.Role),
		OwnerID: ws.OwnerID,
	}
	if withCreated && !ws.JoinedAt.IsZero() {
		t := ws.JoinedAt
		out.CreatedAt = &t
	}
	return out
}
