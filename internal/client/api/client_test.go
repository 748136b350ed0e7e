package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", srv.Client())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Bootstrap(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/bootstrap", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"tenant_id": "t1", "user_id": "u1", "role": "admin"})
	})
	res, err := c.Bootstrap(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, &BootstrapResult{TenantID: "t1", UserID: "u1", Role: "admin"}, res)
}

func TestClient_MembershipsAndTenant(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/memberships":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"memberships": []map[string]interface{}{{"tenant_id": "t1", "role": "admin", "created_at": at}},
			})
		case "/api/tenants/t1":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"tenant": map[string]string{"id": "t1", "name": "Ada's Workspace", "slug": "ada", "role": "admin", "owner_id": "u1"},
			})
		case "/api/workspaces/active":
			assert.Equal(t, "t1", r.URL.Query().Get("workspace_id"))
			writeJSON(w, http.StatusOK, map[string]interface{}{"workspace": map[string]string{"id": "t1"}})
		default:
			http.NotFound(w, r)
		}
	})
	ms, err := c.Memberships(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "t1", ms[0].TenantID)
	assert.True(t, ms[0].CreatedAt.Equal(at))

	ws, err := c.Tenant(context.Background(), "tok", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Ada's Workspace", ws.Name)

	ws, err = c.ActiveWorkspace(context.Background(), "tok", "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", ws.ID)
}

func TestClient_Errors(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/memberships":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token", "code": "INVALID_TOKEN"})
		case "/api/bootstrap":
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed", "code": "WORKSPACE_ERROR", "details": "boom"})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	_, err := c.Memberships(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, IsAuthorization(err))
	assert.Equal(t, "INVALID_TOKEN", Code(err))

	_, err = c.Bootstrap(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, IsAuthorization(err))
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "boom", apiErr.Details)
	assert.Contains(t, err.Error(), "WORKSPACE_ERROR")

	_, err = c.Tenant(context.Background(), "tok", "t1")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestClient_ContextCanceled(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Memberships(ctx, "tok")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsAuthorization(err))
}
