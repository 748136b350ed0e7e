// Package api is the HTTP client for the nova workspace API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api: %d %s: %s (%s)", e.Status, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsAuthorization reports whether err is a 401 or 403 response. Such errors are never retried.
func IsAuthorization(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// Code returns the API error code of err, or "".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// BootstrapResult is the body of POST /api/bootstrap.
type BootstrapResult struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
}

// Membership is one entry of GET /api/memberships.
type Membership struct {
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Workspace is a tenant as seen by the caller.
type Workspace struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Role    string `json:"role"`
	OwnerID string `json:"owner_id"`
}

// Client calls the API with a bearer token per request.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:8080). httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Bootstrap provisions the caller's profile, workspace and membership.
func (c *Client) Bootstrap(ctx context.Context, token string) (*BootstrapResult, error) {
	var out BootstrapResult
	if err := c.do(ctx, http.MethodPost, "/api/bootstrap", token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Memberships returns the caller's memberships, most recently created first.
func (c *Client) Memberships(ctx context.Context, token string) ([]Membership, error) {
	var out struct {
		Memberships []Membership `json:"memberships"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/memberships", token, &out); err != nil {
		return nil, err
	}
	return out.Memberships, nil
}

// Tenant returns one workspace the caller belongs to.
func (c *Client) Tenant(ctx context.Context, token, tenantID string) (*Workspace, error) {
	var out struct {
		Tenant Workspace `json:"tenant"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tenants/"+url.PathEscape(tenantID), token, &out); err != nil {
		return nil, err
	}
	return &out.Tenant, nil
}

// ActiveWorkspace returns the server's choice of workspace, or requestedID when the caller is a member.
func (c *Client) ActiveWorkspace(ctx context.Context, token, requestedID string) (*Workspace, error) {
	path := "/api/workspaces/active"
	if requestedID != "" {
		path += "?workspace_id=" + url.QueryEscape(requestedID)
	}
	var out struct {
		Workspace Workspace `json:"workspace"`
	}
	if err := c.do(ctx, http.MethodGet, path, token, &out); err != nil {
		return nil, err
	}
	return &out.Workspace, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("api: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		var eb struct {
			Error   string `json:"error"`
			Code    string `json:"code"`
			Details string `json:"details"`
		}
		if json.Unmarshal(body, &eb) == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = eb.Code, eb.Error, eb.Details
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}
