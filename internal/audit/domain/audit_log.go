// Package domain holds the provisioning audit trail kept per tenant.
package domain

import (
	"encoding/json"
	"time"
)

// SystemTenantID is recorded for events that have no tenant, such as a bootstrap that failed
// before the workspace existed.
const SystemTenantID = "_system"

// Actions and resources recorded by bootstrap.
const (
	ActionBootstrap       = "workspace_bootstrap"
	ActionBootstrapFailed = "workspace_bootstrap_failed"
	ResourceTenant        = "tenant"
)

// AuditLog is one entry in a tenant's trail. Metadata is a JSON object of string values.
type AuditLog struct {
	ID        string
	TenantID  string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

// Failed reports whether the entry records a failed bootstrap.
func (a *AuditLog) Failed() bool {
	return a.Action == ActionBootstrapFailed
}

// Details decodes Metadata. Empty or malformed metadata yields nil.
func (a *AuditLog) Details() map[string]string {
	if a.Metadata == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(a.Metadata), &out); err != nil {
		return nil
	}
	return out
}
