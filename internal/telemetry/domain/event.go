package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the provisioning path.
const (
	EventTenantProvisioned = "tenant.provisioned"
	EventTenantReused      = "tenant.reused"
	EventBootstrapFailed   = "bootstrap.failed"
	EventBootstrapDenied   = "bootstrap.denied"
)

// Event is a provisioning event. It is serialized as JSON onto Kafka and pushed to Loki by the worker.
type Event struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
