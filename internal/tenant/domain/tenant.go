package domain

import (
	"errors"
	"time"
)

// Tenant is a workspace: an isolated namespace owning songs, slides and settings.
type Tenant struct {
	ID      string
	Name    string
	Slug    string
	OwnerID string
	// AutoProvisioned marks the tenant created by bootstrap; an owner has at most one.
	AutoProvisioned bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate validates the tenant for persistence. Returns an error describing the first validation failure.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.Slug == "" {
		return errors.New("slug is required")
	}
	if t.OwnerID == "" {
		return errors.New("owner_id is required")
	}
	return nil
}
