package domain

import (
	"errors"
	"time"
)

// Profile is the application-side record of an authenticated user. ID equals the identity user id.
type Profile struct {
	ID        string
	Email     string
	FullName  string // optional
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Role string

const (
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Validate validates the profile for persistence. Returns an error describing the first validation failure.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Email == "" {
		return errors.New("email is required")
	}
	if p.Role == "" {
		p.Role = RoleOperator
	}
	return nil
}
