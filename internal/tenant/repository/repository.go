package repository

import (
	"context"
	"errors"

	"nova-workspace/backend/internal/tenant/domain"
)

var (
	// ErrSlugTaken is returned by Create when another tenant already uses the slug.
	ErrSlugTaken = errors.New("tenant slug already exists")
	// ErrOwnerHasTenant is returned by Create when the owner already has an auto-provisioned tenant.
	ErrOwnerHasTenant = errors.New("owner already has a provisioned tenant")
)

// Repository defines persistence for tenants.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	// GetOwnedBy returns the earliest tenant owned by ownerID, or nil.
	GetOwnedBy(ctx context.Context, ownerID string) (*domain.Tenant, error)
	// ListByIDs returns the tenants among ids that exist, in no particular order.
	ListByIDs(ctx context.Context, ids []string) ([]*domain.Tenant, error)
	// Create inserts t. It returns ErrSlugTaken or ErrOwnerHasTenant on the matching unique violation.
	Create(ctx context.Context, t *domain.Tenant) error
}
