package repository

import (
	"context"

	"nova-workspace/backend/internal/membership/domain"
)

// Repository defines persistence for memberships.
type Repository interface {
	GetByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error)
	// ListByUser returns the user's memberships, most recently created first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	// Upsert inserts m unless a membership for (tenant_id, user_id) exists, and returns the stored row.
	// An existing row keeps its role.
	Upsert(ctx context.Context, m *domain.Membership) (*domain.Membership, error)
}
