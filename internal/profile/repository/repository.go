package repository

import (
	"context"

	"nova-workspace/backend/internal/profile/domain"
)

// Repository defines persistence for profiles.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	// Upsert inserts the profile or updates email/full name of the existing row with the same id.
	Upsert(ctx context.Context, p *domain.Profile) error
}
