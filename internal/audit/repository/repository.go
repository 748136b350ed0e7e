package repository

import (
	"context"

	"nova-workspace/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	ListByTenant(ctx context.Context, tenantID string, limit int32) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
