// Package rbac resolves the caller's membership in a tenant before tenant-scoped reads.
package rbac

import (
	"context"
	"errors"
	"fmt"

	"nova-workspace/backend/internal/membership/domain"
	"nova-workspace/backend/internal/server/middleware"
)

var (
	// ErrUnauthenticated is returned when the context carries no caller.
	ErrUnauthenticated = errors.New("user context required")
	// ErrNotMember is returned when the caller has no membership in the tenant.
	ErrNotMember = errors.New("not a member of this tenant")
	// ErrLookup wraps a store failure while resolving membership.
	ErrLookup = errors.New("failed to resolve membership")
)

// TenantMembershipGetter returns a user's membership in a tenant, or nil.
type TenantMembershipGetter interface {
	GetByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error)
}

// RequireTenantMember ensures the caller is authenticated and is a member of tenantID (any role).
func RequireTenantMember(ctx context.Context, getter TenantMembershipGetter, tenantID string) (*domain.Membership, error) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if tenantID == "" {
		return nil, ErrNotMember
	}
	m, err := getter.GetByUserAndTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	if m == nil {
		return nil, ErrNotMember
	}
	return m, nil
}

// RequireTenantAdmin is RequireTenantMember restricted to the owner and admin roles.
func RequireTenantAdmin(ctx context.Context, getter TenantMembershipGetter, tenantID string) (*domain.Membership, error) {
	m, err := RequireTenantMember(ctx, getter, tenantID)
	if err != nil {
		return nil, err
	}
	if m.Role != domain.RoleOwner && m.Role != domain.RoleAdmin {
		return nil, ErrNotMember
	}
	return m, nil
}
