package rbac

import (
	"context"
	"errors"
	"testing"

	"nova-workspace/backend/internal/membership/domain"
	"nova-workspace/backend/internal/security"
	"nova-workspace/backend/internal/server/middleware"
)

type mockMembershipGetter struct {
	memberships map[string]*domain.Membership
	err         error
}

func (m *mockMembershipGetter) GetByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.memberships[userID+":"+tenantID], nil
}

func callerCtx(userID string) context.Context {
	return middleware.WithIdentity(context.Background(), &security.Identity{UserID: userID, Email: userID + "@example.com"})
}

func TestRequireTenantMember(t *testing.T) {
	getter := &mockMembershipGetter{memberships: map[string]*domain.Membership{
		"user-1:t-1": {ID: "m1", UserID: "user-1", TenantID: "t-1", Role: domain.RoleMember},
	}}

	m, err := RequireTenantMember(callerCtx("user-1"), getter, "t-1")
	if err != nil {
		t.Fatalf("RequireTenantMember: %v", err)
	}
	if m.ID != "m1" {
		t.Errorf("membership = %+v", m)
	}

	if _, err := RequireTenantMember(callerCtx("user-1"), getter, "t-2"); !errors.Is(err, ErrNotMember) {
		t.Errorf("other tenant: want ErrNotMember, got %v", err)
	}
	if _, err := RequireTenantMember(callerCtx("user-1"), getter, ""); !errors.Is(err, ErrNotMember) {
		t.Errorf("empty tenant: want ErrNotMember, got %v", err)
	}
	if _, err := RequireTenantMember(context.Background(), getter, "t-1"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("no caller: want ErrUnauthenticated, got %v", err)
	}
	getter.err = errors.New("db down")
	if _, err := RequireTenantMember(callerCtx("user-1"), getter, "t-1"); !errors.Is(err, ErrLookup) {
		t.Errorf("store error: want ErrLookup, got %v", err)
	}
}

func TestRequireTenantAdmin(t *testing.T) {
	tests := []struct {
		role domain.Role
		ok   bool
	}{
		{domain.RoleOwner, true},
		{domain.RoleAdmin, true},
		{domain.RoleMember, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			getter := &mockMembershipGetter{memberships: map[string]*domain.Membership{
				"user-1:t-1": {ID: "m1", UserID: "user-1", TenantID: "t-1", Role: tt.role},
			}}
			_, err := RequireTenantAdmin(callerCtx("user-1"), getter, "t-1")
			if (err == nil) != tt.ok {
				t.Errorf("RequireTenantAdmin(%s) err = %v, want ok=%v", tt.role, err, tt.ok)
			}
		})
	}
}
