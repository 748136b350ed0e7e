// Package service answers the read side of workspace resolution: a user's memberships,
// workspaces and active workspace.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	auditdomain "nova-workspace/backend/internal/audit/domain"
	membershipdomain "nova-workspace/backend/internal/membership/domain"
	"nova-workspace/backend/internal/platform/rbac"
	profiledomain "nova-workspace/backend/internal/profile/domain"
	tenantdomain "nova-workspace/backend/internal/tenant/domain"
)

// Sentinel errors for workspace reads; the handler maps them to HTTP codes.
var (
	ErrNoWorkspace       = errors.New("user has no workspaces")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrQuery             = errors.New("workspace query failed")
)

// Workspace is a tenant as seen by one member.
type Workspace struct {
	ID      string
	Name    string
	Slug    string
	OwnerID string
	Role    membershipdomain.Role
	// JoinedAt is the membership creation time.
	JoinedAt time.Time
}

// BootstrapStatus is the diagnostic view of one user's provisioning state.
type BootstrapStatus struct {
	Profile     *profiledomain.Profile
	Memberships []*membershipdomain.Membership
	Tenants     []*tenantdomain.Tenant
}

// ProfileRepo is the minimal profile repository needed by the workspace service.
type ProfileRepo interface {
	GetByID(ctx context.Context, id string) (*profiledomain.Profile, error)
}

// TenantRepo is the minimal tenant repository needed by the workspace service.
type TenantRepo interface {
	GetByID(ctx context.Context, id string) (*tenantdomain.Tenant, error)
	ListByIDs(ctx context.Context, ids []string) ([]*tenantdomain.Tenant, error)
}

// MembershipRepo is the minimal membership repository needed by the workspace service.
type MembershipRepo interface {
	GetByUserAndTenant(ctx context.Context, userID, tenantID string) (*membershipdomain.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error)
}

// AuditRepo is the minimal audit repository needed by the workspace service.
type AuditRepo interface {
	ListByTenant(ctx context.Context, tenantID string, limit int32) ([]*auditdomain.AuditLog, error)
}

// Service implements workspace reads. It never writes.
type Service struct {
	profiles    ProfileRepo
	tenants     TenantRepo
	memberships MembershipRepo
	audit       AuditRepo
}

// NewService returns a workspace Service. audit may be nil; AuditLogs then returns an empty list.
func NewService(profiles ProfileRepo, tenants TenantRepo, memberships MembershipRepo, audit AuditRepo) *Service {
	return &Service{profiles: profiles, tenants: tenants, memberships: memberships, audit: audit}
}

// Memberships returns the user's memberships, most recently created first.
func (s *Service) Memberships(ctx context.Context, userID string) ([]*membershipdomain.Membership, error) {
	ctx, span := otel.Tracer("nova.workspace").Start(ctx, "workspace.Memberships")
	defer span.End()
	list, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	membershipdomain.SortMostRecent(list)
	span.SetAttributes(attribute.Int("memberships", len(list)))
	return list, nil
}

// Workspaces returns every workspace the user belongs to, most recently joined first.
// Memberships whose tenant row is not visible yet are skipped.
func (s *Service) Workspaces(ctx context.Context, userID string) ([]Workspace, error) {
	list, err := s.Memberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	ids := make([]string, len(list))
	for i, m := range list {
		ids[i] = m.TenantID
	}
	tenants, err := s.tenants.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	byID := make(map[string]*tenantdomain.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}
	out := make([]Workspace, 0, len(list))
	for _, m := range list {
		if t, ok := byID[m.TenantID]; ok {
			out = append(out, toWorkspace(t, m))
		}
	}
	return out, nil
}

// Active returns the workspace the user should work in: requestedID when the user is a member of
// it, otherwise (requestedID empty) the most recently joined workspace.
func (s *Service) Active(ctx context.Context, userID, requestedID string) (*Workspace, error) {
	ctx, span := otel.Tracer("nova.workspace").Start(ctx, "workspace.Active")
	defer span.End()

	var m *membershipdomain.Membership
	if requestedID != "" {
		got, err := s.memberships.GetByUserAndTenant(ctx, userID, requestedID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQuery, err)
		}
		if got == nil {
			return nil, ErrWorkspaceNotFound
		}
		m = got
	} else {
		list, err := s.Memberships(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, ErrNoWorkspace
		}
		m = list[0]
	}

	t, err := s.tenants.GetByID(ctx, m.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	if t == nil {
		return nil, ErrWorkspaceNotFound
	}
	w := toWorkspace(t, m)
	span.SetAttributes(attribute.String("tenant.id", w.ID))
	return &w, nil
}

// Tenant returns a tenant the caller is a member of.
func (s *Service) Tenant(ctx context.Context, tenantID string) (*Workspace, error) {
	m, err := rbac.RequireTenantMember(ctx, s.memberships, tenantID)
	if err != nil {
		return nil, err
	}
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	if t == nil {
		return nil, ErrWorkspaceNotFound
	}
	w := toWorkspace(t, m)
	return &w, nil
}

// Audit log page sizes: DefaultAuditLimit when none is given, never more than MaxAuditLimit.
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 200
)

// AuditLogs returns the newest audit entries of a tenant. Only owners and admins may read them.
func (s *Service) AuditLogs(ctx context.Context, tenantID string, limit int32) ([]*auditdomain.AuditLog, error) {
	if _, err := rbac.RequireTenantAdmin(ctx, s.memberships, tenantID); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return nil, nil
	}
	switch {
	case limit <= 0:
		limit = DefaultAuditLimit
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}
	logs, err := s.audit.ListByTenant(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return logs, nil
}

// BootstrapStatus collects the user's profile, memberships and tenants for diagnostics.
func (s *Service) BootstrapStatus(ctx context.Context, userID string) (*BootstrapStatus, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	list, err := s.Memberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &BootstrapStatus{Profile: profile, Memberships: list}
	if len(list) == 0 {
		return out, nil
	}
	ids := make([]string, len(list))
	for i, m := range list {
		ids[i] = m.TenantID
	}
	if out.Tenants, err = s.tenants.ListByIDs(ctx, ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return out, nil
}

func toWorkspace(t *tenantdomain.Tenant, m *membershipdomain.Membership) Workspace {
	return Workspace{
		ID:       t.ID,
		Name:     t.Name,
		Slug:     t.Slug,
		OwnerID:  t.OwnerID,
		Role:     m.Role,
		JoinedAt: m.CreatedAt,
	}
}
