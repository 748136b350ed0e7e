// Package memstore is an in-memory tenant store. It enforces the same unique constraints as
// the Postgres schema and backs local development (no DATABASE_URL) and tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	auditdomain "nova-workspace/backend/internal/audit/domain"
	membershipdomain "nova-workspace/backend/internal/membership/domain"
	profiledomain "nova-workspace/backend/internal/profile/domain"
	tenantdomain "nova-workspace/backend/internal/tenant/domain"
	tenantrepo "nova-workspace/backend/internal/tenant/repository"
)

// Store holds all rows behind one mutex.
type Store struct {
	mu          sync.Mutex
	profiles    map[string]profiledomain.Profile
	tenants     map[string]tenantdomain.Tenant
	memberships map[string]membershipdomain.Membership // keyed by tenantID + "/" + userID
	audit       []auditdomain.AuditLog
	// hiddenReads makes the next N membership listings return nothing, simulating propagation lag.
	hiddenReads int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		profiles:    make(map[string]profiledomain.Profile),
		tenants:     make(map[string]tenantdomain.Tenant),
		memberships: make(map[string]membershipdomain.Membership),
	}
}

// PingContext succeeds unless ctx is done. It satisfies the health Pinger like *sql.DB.
func (s *Store) PingContext(ctx context.Context) error { return ctx.Err() }

// HideMemberships makes the next n ListByUser calls return no rows.
func (s *Store) HideMemberships(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hiddenReads = n
}

// Counts returns the number of profiles, tenants and memberships.
func (s *Store) Counts() (profiles, tenants, memberships int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles), len(s.tenants), len(s.memberships)
}

// Profiles returns the profile repository view.
func (s *Store) Profiles() *Profiles { return &Profiles{s} }

// Tenants returns the tenant repository view.
func (s *Store) Tenants() *Tenants { return &Tenants{s} }

// Memberships returns the membership repository view.
func (s *Store) Memberships() *Memberships { return &Memberships{s} }

// AuditLogs returns the audit log repository view.
func (s *Store) AuditLogs() *AuditLogs { return &AuditLogs{s} }

type Profiles struct{ s *Store }

func (r *Profiles) GetByID(ctx context.Context, id string) (*profiledomain.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *Profiles) Upsert(ctx context.Context, p *profiledomain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.profiles[p.ID]; ok {
		existing.Email = p.Email
		if p.FullName != "" {
			existing.FullName = p.FullName
		}
		existing.UpdatedAt = p.UpdatedAt
		r.s.profiles[p.ID] = existing
		return nil
	}
	r.s.profiles[p.ID] = *p
	return nil
}

type Tenants struct{ s *Store }

func (r *Tenants) GetByID(ctx context.Context, id string) (*tenantdomain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *Tenants) GetOwnedBy(ctx context.Context, ownerID string) (*tenantdomain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *tenantdomain.Tenant
	for _, t := range r.s.tenants {
		if t.OwnerID != ownerID {
			continue
		}
		if best == nil || t.CreatedAt.Before(best.CreatedAt) || (t.CreatedAt.Equal(best.CreatedAt) && t.ID < best.ID) {
			t := t
			best = &t
		}
	}
	return best, nil
}

func (r *Tenants) ListByIDs(ctx context.Context, ids []string) ([]*tenantdomain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*tenantdomain.Tenant
	for _, id := range ids {
		if t, ok := r.s.tenants[id]; ok {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (r *Tenants) Create(ctx context.Context, t *tenantdomain.Tenant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tenants {
		if t.AutoProvisioned && existing.AutoProvisioned && existing.OwnerID == t.OwnerID {
			return tenantrepo.ErrOwnerHasTenant
		}
		if existing.Slug == t.Slug {
			return tenantrepo.ErrSlugTaken
		}
	}
	r.s.tenants[t.ID] = *t
	return nil
}

type Memberships struct{ s *Store }

func membershipKey(tenantID, userID string) string { return tenantID + "/" + userID }

func (r *Memberships) GetByUserAndTenant(ctx context.Context, userID, tenantID string) (*membershipdomain.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memberships[membershipKey(tenantID, userID)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *Memberships) ListByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.hiddenReads > 0 {
		r.s.hiddenReads--
		return nil, nil
	}
	var out []*membershipdomain.Membership
	for _, m := range r.s.memberships {
		if m.UserID == userID {
			m := m
			out = append(out, &m)
		}
	}
	membershipdomain.SortMostRecent(out)
	return out, nil
}

func (r *Memberships) Upsert(ctx context.Context, m *membershipdomain.Membership) (*membershipdomain.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := membershipKey(m.TenantID, m.UserID)
	if existing, ok := r.s.memberships[key]; ok {
		return &existing, nil
	}
	r.s.memberships[key] = *m
	out := *m
	return &out, nil
}

type AuditLogs struct{ s *Store }

func (r *AuditLogs) Create(ctx context.Context, a *auditdomain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *a)
	return nil
}

func (r *AuditLogs) ListByTenant(ctx context.Context, tenantID string, limit int32) ([]*auditdomain.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*auditdomain.AuditLog
	for _, a := range r.s.audit {
		if a.TenantID == tenantID {
			a := a
			out = append(out, &a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}
