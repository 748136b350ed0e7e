package repository

import (
	"context"
	"database/sql"
	"errors"

	"nova-workspace/backend/internal/membership/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a membership repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByUserAndTenant returns the membership for the given user and tenant, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUserAndTenant(ctx context.Context, userID, tenantID string) (*domain.Membership, error) {
	var m domain.Membership
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, tenant_id, role, created_at FROM memberships WHERE user_id = $1 AND tenant_id = $2`,
		userID, tenantID,
	).Scan(&m.ID, &m.UserID, &m.TenantID, &role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Role = domain.Role(role)
	return &m, nil
}

// ListByUser returns all memberships for the given user, newest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, tenant_id, role, created_at FROM memberships
		 WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		var m domain.Membership
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &m.TenantID, &role, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Upsert inserts the membership keyed by (tenant_id, user_id) and returns the stored row.
// The conflict branch performs a no-op update so RETURNING yields the existing row.
func (r *PostgresRepository) Upsert(ctx context.Context, m *domain.Membership) (*domain.Membership, error) {
	var out domain.Membership
	var role string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO memberships (id, user_id, tenant_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET tenant_id = memberships.tenant_id
		RETURNING id, user_id, tenant_id, role, created_at`,
		m.ID, m.UserID, m.TenantID, string(m.Role), m.CreatedAt,
	).Scan(&out.ID, &out.UserID, &out.TenantID, &role, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	out.Role = domain.Role(role)
	return &out, nil
}
