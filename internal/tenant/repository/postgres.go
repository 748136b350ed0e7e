package repository

import (
	"context"
	"database/sql"
	"errors"

	"nova-workspace/backend/internal/db"
	"nova-workspace/backend/internal/tenant/domain"
)

const tenantColumns = `id, name, slug, owner_id, auto_provisioned, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a tenant repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the tenant for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// GetOwnedBy returns the earliest tenant owned by ownerID, or nil if the owner has none.
func (r *PostgresRepository) GetOwnedBy(ctx context.Context, ownerID string) (*domain.Tenant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE owner_id = $1 ORDER BY created_at ASC, id ASC LIMIT 1`, ownerID)
	return scanTenant(row)
}

// ListByIDs returns existing tenants for ids. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Tenant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create persists the tenant. The tenant must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Tenant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Name, t.Slug, t.OwnerID, t.AutoProvisioned, t.CreatedAt, t.UpdatedAt,
	)
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case "tenants_owner_auto_key":
			return ErrOwnerHasTenant
		default:
			return ErrSlugTaken
		}
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(s scanner) (*domain.Tenant, error) {
	var t domain.Tenant
	err := s.Scan(&t.ID, &t.Name, &t.Slug, &t.OwnerID, &t.AutoProvisioned, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
