package repository

import (
	"context"
	"database/sql"

	"nova-workspace/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByTenant returns the newest audit logs for the given tenant.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, limit int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, action, resource, ip, metadata, created_at
		FROM audit_logs WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		var uid, meta sql.NullString
		if err := rows.Scan(&a.ID, &a.TenantID, &uid, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.UserID, a.Metadata = uid.String, meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Create persists the audit log to the database. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	uid := sql.NullString{String: a.UserID, Valid: a.UserID != ""}
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.TenantID, uid, a.Action, a.Resource, a.IP, meta, a.CreatedAt)
	return err
}
