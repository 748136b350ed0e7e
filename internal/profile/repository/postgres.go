package repository

import (
	"context"
	"database/sql"
	"errors"

	"nova-workspace/backend/internal/profile/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a profile repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the profile for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	var p domain.Profile
	var fullName sql.NullString
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, role, created_at, updated_at FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.Email, &fullName, &role, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.FullName = fullName.String
	p.Role = domain.Role(role)
	return &p, nil
}

// Upsert inserts the profile keyed by id. An existing row keeps its role and created_at;
// a blank full name never overwrites a stored one.
func (r *PostgresRepository) Upsert(ctx context.Context, p *domain.Profile) error {
	fullName := sql.NullString{String: p.FullName, Valid: p.FullName != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = COALESCE(EXCLUDED.full_name, profiles.full_name),
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Email, fullName, string(p.Role), p.CreatedAt, p.UpdatedAt,
	)
	return err
}
