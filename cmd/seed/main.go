// seed inserts development sample data for local testing.
// Idempotent: dev@example.com owns one workspace and is a member of member@example.com's workspace,
// which exercises the two-membership default.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	bootstrapservice "nova-workspace/backend/internal/bootstrap/service"
	"nova-workspace/backend/internal/config"
	"nova-workspace/backend/internal/db"
	membershipdomain "nova-workspace/backend/internal/membership/domain"
	membershiprepo "nova-workspace/backend/internal/membership/repository"
	profilerepo "nova-workspace/backend/internal/profile/repository"
	"nova-workspace/backend/internal/security"
	tenantrepo "nova-workspace/backend/internal/tenant/repository"
)

const (
	devUserID   = "dev-user-001"
	devEmail    = "dev@example.com"
	devName     = "Dev User"
	memberID    = "dev-user-002"
	memberEmail = "member@example.com"
	memberName  = "Member User"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	memberships := membershiprepo.NewPostgresRepository(conn)
	svc := bootstrapservice.NewService(
		profilerepo.NewPostgresRepository(conn),
		tenantrepo.NewPostgresRepository(conn),
		memberships,
		nil,
	)

	dev, err := svc.Bootstrap(ctx, bootstrapservice.Input{UserID: devUserID, Email: devEmail, FullName: devName})
	if err != nil {
		log.Fatalf("bootstrap %s: %v", devEmail, err)
	}
	other, err := svc.Bootstrap(ctx, bootstrapservice.Input{UserID: memberID, Email: memberEmail, FullName: memberName})
	if err != nil {
		log.Fatalf("bootstrap %s: %v", memberEmail, err)
	}

	// Joined later than the personal workspace, so it is the default.
	m, err := memberships.Upsert(ctx, &membershipdomain.Membership{
		ID:        uuid.New().String(),
		TenantID:  other.TenantID,
		UserID:    devUserID,
		Role:      membershipdomain.RoleMember,
		CreatedAt: time.Now().UTC().Add(time.Second),
	})
	if err != nil {
		log.Fatalf("add %s to %s: %v", devEmail, other.TenantID, err)
	}

	log.Printf("%s owns %s (created=%v) and is %s in %s", devEmail, dev.TenantID, dev.Created, m.Role, other.TenantID)

	if cfg.JWTPrivateKey == "" {
		return
	}
	key, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt key: %v", err)
	}
	tokens := security.NewTokenProvider(key, nil, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	token, exp, err := tokens.Issue(devUserID, devEmail, devName)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	log.Printf("dev token (expires %s):\n%s", exp.Format(time.RFC3339), token)
}
