package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nova-workspace/backend/internal/audit/domain"
	auditrepo "nova-workspace/backend/internal/audit/repository"
	"nova-workspace/backend/internal/logging"
)

// SentinelTenantID is the tenant_id used for audit events that have no tenant (e.g. a failed bootstrap).
const SentinelTenantID = domain.SystemTenantID

// Actions recorded by the bootstrap path.
const (
	ActionBootstrap       = domain.ActionBootstrap
	ActionBootstrapFailed = domain.ActionBootstrapFailed
	ResourceTenant        = domain.ResourceTenant
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: logging.OrNop(log)}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	if tenantID == "" {
		tenantID = SentinelTenantID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		l.log.Warn("audit: failed to log event",
			zap.String("action", action), zap.String("resource", resource), zap.Error(err))
	}
}
