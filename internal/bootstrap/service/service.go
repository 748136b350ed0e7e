// Package service provisions the profile, tenant and owner membership of an authenticated user.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"nova-workspace/backend/internal/audit"
	"nova-workspace/backend/internal/logging"
	membershipdomain "nova-workspace/backend/internal/membership/domain"
	policyengine "nova-workspace/backend/internal/policy/engine"
	profiledomain "nova-workspace/backend/internal/profile/domain"
	"nova-workspace/backend/internal/telemetry"
	telemetrydomain "nova-workspace/backend/internal/telemetry/domain"
	telemetryotel "nova-workspace/backend/internal/telemetry/otel"
	tenantdomain "nova-workspace/backend/internal/tenant/domain"
	tenantrepo "nova-workspace/backend/internal/tenant/repository"
)

// Sentinel errors for the bootstrap service; the handler maps them to HTTP codes.
var (
	ErrInvalidIdentity   = errors.New("user id and email are required")
	ErrForbidden         = errors.New("bootstrap not permitted")
	ErrPolicyUnavailable = errors.New("bootstrap policy unavailable")
)

// ErrorKind names the provisioning step that failed.
type ErrorKind string

const (
	KindProfileUpsert    ErrorKind = "PROFILE_UPSERT"
	KindWorkspaceCreate  ErrorKind = "WORKSPACE_CREATE"
	KindWorkspaceNoID    ErrorKind = "WORKSPACE_NO_ID"
	KindMembershipUpsert ErrorKind = "MEMBERSHIP_UPSERT"
)

// Error is a provisioning failure. Err carries the store error.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Input identifies the verified caller.
type Input struct {
	UserID   string
	Email    string
	FullName string
}

// Result is the outcome of a successful bootstrap.
type Result struct {
	TenantID string
	UserID   string
	Role     membershipdomain.Role
	// Created is true when this call created the tenant.
	Created bool
}

// ProfileRepo is the minimal profile repository needed by the bootstrap service.
type ProfileRepo interface {
	Upsert(ctx context.Context, p *profiledomain.Profile) error
}

// TenantRepo is the minimal tenant repository needed by the bootstrap service.
type TenantRepo interface {
	GetOwnedBy(ctx context.Context, ownerID string) (*tenantdomain.Tenant, error)
	Create(ctx context.Context, t *tenantdomain.Tenant) error
}

// MembershipRepo is the minimal membership repository needed by the bootstrap service.
type MembershipRepo interface {
	Upsert(ctx context.Context, m *membershipdomain.Membership) (*membershipdomain.Membership, error)
}

// Service implements idempotent bootstrap. Safe for concurrent use: every write is keyed by a
// natural unique constraint, so racing calls for the same user converge on the same rows.
type Service struct {
	profiles    ProfileRepo
	tenants     TenantRepo
	memberships MembershipRepo
	policy      policyengine.Evaluator

	audit   audit.AuditLogger
	events  telemetry.EventEmitter
	metrics *telemetryotel.BootstrapMetrics
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

// WithAudit records one audit row per outcome.
func WithAudit(a audit.AuditLogger) Option { return func(s *Service) { s.audit = a } }

// WithEvents publishes provisioning events asynchronously.
func WithEvents(e telemetry.EventEmitter) Option { return func(s *Service) { s.events = e } }

// WithMetrics records bootstrap counters and latency.
func WithMetrics(m *telemetryotel.BootstrapMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = logging.OrNop(l) } }

// WithClock overrides time.Now; used for slug fallbacks and timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator overrides uuid generation for new rows.
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

// NewService returns a bootstrap Service. policy may be nil, in which case every caller is admitted as admin.
func NewService(profiles ProfileRepo, tenants TenantRepo, memberships MembershipRepo, policy policyengine.Evaluator, opts ...Option) *Service {
	s := &Service{
		profiles:    profiles,
		tenants:     tenants,
		memberships: memberships,
		policy:      policy,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap ensures the caller has a profile, an owned tenant and a membership in it, creating
// whatever is missing. Calling it again for the same user returns the same tenant.
func (s *Service) Bootstrap(ctx context.Context, in Input) (res *Result, err error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.UserID == "" || in.Email == "" {
		return nil, ErrInvalidIdentity
	}

	ctx, span := otel.Tracer("nova.bootstrap").Start(ctx, "bootstrap.Bootstrap")
	span.SetAttributes(attribute.String("user.id", in.UserID))
	start := time.Now()
	defer func() {
		s.metrics.Record(ctx, outcome(res, err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	role, err := s.admit(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	profile := &profiledomain.Profile{
		ID:        in.UserID,
		Email:     in.Email,
		FullName:  in.FullName,
		Role:      profiledomain.RoleOperator,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, s.fail(ctx, in, "", &Error{Kind: KindProfileUpsert, Err: err})
	}

	tenant, created, err := s.ensureTenant(ctx, in)
	if err != nil {
		return nil, s.fail(ctx, in, "", err)
	}

	member, err := s.memberships.Upsert(ctx, &membershipdomain.Membership{
		ID:        s.newID(),
		UserID:    in.UserID,
		TenantID:  tenant.ID,
		Role:      role,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, s.fail(ctx, in, tenant.ID, &Error{Kind: KindMembershipUpsert, Err: err})
	}
	if member == nil {
		return nil, s.fail(ctx, in, tenant.ID, &Error{Kind: KindMembershipUpsert, Err: errors.New("membership upsert returned no row")})
	}

	res = &Result{TenantID: tenant.ID, UserID: in.UserID, Role: member.Role, Created: created}
	span.SetAttributes(attribute.String("tenant.id", tenant.ID), attribute.Bool("tenant.created", created))
	s.succeed(ctx, tenant, res)
	return res, nil
}

// admit evaluates the admission policy and returns the owner role.
func (s *Service) admit(ctx context.Context, in Input) (membershipdomain.Role, error) {
	if s.policy == nil {
		return membershipdomain.RoleAdmin, nil
	}
	decision, err := s.policy.EvaluateBootstrap(ctx, policyengine.BootstrapInput{
		UserID:   in.UserID,
		Email:    in.Email,
		FullName: in.FullName,
	})
	if !decision.Allowed {
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrPolicyUnavailable, err)
		}
		s.emit(ctx, &telemetrydomain.Event{UserID: in.UserID, EventType: telemetrydomain.EventBootstrapDenied}, map[string]string{"reason": decision.Reason})
		return "", fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}
	role := membershipdomain.Role(decision.OwnerRole)
	if !role.Valid() {
		role = membershipdomain.RoleAdmin
	}
	return role, nil
}

// ensureTenant returns the tenant owned by the caller, creating it when there is none.
func (s *Service) ensureTenant(ctx context.Context, in Input) (*tenantdomain.Tenant, bool, error) {
	owned, err := s.tenants.GetOwnedBy(ctx, in.UserID)
	if err != nil {
		return nil, false, &Error{Kind: KindWorkspaceCreate, Err: fmt.Errorf("lookup owned tenant: %w", err)}
	}
	if owned != nil {
		if owned.ID == "" {
			return nil, false, &Error{Kind: KindWorkspaceNoID, Err: errors.New("owned tenant has no id")}
		}
		return owned, false, nil
	}

	now := s.now()
	t := &tenantdomain.Tenant{
		ID:              s.newID(),
		Name:            tenantdomain.DefaultName(in.FullName, in.Email),
		Slug:            tenantdomain.Slugify(tenantdomain.DisplaySource(in.FullName, in.Email), now),
		OwnerID:         in.UserID,
		AutoProvisioned: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := t.Validate(); err != nil {
		return nil, false, &Error{Kind: KindWorkspaceCreate, Err: err}
	}

	err = s.tenants.Create(ctx, t)
	if errors.Is(err, tenantrepo.ErrSlugTaken) {
		s.logger.Info("bootstrap: slug taken, retrying with suffix", zap.String("slug", t.Slug))
		t.Slug = tenantdomain.SuffixSlug(t.Slug, s.now())
		err = s.tenants.Create(ctx, t)
	}
	switch {
	case err == nil:
	case errors.Is(err, tenantrepo.ErrOwnerHasTenant):
		// A concurrent bootstrap for the same user won the insert.
		owned, rerr := s.tenants.GetOwnedBy(ctx, in.UserID)
		if rerr != nil {
			return nil, false, &Error{Kind: KindWorkspaceCreate, Err: rerr}
		}
		if owned == nil || owned.ID == "" {
			return nil, false, &Error{Kind: KindWorkspaceNoID, Err: err}
		}
		return owned, false, nil
	default:
		return nil, false, &Error{Kind: KindWorkspaceCreate, Err: err}
	}
	if t.ID == "" {
		return nil, false, &Error{Kind: KindWorkspaceNoID, Err: errors.New("created tenant has no id")}
	}
	return t, true, nil
}

func (s *Service) succeed(ctx context.Context, t *tenantdomain.Tenant, res *Result) {
	eventType := telemetrydomain.EventTenantReused
	if res.Created {
		eventType = telemetrydomain.EventTenantProvisioned
	}
	meta := map[string]string{"slug": t.Slug, "role": string(res.Role)}
	s.logger.Info("bootstrap: ok",
		zap.String("user_id", res.UserID), zap.String("tenant_id", res.TenantID),
		zap.Bool("created", res.Created), zap.String("role", string(res.Role)))
	if s.audit != nil {
		s.audit.LogEvent(ctx, res.TenantID, res.UserID, audit.ActionBootstrap, audit.ResourceTenant, mustJSON(meta))
	}
	s.emit(ctx, &telemetrydomain.Event{TenantID: res.TenantID, UserID: res.UserID, EventType: eventType}, meta)
}

// fail records a provisioning failure and returns err unchanged.
func (s *Service) fail(ctx context.Context, in Input, tenantID string, err error) error {
	kind := ""
	var be *Error
	if errors.As(err, &be) {
		kind = string(be.Kind)
	}
	s.logger.Error("bootstrap: failed", zap.String("user_id", in.UserID), zap.String("kind", kind), zap.Error(err))
	meta := map[string]string{"kind": kind, "error": err.Error()}
	if s.audit != nil {
		s.audit.LogEvent(ctx, tenantID, in.UserID, audit.ActionBootstrapFailed, audit.ResourceTenant, mustJSON(meta))
	}
	s.emit(ctx, &telemetrydomain.Event{TenantID: tenantID, UserID: in.UserID, EventType: telemetrydomain.EventBootstrapFailed}, meta)
	return err
}

func (s *Service) emit(ctx context.Context, ev *telemetrydomain.Event, meta map[string]string) {
	if s.events == nil {
		return
	}
	ev.ID = s.newID()
	ev.Source = "bootstrap"
	ev.CreatedAt = s.now()
	ev.Metadata = json.RawMessage(mustJSON(meta))
	telemetry.EmitAsync(ctx, s.events, s.logger, ev)
}

func outcome(res *Result, err error) string {
	var be *Error
	switch {
	case err == nil && res != nil && res.Created:
		return "created"
	case err == nil:
		return "existing"
	case errors.As(err, &be):
		return string(be.Kind)
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
