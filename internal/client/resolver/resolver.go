// Package resolver decides which workspace a signed-in client works in.
//
// Resolve reads the current session, fetches memberships (retrying while a fresh bootstrap
// becomes visible), picks the persisted selection when it is still valid or else the most
// recently created membership, and loads that workspace's detail.
package resolver

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"nova-workspace/backend/internal/client/api"
	"nova-workspace/backend/internal/client/identity"
	"nova-workspace/backend/internal/client/selection"
	"nova-workspace/backend/internal/logging"
)

// Status is the outcome of a resolution.
type Status string

const (
	StatusOK          Status = "OK"
	StatusNoSession   Status = "NO_SESSION"
	StatusNoWorkspace Status = "NO_WORKSPACE"
	StatusError       Status = "ERROR"
)

// Result is one resolution. Workspace and ActiveTenantID are set only for StatusOK; Err only for StatusError.
type Result struct {
	Status         Status
	UserID         string
	ActiveTenantID string
	Workspace      *api.Workspace
	Memberships    []api.Membership
	Err            error
}

// ErrNoSession is the Err of results produced without a session by callers that need one.
var ErrNoSession = errors.New("resolver: no session")

// DefaultAttempts is the number of membership fetches before giving up.
const DefaultAttempts = 8

// DefaultSchedule is the wait after each empty or failed membership fetch. Attempts past the end
// of the schedule reuse its last delay.
var DefaultSchedule = []time.Duration{
	300 * time.Millisecond,
	500 * time.Millisecond,
	700 * time.Millisecond,
	900 * time.Millisecond,
	1100 * time.Millisecond,
	1300 * time.Millisecond,
	1500 * time.Millisecond,
}

// SessionSource returns the current session or nil.
type SessionSource interface {
	Session() *identity.Session
}

// WorkspaceAPI is the part of the API client the resolver uses.
type WorkspaceAPI interface {
	Memberships(ctx context.Context, token string) ([]api.Membership, error)
	Tenant(ctx context.Context, token, tenantID string) (*api.Workspace, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resolver resolves the active workspace. Concurrent Resolve calls for the same session share one
// in-flight resolution; nothing is cached once it completes.
type Resolver struct {
	sessions     SessionSource
	api          WorkspaceAPI
	selection    selection.Store
	group        singleflight.Group
	epoch        atomic.Uint64
	attempts     int
	schedule     []time.Duration
	fetchTimeout time.Duration
	sleep        Sleeper
	logger       *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSleeper replaces the wait between membership fetches (tests).
func WithSleeper(s Sleeper) Option { return func(r *Resolver) { r.sleep = s } }

// WithRetry overrides the attempt count and delay schedule.
func WithRetry(attempts int, schedule []time.Duration) Option {
	return func(r *Resolver) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if len(schedule) > 0 {
			r.schedule = schedule
		}
	}
}

// WithFetchTimeout bounds each API call.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Resolver) { r.logger = logging.OrNop(l) } }

// New returns a Resolver.
func New(sessions SessionSource, client WorkspaceAPI, store selection.Store, opts ...Option) *Resolver {
	r := &Resolver{
		sessions:     sessions,
		api:          client,
		selection:    store,
		attempts:     DefaultAttempts,
		schedule:     DefaultSchedule,
		fetchTimeout: 10 * time.Second,
		sleep:        Sleep,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve resolves the active workspace of the current session. If ctx is done before the shared
// resolution finishes, Resolve returns StatusError with ctx's error while the shared resolution
// runs on for the other callers.
func (r *Resolver) Resolve(ctx context.Context) Result {
	s := r.sessions.Session()
	if s == nil {
		return Result{Status: StatusNoSession}
	}
	epoch := r.epoch.Load()
	ch := r.group.DoChan(flightKey(s, epoch), func() (interface{}, error) {
		return r.resolve(context.WithoutCancel(ctx), s, epoch), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Result)
	case <-ctx.Done():
		return Result{Status: StatusError, UserID: s.UserID, Err: ctx.Err()}
	}
}

// Forget detaches resolutions already in flight: later Resolve calls start a fresh one even for
// the same user and token, and the detached ones no longer persist a selection. Call it when the
// session ends.
func (r *Resolver) Forget() {
	r.epoch.Add(1)
}

// flightKey identifies a shared resolution. A new token or a Forget starts a new flight.
func flightKey(s *identity.Session, epoch uint64) string {
	return s.UserID + "\x00" + s.Token + "\x00" + strconv.FormatUint(epoch, 10)
}

func (r *Resolver) resolve(ctx context.Context, s *identity.Session, epoch uint64) Result {
	log := r.logger.With(zap.String("user_id", s.UserID))
	memberships, err := r.fetchMemberships(ctx, s, log)
	if err != nil {
		log.Warn("resolver: membership fetch failed", zap.Error(err))
		return Result{Status: StatusError, UserID: s.UserID, Err: err}
	}
	if len(memberships) == 0 {
		log.Info("resolver: no workspace after retries", zap.Int("attempts", r.attempts))
		return Result{Status: StatusNoWorkspace, UserID: s.UserID}
	}

	active := r.selectTenant(ctx, s.UserID, epoch, memberships, log)

	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	ws, err := r.api.Tenant(fctx, s.Token, active)
	cancel()
	if err != nil {
		log.Warn("resolver: tenant fetch failed", zap.String("tenant_id", active), zap.Error(err))
		return Result{Status: StatusError, UserID: s.UserID, Memberships: memberships, Err: err}
	}
	return Result{
		Status:         StatusOK,
		UserID:         s.UserID,
		ActiveTenantID: active,
		Workspace:      ws,
		Memberships:    memberships,
	}
}

// fetchMemberships returns the memberships, or an empty list when every attempt came back empty.
// An authorization error stops immediately; other errors are retried and returned only when the
// last attempt fails.
func (r *Resolver) fetchMemberships(ctx context.Context, s *identity.Session, log *zap.Logger) ([]api.Membership, error) {
	for attempt := 1; attempt <= r.attempts; attempt++ {
		fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		list, err := r.api.Memberships(fctx, s.Token)
		cancel()
		switch {
		case err != nil && api.IsAuthorization(err):
			return nil, err
		case err != nil && attempt == r.attempts:
			return nil, err
		case err == nil && len(list) > 0:
			sortMostRecent(list)
			return list, nil
		case err == nil && attempt == r.attempts:
			return nil, nil
		}
		d := r.delay(attempt)
		log.Debug("resolver: retrying memberships", zap.Int("attempt", attempt), zap.Duration("wait", d), zap.Error(err))
		if err := r.sleep(ctx, d); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (r *Resolver) delay(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(r.schedule) {
		i = len(r.schedule) - 1
	}
	return r.schedule[i]
}

// selectTenant returns the persisted selection if it is one of memberships, else the most recent
// membership, which is then persisted.
func (r *Resolver) selectTenant(ctx context.Context, userID string, epoch uint64, memberships []api.Membership, log *zap.Logger) string {
	stored, err := r.selection.Get(ctx)
	if err != nil {
		log.Warn("resolver: read selection failed", zap.Error(err))
		stored = ""
	}
	if stored != "" {
		for _, m := range memberships {
			if m.TenantID == stored {
				return stored
			}
		}
		log.Info("resolver: discarding stale selection", zap.String("tenant_id", stored))
	}
	active := memberships[0].TenantID
	// Do not write a selection for a user who has since signed out.
	if cur := r.sessions.Session(); cur == nil || cur.UserID != userID || r.epoch.Load() != epoch {
		return active
	}
	if err := r.selection.Set(ctx, active); err != nil {
		log.Warn("resolver: persist selection failed", zap.Error(err))
	}
	return active
}

func sortMostRecent(list []api.Membership) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
