// Package state is the client's workspace resolution state machine. Consumers render tenant
// data only while the machine is Ready.
package state

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"nova-workspace/backend/internal/client/api"
	"nova-workspace/backend/internal/client/identity"
	"nova-workspace/backend/internal/client/resolver"
	"nova-workspace/backend/internal/client/selection"
	"nova-workspace/backend/internal/client/signin"
	"nova-workspace/backend/internal/logging"
)

// State is a resolution state.
type State string

const (
	Idle        State = "IDLE"
	Resolving   State = "RESOLVING"
	Ready       State = "READY"
	NoSession   State = "NO_SESSION"
	NoWorkspace State = "NO_WORKSPACE"
	Error       State = "ERROR"
)

// Settled reports whether s is a state a resolution ends in.
func (s State) Settled() bool {
	switch s {
	case Ready, NoSession, NoWorkspace, Error:
		return true
	}
	return false
}

var (
	// ErrInvalidTransition is returned by Retry outside NoWorkspace/Error and by SwitchWorkspace outside Ready.
	ErrInvalidTransition = errors.New("state: transition not allowed")
	// ErrNotMember is returned by SwitchWorkspace for a tenant the user does not belong to.
	ErrNotMember = errors.New("state: not a member of that workspace")
)

// Snapshot is the observable resolution state.
type Snapshot struct {
	State          State
	UserID         string
	ActiveTenantID string
	Workspace      *api.Workspace
	Memberships    []api.Membership
	Err            error
	// Bootstrap is the outcome of the sign-in bootstrap for UserID, if one ran.
	Bootstrap *signin.Outcome
	// Generation increases on every session change, retry and switch.
	Generation uint64
}

// Sessions is the identity collaborator.
type Sessions interface {
	Session() *identity.Session
	Subscribe(fn func(identity.Event)) (unsubscribe func())
}

// Provisioner bootstraps a user once per sign-in.
type Provisioner interface {
	Ensure(ctx context.Context, s *identity.Session) signin.Outcome
	Reset()
}

// Resolver resolves the active workspace of the current session.
type Resolver interface {
	Resolve(ctx context.Context) resolver.Result
	// Forget detaches resolutions in flight so a later session never joins them.
	Forget()
}

// Machine drives IDLE → RESOLVING → {READY, NO_SESSION, NO_WORKSPACE, ERROR}. Each session change,
// retry or switch starts a new generation; results of older generations are dropped.
type Machine struct {
	sessions  Sessions
	provision Provisioner
	resolver  Resolver
	selection selection.Store
	logger    *zap.Logger

	mu      sync.Mutex
	snap    Snapshot
	cancel  context.CancelFunc
	changed chan struct{}
	wg      sync.WaitGroup
}

// New returns an Idle Machine. provision may be nil to skip bootstrap.
func New(sessions Sessions, provision Provisioner, res Resolver, store selection.Store, logger *zap.Logger) *Machine {
	return &Machine{
		sessions:  sessions,
		provision: provision,
		resolver:  res,
		selection: store,
		logger:    logging.OrNop(logger),
		snap:      Snapshot{State: Idle},
		changed:   make(chan struct{}),
	}
}

// Start subscribes to session changes and, when a session already exists, starts resolving it.
// The returned stop function unsubscribes and waits for in-flight work.
func (m *Machine) Start() (stop func()) {
	unsubscribe := m.sessions.Subscribe(m.HandleEvent)
	if s := m.sessions.Session(); s != nil {
		m.HandleEvent(identity.Event{Kind: identity.SignedIn, Session: s})
	}
	return func() {
		unsubscribe()
		m.mu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		m.mu.Unlock()
		m.wg.Wait()
	}
}

// HandleEvent applies a session change.
func (m *Machine) HandleEvent(ev identity.Event) {
	switch ev.Kind {
	case identity.SignedIn:
		m.begin(ev.Session, true)
	case identity.Refreshed:
		// Same user, new token: nothing to re-resolve.
		m.mu.Lock()
		idle := m.snap.State == Idle
		m.mu.Unlock()
		if idle {
			m.begin(ev.Session, true)
		}
	case identity.SignedOut:
		m.signOut()
	}
}

// Retry re-runs resolution from NoWorkspace or Error.
func (m *Machine) Retry() error {
	m.mu.Lock()
	st := m.snap.State
	m.mu.Unlock()
	if st != NoWorkspace && st != Error {
		return ErrInvalidTransition
	}
	s := m.sessions.Session()
	if s == nil {
		m.signOut()
		return nil
	}
	m.begin(s, true)
	return nil
}

// SwitchWorkspace persists tenantID as the selection and re-resolves. tenantID must be one of the
// current memberships.
func (m *Machine) SwitchWorkspace(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	snap := m.snap
	m.mu.Unlock()
	if snap.State != Ready {
		return ErrInvalidTransition
	}
	found := false
	for _, ms := range snap.Memberships {
		if ms.TenantID == tenantID {
			found = true
			break
		}
	}
	if !found {
		return ErrNotMember
	}
	if err := m.selection.Set(ctx, tenantID); err != nil {
		return err
	}
	s := m.sessions.Session()
	if s == nil {
		return resolver.ErrNoSession
	}
	m.begin(s, false)
	return nil
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Wait blocks until done(snapshot) is true or ctx is done.
func (m *Machine) Wait(ctx context.Context, done func(Snapshot) bool) (Snapshot, error) {
	for {
		m.mu.Lock()
		snap, ch := m.snap, m.changed
		m.mu.Unlock()
		if done(snap) {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// WaitSettled blocks until the machine leaves Resolving (and Idle) or ctx is done.
func (m *Machine) WaitSettled(ctx context.Context) (Snapshot, error) {
	return m.Wait(ctx, func(s Snapshot) bool { return s.State.Settled() })
}

// begin starts a new generation resolving s.
func (m *Machine) begin(s *identity.Session, bootstrap bool) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	gen := m.snap.Generation + 1
	m.setLocked(Snapshot{State: Resolving, UserID: s.UserID, Generation: gen})
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, gen, s, bootstrap)
	}()
}

func (m *Machine) run(ctx context.Context, gen uint64, s *identity.Session, bootstrap bool) {
	var outcome *signin.Outcome
	if bootstrap && m.provision != nil {
		out := m.provision.Ensure(ctx, s)
		outcome = &out
	}
	if ctx.Err() != nil {
		return
	}
	res := m.resolver.Resolve(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.snap.Generation || (res.UserID != "" && res.UserID != s.UserID) {
		m.logger.Debug("state: dropping stale resolution", zap.String("user_id", s.UserID), zap.Uint64("generation", gen))
		return
	}
	next := Snapshot{
		UserID:         s.UserID,
		ActiveTenantID: res.ActiveTenantID,
		Workspace:      res.Workspace,
		Memberships:    res.Memberships,
		Err:            res.Err,
		Bootstrap:      outcome,
		Generation:     gen,
	}
	switch res.Status {
	case resolver.StatusOK:
		next.State = Ready
	case resolver.StatusNoSession:
		next.State = NoSession
	case resolver.StatusNoWorkspace:
		next.State = NoWorkspace
	default:
		next.State = Error
	}
	m.setLocked(next)
	m.logger.Info("state: resolved", zap.String("state", string(next.State)), zap.String("user_id", s.UserID), zap.String("tenant_id", next.ActiveTenantID))
}

func (m *Machine) signOut() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.setLocked(Snapshot{State: Idle, Generation: m.snap.Generation + 1})
	m.mu.Unlock()

	m.resolver.Forget()

	if m.provision != nil {
		m.provision.Reset()
	}
	if err := m.selection.Clear(context.Background()); err != nil {
		m.logger.Warn("state: clear selection failed", zap.Error(err))
	}
}

func (m *Machine) setLocked(s Snapshot) {
	m.snap = s
	close(m.changed)
	m.changed = make(chan struct{})
}
