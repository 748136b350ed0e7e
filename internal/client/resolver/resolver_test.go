package resolver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nova-workspace/backend/internal/client/api"
	"nova-workspace/backend/internal/client/identity"
	"nova-workspace/backend/internal/client/selection"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sessions struct {
	mu sync.Mutex
	s  *identity.Session
}

func (f *sessions) Session() *identity.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *sessions) set(s *identity.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s = s
}

func signedIn(userID string) *sessions {
	return &sessions{s: &identity.Session{UserID: userID, Token: "tok-" + userID}}
}

// fakeAPI answers membership fetches from a script; the last entry repeats.
type fakeAPI struct {
	mu        sync.Mutex
	script    []func() ([]api.Membership, error)
	calls     int32
	tenantErr error
	tenants   int32
	gate      chan struct{}
}

func (f *fakeAPI) Memberships(ctx context.Context, token string) ([]api.Membership, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := int(n) - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i]()
}

func (f *fakeAPI) Tenant(ctx context.Context, token, tenantID string) (*api.Workspace, error) {
	atomic.AddInt32(&f.tenants, 1)
	if f.tenantErr != nil {
		return nil, f.tenantErr
	}
	return &api.Workspace{ID: tenantID, Name: tenantID + " name"}, nil
}

func empty() ([]api.Membership, error) { return nil, nil }

func transient() ([]api.Membership, error) {
	return nil, &api.Error{Status: http.StatusBadGateway, Code: "SERVER_ERROR"}
}

func unauthorized() ([]api.Membership, error) {
	return nil, &api.Error{Status: http.StatusUnauthorized, Code: "INVALID_TOKEN"}
}

func two() ([]api.Membership, error) {
	// Deliberately oldest first.
	return []api.Membership{
		{TenantID: "t-old", Role: "admin", CreatedAt: base},
		{TenantID: "t-new", Role: "member", CreatedAt: base.Add(time.Hour)},
	}, nil
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func (s *recordingSleeper) total() time.Duration {
	var sum time.Duration
	for _, d := range s.waits {
		sum += d
	}
	return sum
}

func newResolver(ss SessionSource, f *fakeAPI, store selection.Store, sl *recordingSleeper) *Resolver {
	return New(ss, f, store, WithSleeper(sl.sleep))
}

func TestResolve_NoSession(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){two}}
	res := newResolver(&sessions{}, f, selection.NewMemory(), &recordingSleeper{}).Resolve(context.Background())
	assert.Equal(t, StatusNoSession, res.Status)
	assert.Zero(t, atomic.LoadInt32(&f.calls))
}

func TestResolve_RetryBoundAndSchedule(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){empty}}
	sl := &recordingSleeper{}
	res := newResolver(signedIn("u1"), f, selection.NewMemory(), sl).Resolve(context.Background())

	assert.Equal(t, StatusNoWorkspace, res.Status)
	assert.EqualValues(t, DefaultAttempts, atomic.LoadInt32(&f.calls))
	assert.Equal(t, DefaultSchedule, sl.waits)
	assert.Equal(t, 6300*time.Millisecond, sl.total())
}

func TestResolve_TransientThenVisible(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){transient, empty, two}}
	sl := &recordingSleeper{}
	store := selection.NewMemory()
	res := newResolver(signedIn("u1"), f, store, sl).Resolve(context.Background())

	require.Equal(t, StatusOK, res.Status, res.Err)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 500 * time.Millisecond}, sl.waits)
	assert.Equal(t, "t-new", res.ActiveTenantID)
}

func TestResolve_TransientOnLastAttempt(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){empty, empty, empty, empty, empty, empty, empty, transient}}
	res := newResolver(signedIn("u1"), f, selection.NewMemory(), &recordingSleeper{}).Resolve(context.Background())
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "SERVER_ERROR", api.Code(res.Err))
	assert.EqualValues(t, DefaultAttempts, atomic.LoadInt32(&f.calls))
}

func TestResolve_AuthorizationNotRetried(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){unauthorized, two}}
	sl := &recordingSleeper{}
	res := newResolver(signedIn("u1"), f, selection.NewMemory(), sl).Resolve(context.Background())
	assert.Equal(t, StatusError, res.Status)
	assert.True(t, api.IsAuthorization(res.Err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.calls))
	assert.Empty(t, sl.waits)
}

func TestResolve_TwoMembershipsDefaultsToMostRecent(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){two}}
	store := selection.NewMemory()
	res := newResolver(signedIn("u1"), f, store, &recordingSleeper{}).Resolve(context.Background())

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "t-new", res.ActiveTenantID)
	assert.Equal(t, "t-new", res.Workspace.ID)
	require.Len(t, res.Memberships, 2)
	assert.Equal(t, "t-new", res.Memberships[0].TenantID)
	stored, _ := store.Get(context.Background())
	assert.Equal(t, "t-new", stored)
}

func TestResolve_ValidSelectionWins(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){two}}
	store := selection.NewMemory()
	require.NoError(t, store.Set(context.Background(), "t-old"))
	res := newResolver(signedIn("u1"), f, store, &recordingSleeper{}).Resolve(context.Background())
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "t-old", res.ActiveTenantID)
}

func TestResolve_OrphanSelectionOverwritten(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){two}}
	store := selection.NewMemory()
	require.NoError(t, store.Set(context.Background(), "t-gone"))
	res := newResolver(signedIn("u1"), f, store, &recordingSleeper{}).Resolve(context.Background())
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "t-new", res.ActiveTenantID)
	stored, _ := store.Get(context.Background())
	assert.Equal(t, "t-new", stored)
}

func TestResolve_TenantFetchFailureNotRetried(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){two}, tenantErr: errors.New("connection reset")}
	res := newResolver(signedIn("u1"), f, selection.NewMemory(), &recordingSleeper{}).Resolve(context.Background())
	assert.Equal(t, StatusError, res.Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.tenants))
	assert.Len(t, res.Memberships, 2)
}

func TestResolve_SingleFlight(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){two}, gate: make(chan struct{})}
	r := newResolver(signedIn("u1"), f, selection.NewMemory(), &recordingSleeper{})

	const callers = 10
	results := make([]Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 1 }, time.Second, time.Millisecond)
	// Let every caller reach the shared flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&f.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.tenants))
	for _, res := range results {
		assert.Equal(t, StatusOK, res.Status)
		assert.Equal(t, "t-new", res.ActiveTenantID)
	}

	// The slot is released: a later call fetches again.
	f.gate = nil
	r.Resolve(context.Background())
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.calls))
}

func TestResolve_CallerContextDone(t *testing.T) {
	f := &fakeAPI{script: []func() ([]api.Membership, error){two}, gate: make(chan struct{})}
	r := newResolver(signedIn("u1"), f, selection.NewMemory(), &recordingSleeper{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := r.Resolve(ctx)
	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	close(f.gate)
}

func TestResolve_NoSelectionWriteAfterSignOut(t *testing.T) {
	ss := signedIn("u1")
	store := selection.NewMemory()
	f := &fakeAPI{script: []func() ([]api.Membership, error){func() ([]api.Membership, error) {
		ss.set(nil)
		return two()
	}}}
	res := newResolver(ss, f, store, &recordingSleeper{}).Resolve(context.Background())
	assert.Equal(t, StatusOK, res.Status)
	stored, _ := store.Get(context.Background())
	assert.Empty(t, stored)
}

// tokenAPI rejects token "old" once released and serves two memberships to any other token.
type tokenAPI struct {
	mu      sync.Mutex
	tokens  []string
	oldGate chan struct{}
}

func (f *tokenAPI) Memberships(ctx context.Context, token string) ([]api.Membership, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	if token == "old" {
		<-f.oldGate
		return unauthorized()
	}
	return two()
}

func (f *tokenAPI) Tenant(ctx context.Context, token, tenantID string) (*api.Workspace, error) {
	return &api.Workspace{ID: tenantID}, nil
}

func (f *tokenAPI) used() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func TestResolve_ReSignInDoesNotJoinEarlierFlight(t *testing.T) {
	ss := &sessions{s: &identity.Session{UserID: "u1", Token: "old"}}
	f := &tokenAPI{oldGate: make(chan struct{})}
	r := New(ss, f, selection.NewMemory(), WithSleeper((&recordingSleeper{}).sleep))

	stale := make(chan Result, 1)
	go func() { stale <- r.Resolve(context.Background()) }()
	require.Eventually(t, func() bool { return len(f.used()) == 1 }, time.Second, time.Millisecond)

	ss.set(nil)
	r.Forget()
	ss.set(&identity.Session{UserID: "u1", Token: "fresh"})

	res := r.Resolve(context.Background())
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "t-new", res.ActiveTenantID)
	assert.Equal(t, []string{"old", "fresh"}, f.used())

	close(f.oldGate)
	assert.Equal(t, StatusError, (<-stale).Status)
}

func TestResolve_ForgetSplitsSameTokenFlight(t *testing.T) {
	ss := signedIn("u1")
	store := selection.NewMemory()
	gate := make(chan struct{})
	f := &fakeAPI{script: []func() ([]api.Membership, error){two}, gate: gate}
	r := newResolver(ss, f, store, &recordingSleeper{})

	stale := make(chan Result, 1)
	go func() { stale <- r.Resolve(context.Background()) }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 1 }, time.Second, time.Millisecond)
	r.Forget()

	fresh := make(chan Result, 1)
	go func() { fresh <- r.Resolve(context.Background()) }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 2 }, time.Second, time.Millisecond)
	close(gate)

	assert.Equal(t, StatusOK, (<-stale).Status)
	assert.Equal(t, StatusOK, (<-fresh).Status)
	stored, _ := store.Get(context.Background())
	assert.Equal(t, "t-new", stored)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
