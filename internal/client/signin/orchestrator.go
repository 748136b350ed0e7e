// Package signin provisions a user's workspace once per signed-in user before resolution runs.
package signin

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"nova-workspace/backend/internal/client/api"
	"nova-workspace/backend/internal/client/identity"
	"nova-workspace/backend/internal/logging"
)

// DefaultAttempts is how many times a failed bootstrap is tried.
const DefaultAttempts = 3

// DefaultStep is the linear backoff unit: the wait after attempt n is n × DefaultStep.
const DefaultStep = 500 * time.Millisecond

// Bootstrapper provisions the caller's workspace.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, token string) (*api.BootstrapResult, error)
}

// Outcome reports what Ensure did.
type Outcome struct {
	// Skipped is true when the user had already been bootstrapped in this sign-in.
	Skipped bool
	Result  *api.BootstrapResult
	// Err is the last error when every attempt failed. Resolution proceeds regardless.
	Err      error
	Attempts int
}

// Orchestrator runs bootstrap at most once per user id until Reset. It owns the in-progress and
// completed sets; a concurrent Ensure for a user already in progress waits for that run.
type Orchestrator struct {
	api      Bootstrapper
	timeout  time.Duration
	attempts uint
	step     time.Duration
	logger   *zap.Logger

	mu         sync.Mutex
	inProgress map[string]chan struct{}
	completed  map[string]*api.BootstrapResult
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds each bootstrap call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBackoff overrides the attempt count and linear step.
func WithBackoff(attempts uint, step time.Duration) Option {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.attempts = attempts
		}
		if step > 0 {
			o.step = step
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.logger = logging.OrNop(l) } }

// New returns an Orchestrator.
func New(client Bootstrapper, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:        client,
		timeout:    20 * time.Second,
		attempts:   DefaultAttempts,
		step:       DefaultStep,
		logger:     zap.NewNop(),
		inProgress: make(map[string]chan struct{}),
		completed:  make(map[string]*api.BootstrapResult),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ensure bootstraps the session's user unless that already succeeded since the last Reset.
// Failures are logged and returned in Outcome; a failed user is tried again on the next Ensure.
func (o *Orchestrator) Ensure(ctx context.Context, s *identity.Session) Outcome {
	for {
		o.mu.Lock()
		if res, ok := o.completed[s.UserID]; ok {
			o.mu.Unlock()
			return Outcome{Skipped: true, Result: res}
		}
		wait, running := o.inProgress[s.UserID]
		if !running {
			done := make(chan struct{})
			o.inProgress[s.UserID] = done
			o.mu.Unlock()
			return o.run(ctx, s, done)
		}
		o.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Outcome{Skipped: true, Err: ctx.Err()}
		}
		o.mu.Lock()
		res, ok := o.completed[s.UserID]
		o.mu.Unlock()
		if ok {
			return Outcome{Skipped: true, Result: res}
		}
		// The other run failed; its caller already logged it.
		return Outcome{Skipped: true}
	}
}

func (o *Orchestrator) run(ctx context.Context, s *identity.Session, done chan struct{}) Outcome {
	log := o.logger.With(zap.String("user_id", s.UserID))
	attempts := 0
	res, err := backoff.Retry(ctx, func() (*api.BootstrapResult, error) {
		attempts++
		actx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		res, err := o.api.Bootstrap(actx, s.Token)
		if err != nil && api.IsAuthorization(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(&linear{step: o.step}),
		backoff.WithMaxTries(o.attempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn("signin: bootstrap failed, retrying", zap.Int("attempt", attempts), zap.Duration("wait", wait), zap.Error(err))
		}),
	)

	o.mu.Lock()
	delete(o.inProgress, s.UserID)
	if err == nil {
		o.completed[s.UserID] = res
	}
	o.mu.Unlock()
	close(done)

	if err != nil {
		log.Error("signin: bootstrap gave up, continuing to resolve", zap.Int("attempts", attempts), zap.Error(err))
		return Outcome{Err: err, Attempts: attempts}
	}
	log.Info("signin: bootstrap complete", zap.String("tenant_id", res.TenantID), zap.String("role", res.Role))
	return Outcome{Result: res, Attempts: attempts}
}

// Completed reports whether userID has been bootstrapped since the last Reset.
func (o *Orchestrator) Completed(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.completed[userID]
	return ok
}

// Reset forgets completed users. Called on sign-out.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = make(map[string]*api.BootstrapResult)
}

// linear waits step, 2×step, 3×step, ...
type linear struct {
	step time.Duration
	n    int
}

func (l *linear) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.step
}

func (l *linear) Reset() { l.n = 0 }
