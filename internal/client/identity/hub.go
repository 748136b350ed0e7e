// Package identity holds the client-side session and notifies subscribers when it changes.
package identity

import (
	"errors"
	"strings"
	"sync"
	"time"

	"nova-workspace/backend/internal/security"
)

// ErrEmptyToken is returned by SignIn for a blank token.
var ErrEmptyToken = errors.New("identity: token is required")

// Session is the signed-in user as seen by the client. It is replaced on token refresh and
// dropped on sign-out.
type Session struct {
	UserID   string
	Email    string
	FullName string
	Token    string
	IssuedAt time.Time
}

// EventKind says what happened to the session.
type EventKind int

const (
	// SignedIn means a session now exists for a user that was not signed in before.
	SignedIn EventKind = iota + 1
	// Refreshed means the token was replaced for the same user.
	Refreshed
	// SignedOut means there is no session any more.
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed-in"
	case Refreshed:
		return "refreshed"
	case SignedOut:
		return "signed-out"
	default:
		return "unknown"
	}
}

// Event is a session change. Session is nil for SignedOut.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Hub owns the current session. Subscribers are called synchronously, in subscription order,
// outside the hub lock.
type Hub struct {
	mu      sync.Mutex
	session *Session
	subs    map[int]func(Event)
	order   []int
	nextID  int
}

// NewHub returns a signed-out Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(Event))}
}

// Session returns a copy of the current session, or nil when signed out.
func (h *Hub) Session() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil
	}
	s := *h.session
	return &s
}

// Subscribe registers fn for session changes and returns a function that removes it.
func (h *Hub) Subscribe(fn func(Event)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[id] = fn
	h.order = append(h.order, id)
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
		for i, v := range h.order {
			if v == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
}

// SignIn decodes the bearer token's claims and installs it as the session. The server verifies
// the signature; the client only reads sub, email and name.
func (h *Hub) SignIn(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}
	id, err := security.ParseUnverified(token)
	if err != nil {
		return nil, err
	}
	s := &Session{UserID: id.UserID, Email: id.Email, FullName: id.FullName, Token: token, IssuedAt: id.IssuedAt}
	h.Set(s)
	return s, nil
}

// Set replaces the session and notifies subscribers. A nil session signs out.
func (h *Hub) Set(s *Session) {
	h.mu.Lock()
	prev := h.session
	var kind EventKind
	switch {
	case s == nil && prev == nil:
		h.mu.Unlock()
		return
	case s == nil:
		kind = SignedOut
	case prev != nil && prev.UserID == s.UserID:
		kind = Refreshed
	default:
		kind = SignedIn
	}
	if s != nil {
		cp := *s
		h.session = &cp
	} else {
		h.session = nil
	}
	subs := make([]func(Event), 0, len(h.order))
	for _, id := range h.order {
		subs = append(subs, h.subs[id])
	}
	h.mu.Unlock()

	ev := Event{Kind: kind}
	if s != nil {
		cp := *s
		ev.Session = &cp
	}
	for _, fn := range subs {
		fn(ev)
	}
}

// SignOut drops the session. It is a no-op when already signed out.
func (h *Hub) SignOut() {
	h.Set(nil)
}
