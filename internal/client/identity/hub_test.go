package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nova-workspace/backend/internal/security"
)

func issue(t *testing.T, userID, email string) string {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	tok, _, err := tokens.Issue(userID, email, "Ada Lovelace")
	require.NoError(t, err)
	return tok
}

func TestHub_SignInSignOut(t *testing.T) {
	h := NewHub()
	assert.Nil(t, h.Session())

	var events []Event
	unsub := h.Subscribe(func(e Event) { events = append(events, e) })

	s, err := h.SignIn(issue(t, "u1", "ada@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "ada@example.com", s.Email)
	assert.Equal(t, "Ada Lovelace", s.FullName)
	assert.False(t, s.IssuedAt.IsZero())

	_, err = h.SignIn(issue(t, "u1", "ada@example.com"))
	require.NoError(t, err)
	_, err = h.SignIn(issue(t, "u2", "bob@example.com"))
	require.NoError(t, err)
	h.SignOut()
	h.SignOut()

	require.Len(t, events, 4)
	assert.Equal(t, SignedIn, events[0].Kind)
	assert.Equal(t, Refreshed, events[1].Kind)
	assert.Equal(t, SignedIn, events[2].Kind)
	assert.Equal(t, "u2", events[2].Session.UserID)
	assert.Equal(t, SignedOut, events[3].Kind)
	assert.Nil(t, events[3].Session)
	assert.Nil(t, h.Session())

	unsub()
	_, err = h.SignIn(issue(t, "u1", "ada@example.com"))
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestHub_SignInRejectsBadTokens(t *testing.T) {
	h := NewHub()
	_, err := h.SignIn("  ")
	assert.ErrorIs(t, err, ErrEmptyToken)
	_, err = h.SignIn("not-a-jwt")
	assert.ErrorIs(t, err, security.ErrInvalidToken)
	assert.Nil(t, h.Session())
}

func TestHub_SessionIsCopy(t *testing.T) {
	h := NewHub()
	h.Set(&Session{UserID: "u1", Token: "t"})
	s := h.Session()
	s.UserID = "mutated"
	assert.Equal(t, "u1", h.Session().UserID)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "signed-in", SignedIn.String())
	assert.Equal(t, "signed-out", SignedOut.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}
