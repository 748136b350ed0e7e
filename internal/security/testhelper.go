package security

import (
	"crypto"
	"fmt"
	"sync"
	"time"
)

// TestIssuer and TestAudience match the server defaults so test tokens look like dev tokens.
const (
	TestIssuer   = "nova-auth"
	TestAudience = "nova-api"
)

var testKey struct {
	once sync.Once
	key  crypto.Signer
	err  error
}

// NewTestTokenProvider returns an ES256 TokenProvider whose key is generated once per test binary.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	testKey.once.Do(func() {
		testKey.key, _, testKey.err = GenerateDevKey()
	})
	if testKey.err != nil {
		return nil, testKey.err
	}
	return NewTokenProvider(testKey.key, testKey.key.Public(), TestIssuer, TestAudience, 15*time.Minute), nil
}

// IssueTestToken issues a token for userID with the email and name claims bootstrap needs. The
// email is <userID>@example.com and the name is fullName, or userID when fullName is empty.
func IssueTestToken(p *TokenProvider, userID, fullName string) (string, error) {
	if fullName == "" {
		fullName = userID
	}
	token, _, err := p.Issue(userID, userID+"@example.com", fullName)
	if err != nil {
		return "", fmt.Errorf("issue test token: %w", err)
	}
	return token, nil
}
