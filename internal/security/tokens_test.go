package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, exp, err := p.Issue("u1", " ada@example.com ", "Ada Lovelace")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	id, err := p.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.UserID != "u1" || id.Email != "ada@example.com" || id.FullName != "Ada Lovelace" {
		t.Errorf("Validate: got %+v", id)
	}
	if id.IssuedAt.IsZero() {
		t.Error("IssuedAt not set")
	}
}

func TestTokenProvider_ValidateInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, err := p.Validate("invalid-token"); err != ErrInvalidToken {
		t.Errorf("Validate invalid token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ValidateWrongAudience(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	other := NewTokenProvider(p.privateKey, nil, TestIssuer, "other-audience", time.Minute)
	token, _, err := other.Issue("u1", "a@example.com", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := p.Validate(token); err != ErrInvalidToken {
		t.Errorf("Validate wrong audience: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ValidateMissingEmail(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := p.Issue("u1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := p.Validate(token); err != ErrInvalidToken {
		t.Errorf("Validate without email: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_VerifyOnly(t *testing.T) {
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	p := NewTokenProvider(nil, pub, "i", "a", time.Minute)
	if p.CanIssue() {
		t.Fatal("verify-only provider should not issue")
	}
	if _, _, err := p.Issue("u1", "a@example.com", ""); err != ErrNoSigningKey {
		t.Errorf("Issue: want ErrNoSigningKey, got %v", err)
	}
}

func TestTokenProvider_DevKey(t *testing.T) {
	signer, pemStr, err := GenerateDevKey()
	if err != nil {
		t.Fatalf("GenerateDevKey: %v", err)
	}
	if KeyAlg(signer.Public()) != "ES256" {
		t.Errorf("KeyAlg = %q, want ES256", KeyAlg(signer.Public()))
	}
	if _, err := ParsePrivateKey(pemStr); err != nil {
		t.Fatalf("ParsePrivateKey(dev pem): %v", err)
	}
	p := NewTokenProvider(signer, nil, "i", "a", time.Minute)
	token, _, err := p.Issue("u2", "b@example.com", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := p.Validate(token); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseUnverified(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := p.Issue("u9", "nine@example.com", "Nine")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := ParseUnverified(token)
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if id.UserID != "u9" || id.Email != "nine@example.com" {
		t.Errorf("ParseUnverified: got %+v", id)
	}
	if _, err := ParseUnverified("garbage"); err != ErrInvalidToken {
		t.Errorf("ParseUnverified garbage: want ErrInvalidToken, got %v", err)
	}
}

func TestNewTestTokenProvider_DomainClaims(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if KeyAlg(p.publicKey) != "ES256" {
		t.Errorf("KeyAlg = %q, want ES256", KeyAlg(p.publicKey))
	}
	tests := []struct {
		name, fullName, wantName string
	}{
		{"explicit name", "Ada Lovelace", "Ada Lovelace"},
		{"name defaults to user id", "", "u7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := IssueTestToken(p, "u7", tt.fullName)
			if err != nil {
				t.Fatalf("IssueTestToken: %v", err)
			}
			id, err := p.Validate(token)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if id.Email != "u7@example.com" || id.FullName != tt.wantName {
				t.Errorf("identity = %+v", id)
			}
		})
	}
}
