package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSigningKey is returned by Issue when the provider only verifies.
	ErrNoSigningKey = errors.New("no signing key configured")
)

// IdentityClaims holds the JWT claims of a session token issued by the identity provider.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// Identity is the authenticated caller extracted from a validated token.
type Identity struct {
	UserID    string
	Email     string
	FullName  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenProvider validates (and, with a private key, issues) session JWTs using RS256 or ES256.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
}

// NewTokenProvider returns a TokenProvider. privateKey may be nil for a verify-only provider.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) *TokenProvider {
	if publicKey == nil && privateKey != nil {
		publicKey = privateKey.Public()
	}
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
	}
}

// CanIssue reports whether the provider holds a signing key.
func (p *TokenProvider) CanIssue() bool { return p != nil && p.privateKey != nil }

// Issue signs a session token for the given user. Returns the token and its expiration time.
func (p *TokenProvider) Issue(userID, email, fullName string) (token string, expiresAt time.Time, err error) {
	if !p.CanIssue() {
		return "", time.Time{}, ErrNoSigningKey
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:    strings.TrimSpace(email),
		FullName: strings.TrimSpace(fullName),
	}
	token, err = p.sign(claims)
	return token, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Validate parses and validates the token (signature, exp, iss, aud) and returns the identity.
// A token without a subject or email is rejected.
func (p *TokenProvider) Validate(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims.identity(), nil
}

// ParseUnverified decodes the claims of a token without checking its signature. Clients use it
// to learn who they are signed in as; servers must use Validate.
func ParseUnverified(tokenString string) (*Identity, error) {
	var claims IdentityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims.identity(), nil
}

func (c *IdentityClaims) identity() *Identity {
	id := &Identity{
		UserID:   c.Subject,
		Email:    c.Email,
		FullName: c.FullName,
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
