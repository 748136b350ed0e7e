package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPEM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(path, []byte(testPublicKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"inline", testPublicKeyPEM, false},
		{"escaped newlines", strings.ReplaceAll(testPublicKeyPEM, "\n", `\n`), false},
		{"file", path, false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"missing file", filepath.Join(dir, "nope.pem"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := LoadPEM(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadPEM: %v", err)
			}
			if strings.Contains(string(b), `\n`) {
				t.Error("escaped newlines not converted")
			}
			if _, err := ParsePublicKey(string(b)); err != nil {
				t.Errorf("ParsePublicKey: %v", err)
			}
		})
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	bad := "-----BEGIN FOO-----\nAAAA\n-----END FOO-----"
	if _, err := ParsePrivateKey(bad); err != ErrInvalidKey {
		t.Errorf("ParsePrivateKey: want ErrInvalidKey, got %v", err)
	}
	if _, err := ParsePublicKey(bad); err != ErrInvalidKey {
		t.Errorf("ParsePublicKey: want ErrInvalidKey, got %v", err)
	}
	if _, err := ParsePrivateKey("-----BEGIN not pem"); err != ErrInvalidKey {
		t.Errorf("ParsePrivateKey garbage: want ErrInvalidKey, got %v", err)
	}
}

func TestKeyAlg(t *testing.T) {
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if got := KeyAlg(pub); got != "RS256" {
		t.Errorf("KeyAlg(rsa) = %q, want RS256", got)
	}
	if got := KeyAlg("nope"); got != "" {
		t.Errorf("KeyAlg(string) = %q, want empty", got)
	}
}
