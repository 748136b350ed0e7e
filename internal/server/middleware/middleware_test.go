package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"nova-workspace/backend/internal/security"
)

func decodeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func TestAuth(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	valid, _, err := tokens.Issue("u1", "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var seen *security.Identity
	h := Auth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetIdentity(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"valid lowercase scheme", "bearer " + valid, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.code != "" {
				if got := decodeCode(t, rec); got != tt.code {
					t.Errorf("code = %q, want %q", got, tt.code)
				}
				return
			}
			if seen == nil || seen.UserID != "u1" || seen.Email != "ada@example.com" {
				t.Errorf("identity = %+v", seen)
			}
		})
	}
}

func TestAuth_Unconfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth(nil)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "9.9.9.9:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "9.9.9.9:1", "5.6.7.8"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = ClientIP(r.Context()) }))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	h := Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeCode(t, rec); got != "SERVER_ERROR" {
		t.Errorf("code = %q, want SERVER_ERROR", got)
	}
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	h := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}
