package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditLog_Details(t *testing.T) {
	tests := []struct {
		name   string
		log    AuditLog
		want   map[string]string
		failed bool
	}{
		{"bootstrap", AuditLog{Action: ActionBootstrap, Metadata: `{"slug":"ada","role":"admin"}`}, map[string]string{"slug": "ada", "role": "admin"}, false},
		{"failure", AuditLog{Action: ActionBootstrapFailed, Metadata: `{"kind":"PROFILE_UPSERT"}`}, map[string]string{"kind": "PROFILE_UPSERT"}, true},
		{"empty", AuditLog{Action: ActionBootstrap}, nil, false},
		{"malformed", AuditLog{Action: ActionBootstrap, Metadata: "{"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.log.Details())
			assert.Equal(t, tt.failed, tt.log.Failed())
		})
	}
}
