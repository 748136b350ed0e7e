package otel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"nova-workspace/backend/internal/telemetry/domain"
)

// recordCapture stores every Record passed to Emit for assertion.
type recordCapture struct {
	records []otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) { r.records = append(r.records, rec) }

func TestNewEventEmitter_NilProvider(t *testing.T) {
	e := NewEventEmitter(nil)
	if err := e.Emit(context.Background(), &domain.Event{EventType: "x"}); err != nil {
		t.Fatalf("noop Emit: %v", err)
	}
}

func TestEmit_AttributeMapping(t *testing.T) {
	capture := &recordCapture{}
	e := &otelEmitter{logger: capture}
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := e.Emit(context.Background(), &domain.Event{
		TenantID:  "t1",
		UserID:    "u1",
		EventType: domain.EventTenantProvisioned,
		Source:    "bootstrap",
		Metadata:  json.RawMessage(`{"slug":"ada"}`),
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(capture.records) != 1 {
		t.Fatalf("records = %d, want 1", len(capture.records))
	}
	rec := capture.records[0]
	if !rec.Timestamp().Equal(created) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), created)
	}
	if rec.Body().AsString() != `{"slug":"ada"}` {
		t.Errorf("body = %q", rec.Body().AsString())
	}
	got := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		got[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{"tenant_id": "t1", "user_id": "u1", "event_type": "tenant.provisioned", "source": "bootstrap"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attr %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestEmit_ZeroTimestampAndNil(t *testing.T) {
	capture := &recordCapture{}
	e := &otelEmitter{logger: capture}
	if err := e.Emit(context.Background(), nil); err != nil {
		t.Fatalf("Emit(nil): %v", err)
	}
	if err := e.Emit(context.Background(), &domain.Event{EventType: "x"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(capture.records) != 1 {
		t.Fatalf("records = %d, want 1", len(capture.records))
	}
	if capture.records[0].Timestamp().IsZero() {
		t.Error("timestamp should default to now")
	}
}
