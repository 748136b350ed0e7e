package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"nova-workspace/backend/internal/telemetry"
	"nova-workspace/backend/internal/telemetry/domain"
)

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("nova.provisioning")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

// recordEmitter is the subset of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	if len(event.Metadata) > 0 {
		rec.SetBody(otellog.StringValue(string(event.Metadata)))
	}
	for _, kv := range []struct{ k, v string }{
		{"tenant_id", event.TenantID},
		{"user_id", event.UserID},
		{"event_type", event.EventType},
		{"source", event.Source},
	} {
		if kv.v != "" {
			rec.AddAttributes(otellog.String(kv.k, kv.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
