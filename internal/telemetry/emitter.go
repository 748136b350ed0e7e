package telemetry

import (
	"context"
	"errors"

	"nova-workspace/backend/internal/telemetry/domain"
)

// EventEmitter emits provisioning events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// Fanout emits every event to each non-nil emitter and joins their errors.
type Fanout []EventEmitter

func (f Fanout) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
