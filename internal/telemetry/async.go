package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nova-workspace/backend/internal/logging"
	"nova-workspace/backend/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down OTel providers
// and the Kafka producer, so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Use from request handlers for fire-and-forget, best-effort telemetry; errors are logged.
//
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine detaches from ctx cancellation so a finished request does not abort the emit.
func EmitAsync(ctx context.Context, emitter EventEmitter, logger *zap.Logger, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	logger = logging.OrNop(logger)
	base := context.WithoutCancel(ctx)
	go func() {
		emitCtx, cancel := context.WithTimeout(base, emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			logger.Warn("telemetry: async emit failed", zap.String("event_type", event.EventType), zap.Error(err))
		}
	}()
}
