package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bizbank-confirmation/internal/logging"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait before shutting down OTel providers so in-flight async
// emits can complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked. emitter may be nil.
// Cancelling ctx does not abort an in-flight emit; trace values on ctx are kept.
func EmitAsync(emitter EventEmitter, ctx context.Context, event Event, logger *zap.Logger) {
	if emitter == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	logger = logging.OrNop(logger)
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			logger.Warn("telemetry: async emit failed",
				zap.String("event_type", event.EventType),
				zap.String("intent_id", event.IntentID),
				zap.Error(err),
			)
		}
	}()
}
