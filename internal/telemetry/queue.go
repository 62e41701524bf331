package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"bizbank-confirmation/internal/logging"
)

// Queue emits events one at a time, in enqueue order, from a single goroutine. Use it where a consumer
// relies on per-key ordering (the Kafka producer keys by intent id). A nil *Queue drops everything.
type Queue struct {
	emitter EventEmitter
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	ch     chan queuedEvent
	done   chan struct{}
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// NewQueue starts a queue holding up to size pending events. Returns nil when emitter is nil.
func NewQueue(emitter EventEmitter, size int, logger *zap.Logger) *Queue {
	if emitter == nil {
		return nil
	}
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		emitter: emitter,
		logger:  logging.OrNop(logger),
		ch:      make(chan queuedEvent, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue adds event without blocking. The event is dropped with a warning when the queue is full or
// closed. Cancelling ctx does not abort the emit; trace values on ctx are kept.
func (q *Queue) Enqueue(ctx context.Context, event Event) {
	if q == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		q.logger.Warn("telemetry: queue full, event dropped",
			zap.String("event_type", event.EventType),
			zap.String("intent_id", event.IntentID),
		)
	}
}

// Close stops accepting events. Pending events are still emitted; Done is closed after the last one.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Done is closed once the queue is closed and drained.
func (q *Queue) Done() <-chan struct{} {
	if q == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for it := range q.ch {
		emitCtx, cancel := context.WithTimeout(it.ctx, emitTimeout)
		if err := q.emitter.Emit(emitCtx, it.event); err != nil {
			q.logger.Warn("telemetry: queued emit failed",
				zap.String("event_type", it.event.EventType),
				zap.String("intent_id", it.event.IntentID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
