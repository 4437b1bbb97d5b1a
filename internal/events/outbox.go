package events

import (
	"context"
	"log"
	"sync"

	"shiftledger/backend/internal/domain"
)

const defaultCapacity = 4096

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks -source=outbox.go Sink

// Sink delivers ledger events to a downstream consumer.
type Sink interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
}

// Outbox buffers events between a committed ledger write and the sink. Enqueue
// never blocks the caller; when the buffer is full the oldest event is dropped.
type Outbox struct {
	mu       sync.Mutex
	pending  []domain.LedgerEvent
	capacity int
	dropped  int64
}

func NewOutbox(capacity int) *Outbox {
	if capacity < 1 {
		capacity = defaultCapacity
	}
	return &Outbox{capacity: capacity}
}

func (o *Outbox) Enqueue(event domain.LedgerEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) >= o.capacity {
		o.pending = o.pending[1:]
		o.dropped++
		log.Printf("[outbox] WARN: buffer full, dropped oldest event (total dropped=%d)", o.dropped)
	}
	o.pending = append(o.pending, event)
}

// Drain removes up to limit events in enqueue order.
func (o *Outbox) Drain(limit int) []domain.LedgerEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	if limit <= 0 || limit > len(o.pending) {
		limit = len(o.pending)
	}
	if limit == 0 {
		return nil
	}
	out := make([]domain.LedgerEvent, limit)
	copy(out, o.pending[:limit])
	o.pending = o.pending[limit:]
	return out
}

// Requeue puts undelivered events back at the head, preserving their order.
func (o *Outbox) Requeue(events []domain.LedgerEvent) {
	if len(events) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	merged := make([]domain.LedgerEvent, 0, len(events)+len(o.pending))
	merged = append(merged, events...)
	merged = append(merged, o.pending...)
	if over := len(merged) - o.capacity; over > 0 {
		merged = merged[:len(merged)-over]
		o.dropped += int64(over)
	}
	o.pending = merged
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Outbox) Dropped() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// LogSink writes events to the process log. Used when no broker is configured.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, event domain.LedgerEvent) error {
	log.Printf("[events] %s shift=%s terminal=%s actor=%s", event.Kind, event.ShiftID, event.TerminalID, event.ActorID)
	return nil
}
