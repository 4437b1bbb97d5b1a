package job

import (
	"context"
	"log"
	"time"

	"shiftledger/backend/internal/domain"
	"shiftledger/backend/internal/events"
)

const (
	defaultInterval   = 250 * time.Millisecond
	defaultBatchSize  = 100
	defaultMaxRetries = 5
)

// OutboxSender drains the ledger outbox into a sink on a fixed tick. Failed
// events go back to the outbox until they exhaust maxRetries.
type OutboxSender struct {
	outbox     *events.Outbox
	sink       events.Sink
	interval   time.Duration
	batchSize  int
	maxRetries int
	retries    map[string]int
	stopCh     chan struct{}
}

func NewOutboxSender(outbox *events.Outbox, sink events.Sink, interval time.Duration) *OutboxSender {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &OutboxSender{
		outbox:     outbox,
		sink:       sink,
		interval:   interval,
		batchSize:  defaultBatchSize,
		maxRetries: defaultMaxRetries,
		retries:    map[string]int{},
		stopCh:     make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called, then makes a final
// flush attempt.
func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			log.Println("[OutboxSender] context done, exiting")
			return
		case <-s.stopCh:
			s.flush(context.Background())
			log.Println("[OutboxSender] stopped")
			return
		case <-ticker.C:
			s.processPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// flush drains the outbox until it is empty, a pass moves nothing, or the
// flush deadline passes.
func (s *OutboxSender) flush(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for s.outbox.Len() > 0 && flushCtx.Err() == nil {
		if s.processPending(flushCtx) == 0 {
			break
		}
	}
	if n := s.outbox.Len(); n > 0 {
		log.Printf("[OutboxSender] WARN: final flush left %d events pending", n)
	}
}

// processPending sends one batch and returns how many events left the outbox.
// Once an event of a shift fails, the rest of that shift's events in the batch
// are held back so a shift's events are never published out of order.
func (s *OutboxSender) processPending(ctx context.Context) int {
	batch := s.outbox.Drain(s.batchSize)
	if len(batch) == 0 {
		return 0
	}

	var failed []domain.LedgerEvent
	blocked := map[string]bool{}
	for i, ev := range batch {
		if ctx.Err() != nil {
			failed = append(failed, batch[i:]...)
			break
		}
		if blocked[ev.ShiftID] {
			failed = append(failed, ev)
			continue
		}
		if s.send(ctx, ev) {
			continue
		}
		blocked[ev.ShiftID] = true
		failed = append(failed, ev)
	}
	s.outbox.Requeue(failed)
	return len(batch) - len(failed)
}

// send reports whether ev left the outbox, either delivered or given up on.
func (s *OutboxSender) send(ctx context.Context, ev domain.LedgerEvent) bool {
	err := s.sink.Publish(ctx, ev)
	if err == nil {
		delete(s.retries, ev.ID)
		return true
	}

	s.retries[ev.ID]++
	attempts := s.retries[ev.ID]
	log.Printf("[OutboxSender] publish failed: id=%s kind=%s attempt=%d err=%v", ev.ID, ev.Kind, attempts, err)
	if attempts >= s.maxRetries {
		delete(s.retries, ev.ID)
		log.Printf("[OutboxSender] WARN: giving up on event id=%s after %d attempts", ev.ID, attempts)
		return true
	}
	return false
}
