package services

import (
	"context"
	"log"
	"sync"

	"trovi/internal/gateway"
)

// WebhookProcessor decouples the provider-facing endpoint from applying the
// event: the endpoint acks 200 as soon as the verified event is queued (the
// provider convention that avoids retry storms), and application happens
// asynchronously and idempotently.
type WebhookProcessor struct {
	purchases PurchaseServiceInterface
	logger    *log.Logger

	events chan *gateway.Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWebhookProcessor(purchases PurchaseServiceInterface, logger *log.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		purchases: purchases,
		logger:    logger,
		events:    make(chan *gateway.Event, 256),
	}
}

// Enqueue hands a verified event to the worker. It reports false when the
// queue is saturated, in which case the endpoint should ask the provider to
// retry later.
func (w *WebhookProcessor) Enqueue(event *gateway.Event) bool {
	select {
	case w.events <- event:
		return true
	default:
		return false
	}
}

func (w *WebhookProcessor) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *WebhookProcessor) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *WebhookProcessor) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.events:
			if err := w.purchases.ApplyWebhookEvent(ctx, event); err != nil {
				w.logger.Printf("webhook processor: applying event %s: %v", event.ExternalEventID, err)
			}
		}
	}
}
