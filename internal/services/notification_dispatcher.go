package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"trovi/internal/listings"
	"trovi/internal/models/db_models"
)

const statusChangedChannel = "purchase.status_changed"

// Publisher is the outbound push channel for session notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// NewRedisPublisher adapts a redis client to the Publisher seam.
func NewRedisPublisher(client *redis.Client) Publisher {
	return &redisPublisher{client: client}
}

type redisPublisher struct {
	client *redis.Client
}

func (p *redisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// NotificationDispatcher fans transition events out to the buyer's and
// seller's session channels and flips listing availability at the catalog.
// Delivery is at-least-once; consumers dedupe on purchase id plus resulting
// status.
type NotificationDispatcher struct {
	queue     *EventQueue
	publisher Publisher
	listings  listings.ClientInterface
	logger    *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotificationDispatcher(queue *EventQueue, publisher Publisher,
	listingClient listings.ClientInterface, logger *log.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		queue:     queue,
		publisher: publisher,
		listings:  listingClient,
		logger:    logger,
	}
}

func (d *NotificationDispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run(ctx)
}

func (d *NotificationDispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *NotificationDispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue.Events():
			d.dispatch(ctx, event)
		}
	}
}

func (d *NotificationDispatcher) dispatch(ctx context.Context, event StatusChangedEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Printf("dispatcher: marshal event for purchase %s: %v", event.PurchaseID, err)
		return
	}

	channels := []string{
		statusChangedChannel,
		fmt.Sprintf("user:%s:purchases", event.BuyerID),
		fmt.Sprintf("user:%s:purchases", event.SellerID),
	}
	for _, channel := range channels {
		if err := d.publisher.Publish(ctx, channel, payload); err != nil {
			d.logger.Printf("dispatcher: publish to %s failed: %v", channel, err)
		}
	}

	d.flipListing(ctx, event)
}

// flipListing keeps catalog availability in step with the purchase state:
// reserved while the purchase is live, back to available on any non-sale
// terminal, permanently sold once verified.
func (d *NotificationDispatcher) flipListing(ctx context.Context, event StatusChangedEvent) {
	var err error
	switch event.Status {
	case db_models.PurchaseStatusVerified:
		err = d.listings.MarkSold(ctx, event.ListingID)
	case db_models.PurchaseStatusFailed, db_models.PurchaseStatusRefunded, db_models.PurchaseStatusCanceled:
		err = d.listings.Release(ctx, event.ListingID)
	default:
		return
	}
	if err != nil {
		d.logger.Printf("dispatcher: listing %s availability update for status %s failed: %v",
			event.ListingID, event.Status, err)
	}
}
