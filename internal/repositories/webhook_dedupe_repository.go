package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type WebhookDedupeRepositoryInterface interface {
	// MarkProcessed records an external event id and reports whether this was
	// the first sighting. Entries expire after the retention TTL, which bounds
	// how long provider retries are recognized as duplicates.
	MarkProcessed(ctx context.Context, externalEventID string, purchaseID string) (bool, error)
}

func NewWebhookDedupeRepository(client *redis.Client, ttl time.Duration) WebhookDedupeRepositoryInterface {
	return &WebhookDedupeRepository{client: client, ttl: ttl}
}

type WebhookDedupeRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func (r *WebhookDedupeRepository) MarkProcessed(ctx context.Context, externalEventID string, purchaseID string) (bool, error) {
	key := fmt.Sprintf("webhook_event:%s", externalEventID)

	ok, err := r.client.SetNX(ctx, key, purchaseID, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set webhook dedupe key in redis: %w", err)
	}
	return ok, nil
}
