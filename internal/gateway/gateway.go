package gateway

import (
	"context"

	"trovi/internal/models/db_models"
)

type EventType string

const (
	EventPaymentCaptured EventType = "payment_captured"
	EventPaymentFailed   EventType = "payment_failed"
)

// Event is a normalized, signature-verified provider webhook.
type Event struct {
	Type            EventType
	OrderCode       int64
	PaymentLinkID   string
	ExternalEventID string
}

type PaymentGatewayInterface interface {
	// CreateCheckoutSession opens a hosted checkout for the purchase and
	// returns the provider session id plus the URL the buyer is sent to.
	CreateCheckoutSession(ctx context.Context, purchase *db_models.Purchase) (string, string, error)
	// VoidOrRefund cancels an open checkout or refunds a captured payment.
	VoidOrRefund(ctx context.Context, orderCode int64, reason string) error
	// NormalizeWebhook verifies the payload signature and maps it to an Event.
	// Unverifiable payloads are rejected and never applied.
	NormalizeWebhook(raw []byte) (*Event, error)
}
