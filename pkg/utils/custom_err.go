package utils

import "errors"

var (
	ErrInvalidAmount           = errors.New("amount must be positive and match the listing price")
	ErrListingUnavailable      = errors.New("listing is not available")
	ErrPurchaseNotFound        = errors.New("purchase not found")
	ErrNotPurchaseBuyer        = errors.New("only the buyer may act on this purchase")
	ErrBuyerIsSeller           = errors.New("cannot purchase your own listing")
	ErrConcurrentModification  = errors.New("purchase was modified concurrently")
	ErrInvalidWebhookSignature = errors.New("webhook signature verification failed")
	ErrGatewayUnavailable      = errors.New("payment gateway unavailable")
	ErrDatabaseError           = errors.New("database error")
)
