package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/payOSHQ/payos-lib-golang"

	"trovi/internal/models/db_models"
	"trovi/pkg/utils"
)

type PayOSConfig struct {
	ClientID     string
	ApiKey       string
	ChecksumKey  string
	ReturnURL    string
	CancelURL    string
	ProviderName string // stored on Purchase.Provider
}

const (
	callTimeout = 10 * time.Second
	maxAttempts = 3
)

type PayOSGateway struct {
	cfg PayOSConfig

	// SDK entry points, swappable in tests.
	createLink    func(payos.CheckoutRequestType) (*payos.CheckoutResponseDataType, error)
	cancelLink    func(orderCode int64, reason *string) (*payos.PaymentLinkDataType, error)
	verifyWebhook func(payos.WebhookType) (*payos.WebhookDataType, error)
}

func NewPayOSGateway(cfg PayOSConfig) (*PayOSGateway, error) {
	if cfg.ClientID == "" || cfg.ApiKey == "" || cfg.ChecksumKey == "" {
		return nil, errors.New("missing payOS credentials")
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "payos"
	}

	if err := payos.Key(cfg.ClientID, cfg.ApiKey, cfg.ChecksumKey); err != nil {
		return nil, fmt.Errorf("payos client init: %w", err)
	}

	return &PayOSGateway{
		cfg:           cfg,
		createLink:    payos.CreatePaymentLink,
		cancelLink: func(orderCode int64, reason *string) (*payos.PaymentLinkDataType, error) {
			return payos.CancelPaymentLink(strconv.FormatInt(orderCode, 10), reason)
		},
		verifyWebhook: payos.VerifyPaymentWebhookData,
	}, nil
}

func (g *PayOSGateway) ProviderName() string {
	return g.cfg.ProviderName
}

// NewOrderCode generates a provider order code. payOS expects int64 within 13
// digits; unix seconds plus a short random suffix keeps collisions unlikely.
func NewOrderCode() int64 {
	return time.Now().Unix()%1_000_000_000*10_000 + int64(rand.Intn(9000)+1000)
}

func (g *PayOSGateway) CreateCheckoutSession(ctx context.Context, purchase *db_models.Purchase) (string, string, error) {
	body := payos.CheckoutRequestType{
		OrderCode:   purchase.OrderCode,
		Amount:      int(purchase.AmountMinor),
		Description: fmt.Sprintf("Purchase %s", purchase.ID),
		Items: []payos.Item{{
			Name:     fmt.Sprintf("Listing %s", purchase.ListingID),
			Price:    int(purchase.AmountMinor),
			Quantity: 1,
		}},
		ReturnUrl: g.cfg.ReturnURL,
		CancelUrl: g.cfg.CancelURL,
	}

	var resp *payos.CheckoutResponseDataType
	err := withRetry(ctx, func() error {
		var callErr error
		resp, callErr = g.createLink(body)
		return callErr
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: payos create link: %v", utils.ErrGatewayUnavailable, err)
	}

	return resp.PaymentLinkId, resp.CheckoutUrl, nil
}

func (g *PayOSGateway) VoidOrRefund(ctx context.Context, orderCode int64, reason string) error {
	err := withRetry(ctx, func() error {
		_, callErr := g.cancelLink(orderCode, &reason)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("%w: payos cancel link %d: %v", utils.ErrGatewayUnavailable, orderCode, err)
	}
	return nil
}

func (g *PayOSGateway) NormalizeWebhook(raw []byte) (*Event, error) {
	var body payos.WebhookType
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", utils.ErrInvalidWebhookSignature)
	}

	data, err := g.verifyWebhook(body)
	if err != nil || data == nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidWebhookSignature, err)
	}

	event := &Event{
		OrderCode:       data.OrderCode,
		PaymentLinkID:   data.PaymentLinkId,
		ExternalEventID: externalEventID(data),
	}

	// payOS signals outcome via the data-level code; "00" is a captured payment.
	if data.Code == "00" {
		event.Type = EventPaymentCaptured
	} else {
		event.Type = EventPaymentFailed
	}

	return event, nil
}

// externalEventID prefers the bank reference, which is unique per delivery
// chain; provider retries of the same event reuse it.
func externalEventID(data *payos.WebhookDataType) string {
	if data.Reference != "" {
		return data.Reference
	}
	return fmt.Sprintf("%d:%s", data.OrderCode, data.Code)
}

// withRetry runs call up to maxAttempts times with exponential backoff and
// jitter, honoring ctx cancellation between attempts.
func withRetry(ctx context.Context, call func() error) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout*maxAttempts)
	defer cancel()

	var err error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}

		if attempt == maxAttempts-1 {
			break
		}
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		backoff *= 2
	}
	return err
}
