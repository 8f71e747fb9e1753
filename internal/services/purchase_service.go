package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"trovi/internal/gateway"
	"trovi/internal/listings"
	"trovi/internal/models/db_models"
	"trovi/internal/models/request_models"
	"trovi/internal/models/response_models"
	"trovi/internal/repositories"
	"trovi/pkg/clock"
	"trovi/pkg/utils"
)

// PurchaseService owns the purchase state machine. Every status write in the
// system flows through its transition function (or the reconciler's, which
// shares it); webhook events, buyer actions and deadline expiry are just
// different producers of transition decisions.
type PurchaseServiceInterface interface {
	CreatePurchase(ctx context.Context, buyerID uuid.UUID, req request_models.CreatePurchaseRequest) (*response_models.CreatePurchaseResponse, error)
	GetPurchase(ctx context.Context, purchaseID uuid.UUID) (*db_models.Purchase, error)
	ListPurchasesForUser(ctx context.Context, userID uuid.UUID) ([]db_models.Purchase, error)
	ApplyWebhookEvent(ctx context.Context, event *gateway.Event) error
	ConfirmReceipt(ctx context.Context, purchaseID, requesterID uuid.UUID) (*db_models.Purchase, error)
	CancelPurchase(ctx context.Context, purchaseID, requesterID uuid.UUID, reason string) (*db_models.Purchase, error)
}

type PurchaseService struct {
	purchaseRepo repositories.PurchaseRepositoryInterface
	dedupe       repositories.WebhookDedupeRepositoryInterface
	gateway      gateway.PaymentGatewayInterface
	listings     listings.ClientInterface
	reconciler   CancellationReconcilerInterface
	scheduler    DeadlineSchedulerInterface
	queue        *EventQueue
	clock        clock.Clock

	provider           string
	verificationWindow time.Duration
	newOrderCode       func() int64
}

func NewPurchaseService(
	purchaseRepo repositories.PurchaseRepositoryInterface,
	dedupe repositories.WebhookDedupeRepositoryInterface,
	gw gateway.PaymentGatewayInterface,
	listingClient listings.ClientInterface,
	reconciler CancellationReconcilerInterface,
	scheduler DeadlineSchedulerInterface,
	queue *EventQueue,
	clk clock.Clock,
	provider string,
	verificationWindow time.Duration,
) PurchaseServiceInterface {
	if verificationWindow <= 0 {
		verificationWindow = 72 * time.Hour
	}
	return &PurchaseService{
		purchaseRepo:       purchaseRepo,
		dedupe:             dedupe,
		gateway:            gw,
		listings:           listingClient,
		reconciler:         reconciler,
		scheduler:          scheduler,
		queue:              queue,
		clock:              clk,
		provider:           provider,
		verificationWindow: verificationWindow,
		newOrderCode:       gateway.NewOrderCode,
	}
}

func (s *PurchaseService) CreatePurchase(ctx context.Context, buyerID uuid.UUID, req request_models.CreatePurchaseRequest) (*response_models.CreatePurchaseResponse, error) {
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return nil, utils.ErrListingUnavailable
	}
	if req.AmountMinor <= 0 {
		return nil, utils.ErrInvalidAmount
	}

	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		if errors.Is(err, listings.ErrListingNotFound) {
			return nil, utils.ErrListingUnavailable
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrGatewayUnavailable, err)
	}

	if listing.SellerID == buyerID {
		return nil, utils.ErrBuyerIsSeller
	}
	if listing.Availability != listings.AvailabilityAvailable {
		return nil, utils.ErrListingUnavailable
	}
	if req.AmountMinor != listing.PriceMinor {
		return nil, utils.ErrInvalidAmount
	}

	// Reserve first; the reservation is what makes concurrent buy attempts
	// lose cleanly before anything is persisted.
	if err := s.listings.Reserve(ctx, listingID); err != nil {
		return nil, utils.ErrListingUnavailable
	}

	currency := listing.Currency
	if req.Currency != "" {
		currency = req.Currency
	}

	purchase := &db_models.Purchase{
		ListingID:   listingID,
		BuyerID:     buyerID,
		SellerID:    listing.SellerID,
		AmountMinor: req.AmountMinor,
		Currency:    currency,
		Status:      db_models.PurchaseStatusPending,
		Provider:    s.provider,
		OrderCode:   s.newOrderCode(),
		Version:     1,
	}

	if err := s.purchaseRepo.CreatePurchase(ctx, purchase); err != nil {
		if releaseErr := s.listings.Release(ctx, listingID); releaseErr != nil {
			log.Printf("orchestrator: releasing listing %s after create failure: %v", listingID, releaseErr)
		}
		return nil, fmt.Errorf("%w: create purchase: %v", utils.ErrDatabaseError, err)
	}

	sessionID, checkoutURL, err := s.gateway.CreateCheckoutSession(ctx, purchase)
	if err != nil {
		// no charge can exist yet; fail the purchase and free the listing
		s.failAfterGatewayError(ctx, purchase.ID, err)
		return nil, err
	}

	if _, err := transition(ctx, s.purchaseRepo, purchase.ID, func(p *db_models.Purchase) (bool, error) {
		if p.CheckoutSessionID == "" {
			p.CheckoutSessionID = sessionID
		}
		return true, nil
	}); err != nil {
		log.Printf("orchestrator: storing checkout session for purchase %s: %v", purchase.ID, err)
	}

	s.queue.Publish(eventFor(purchase))

	return &response_models.CreatePurchaseResponse{
		PurchaseID:         purchase.ID.String(),
		CheckoutURL:        checkoutURL,
		NeedsPaymentMethod: true,
	}, nil
}

func (s *PurchaseService) failAfterGatewayError(ctx context.Context, purchaseID uuid.UUID, cause error) {
	purchase, err := transition(ctx, s.purchaseRepo, purchaseID, func(p *db_models.Purchase) (bool, error) {
		if p.Status != db_models.PurchaseStatusPending {
			return false, nil
		}
		now := s.clock.Now().Unix()
		p.Status = db_models.PurchaseStatusFailed
		p.FailedAt = &now
		p.Metadata = mergeMetadata(p.Metadata, map[string]any{"gateway_error": cause.Error()})
		return true, nil
	})
	if err != nil {
		log.Printf("orchestrator: failing purchase %s after gateway error: %v", purchaseID, err)
		return
	}
	s.queue.Publish(eventFor(purchase))
}

func (s *PurchaseService) GetPurchase(ctx context.Context, purchaseID uuid.UUID) (*db_models.Purchase, error) {
	purchase, err := s.purchaseRepo.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if purchase == nil {
		return nil, utils.ErrPurchaseNotFound
	}
	return purchase, nil
}

func (s *PurchaseService) ListPurchasesForUser(ctx context.Context, userID uuid.UUID) ([]db_models.Purchase, error) {
	purchases, err := s.purchaseRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	return purchases, nil
}

// ApplyWebhookEvent is idempotent by external event id and tolerant of
// provider retries: replays and events for already-terminal purchases are
// acknowledged as no-ops, events for unknown purchases are logged and
// dropped, never fabricated into a record.
func (s *PurchaseService) ApplyWebhookEvent(ctx context.Context, event *gateway.Event) error {
	purchase, err := s.purchaseRepo.GetByOrderCode(ctx, event.OrderCode)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if purchase == nil {
		log.Printf("orchestrator: webhook for unknown order code %d dropped (event %s)", event.OrderCode, event.ExternalEventID)
		return nil
	}

	applied := false

	updated, err := transition(ctx, s.purchaseRepo, purchase.ID, func(p *db_models.Purchase) (bool, error) {
		applied = false
		if p.Status.IsTerminal() || p.Status != db_models.PurchaseStatusPending {
			return false, nil
		}

		now := s.clock.Now().Unix()
		switch event.Type {
		case gateway.EventPaymentCaptured:
			deadline := s.clock.Now().Add(s.verificationWindow).Unix()
			p.Status = db_models.PurchaseStatusHeld
			p.HeldAt = &now
			p.VerificationDeadline = &deadline
			if p.PaymentIntentID == "" {
				p.PaymentIntentID = event.PaymentLinkID
			}
		case gateway.EventPaymentFailed:
			p.Status = db_models.PurchaseStatusFailed
			p.FailedAt = &now
		default:
			return false, nil
		}
		applied = true
		return true, nil
	})
	if err != nil {
		return err
	}

	// Mark the event id only after the write committed: a failed transition
	// must leave the provider's redelivery able to apply. Replays that slip
	// past the mark are harmless, the status guard above makes reapplication
	// a no-op.
	firstTime, err := s.dedupe.MarkProcessed(ctx, event.ExternalEventID, purchase.ID.String())
	if err != nil {
		log.Printf("orchestrator: webhook dedupe for event %s: %v", event.ExternalEventID, err)
	} else if !firstTime && !applied {
		log.Printf("orchestrator: duplicate webhook event %s ignored", event.ExternalEventID)
	}

	if applied {
		if updated.Status == db_models.PurchaseStatusHeld {
			s.scheduler.Track(updated)
		}
		s.queue.Publish(eventFor(updated))
	}
	return nil
}

// ConfirmReceipt is the buyer's explicit "I received the item" action. The
// deadline is authoritative: confirmation on a HELD purchase past its window
// triggers the auto-refund even if the timer has not fired yet.
func (s *PurchaseService) ConfirmReceipt(ctx context.Context, purchaseID, requesterID uuid.UUID) (*db_models.Purchase, error) {
	var expired, verified bool

	purchase, err := transition(ctx, s.purchaseRepo, purchaseID, func(p *db_models.Purchase) (bool, error) {
		expired, verified = false, false
		if p.BuyerID != requesterID {
			return false, utils.ErrNotPurchaseBuyer
		}
		if p.Status != db_models.PurchaseStatusHeld {
			// terminal or not yet held: nothing to confirm, return the snapshot
			return false, nil
		}
		if p.VerificationDeadline != nil && s.clock.Now().Unix() > *p.VerificationDeadline {
			expired = true
			return false, nil
		}

		now := s.clock.Now().Unix()
		p.Status = db_models.PurchaseStatusVerified
		p.VerifiedAt = &now
		verified = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		return s.reconciler.ExpireHeld(ctx, purchaseID)
	}

	if verified {
		s.queue.Publish(eventFor(purchase))
	}
	return purchase, nil
}

func (s *PurchaseService) CancelPurchase(ctx context.Context, purchaseID, requesterID uuid.UUID, reason string) (*db_models.Purchase, error) {
	// a webhook may race this call; the reconciler owns that resolution
	return s.reconciler.Cancel(ctx, purchaseID, requesterID, reason)
}

func mergeMetadata(existing []byte, extra map[string]any) []byte {
	merged := map[string]any{}
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &merged)
	}
	for k, v := range extra {
		merged[k] = v
	}
	b, _ := json.Marshal(merged)
	return b
}
