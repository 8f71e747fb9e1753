package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"trovi/internal/gateway"
	"trovi/internal/models/db_models"
	"trovi/pkg/utils"
)

func TestCancellationReconciler_Cancel(t *testing.T) {
	t.Parallel()

	buyer := uuid.New()
	seller := uuid.New()

	pending := func(f *fixture) *db_models.Purchase {
		p := &db_models.Purchase{
			BaseModel:   db_models.BaseModel{ID: uuid.New()},
			ListingID:   uuid.New(),
			BuyerID:     buyer,
			SellerID:    seller,
			AmountMinor: 4000,
			Currency:    "USD",
			Status:      db_models.PurchaseStatusPending,
			OrderCode:   777001,
			Version:     1,
		}
		_ = f.repo.CreatePurchase(context.Background(), p)
		return p
	}

	t.Run("cancel before capture voids the session", func(t *testing.T) {
		f := newFixture(nil)
		p := pending(f)

		got, err := f.rec.Cancel(context.Background(), p.ID, buyer, "changed my mind")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Status != db_models.PurchaseStatusCanceled {
			t.Fatalf("expected CANCELED, got %s", got.Status)
		}
		if got.CancelReason != "changed my mind" {
			t.Fatalf("expected reason recorded, got %q", got.CancelReason)
		}
		if f.gw.refundCount() != 1 {
			t.Fatalf("expected one void call, got %d", f.gw.refundCount())
		}
		events := drainEvents(f.queue)
		if len(events) != 1 || events[0].Status != db_models.PurchaseStatusCanceled {
			t.Fatalf("expected one CANCELED event, got %+v", events)
		}
	})

	t.Run("cancel after capture refunds", func(t *testing.T) {
		f := newFixture(nil)
		p := heldPurchase(f, buyer, seller, uuid.New())

		got, err := f.rec.Cancel(context.Background(), p.ID, buyer, "item never shipped")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Status != db_models.PurchaseStatusRefunded {
			t.Fatalf("expected REFUNDED, got %s", got.Status)
		}
		if got.RefundedAt == nil {
			t.Fatalf("expected RefundedAt set")
		}
		if f.gw.refundCount() != 1 {
			t.Fatalf("expected one refund call, got %d", f.gw.refundCount())
		}
	})

	t.Run("only the buyer may cancel", func(t *testing.T) {
		f := newFixture(nil)
		p := pending(f)

		_, err := f.rec.Cancel(context.Background(), p.ID, seller, "not mine")
		if !errors.Is(err, utils.ErrNotPurchaseBuyer) {
			t.Fatalf("expected ErrNotPurchaseBuyer, got %v", err)
		}
	})

	t.Run("cancel on terminal purchase is idempotent", func(t *testing.T) {
		f := newFixture(nil)
		p := pending(f)
		if _, err := f.rec.Cancel(context.Background(), p.ID, buyer, "first"); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		drainEvents(f.queue)

		got, err := f.rec.Cancel(context.Background(), p.ID, buyer, "second")
		if err != nil {
			t.Fatalf("repeat cancel must not error, got %v", err)
		}
		if got.Status != db_models.PurchaseStatusCanceled || got.CancelReason != "first" {
			t.Fatalf("terminal outcome must not change, got %s %q", got.Status, got.CancelReason)
		}
		if f.gw.refundCount() != 1 {
			t.Fatalf("no second gateway call expected, got %d", f.gw.refundCount())
		}
		if len(drainEvents(f.queue)) != 0 {
			t.Fatalf("no event expected for a no-op")
		}
	})

	t.Run("losing the race to a terminal write settles nothing", func(t *testing.T) {
		f := newFixture(nil)
		p := heldPurchase(f, buyer, seller, uuid.New())

		// the deadline expiry lands REFUNDED between this cancel's read and
		// its write; the re-decide must treat the purchase as already settled
		f.repo.conflictsLeft = 1
		f.repo.conflictMutate = func(stored *db_models.Purchase) {
			now := f.clk.Now().Unix()
			stored.Status = db_models.PurchaseStatusRefunded
			stored.RefundedAt = &now
			stored.CancelReason = ReasonVerificationWindowExpired
		}

		got, err := f.rec.Cancel(context.Background(), p.ID, buyer, "changed my mind")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Status != db_models.PurchaseStatusRefunded {
			t.Fatalf("expected the concurrent REFUNDED to stand, got %s", got.Status)
		}
		if got.CancelReason != ReasonVerificationWindowExpired {
			t.Fatalf("the winner's reason must stand, got %q", got.CancelReason)
		}
		if f.gw.refundCount() != 0 {
			t.Fatalf("no gateway call for a lost race, got %d", f.gw.refundCount())
		}
		if f.jobs.count() != 0 {
			t.Fatalf("no compensation job for a lost race, got %d", f.jobs.count())
		}
		if len(drainEvents(f.queue)) != 0 {
			t.Fatalf("no event for a no-op cancel")
		}
	})

	t.Run("gateway failure keeps the refund state and schedules compensation", func(t *testing.T) {
		f := newFixture(nil)
		p := heldPurchase(f, buyer, seller, uuid.New())
		f.gw.refundErr = utils.ErrGatewayUnavailable

		got, err := f.rec.Cancel(context.Background(), p.ID, buyer, "item never shipped")
		if err != nil {
			t.Fatalf("gateway failure must not fail the cancel, got %v", err)
		}
		if got.Status != db_models.PurchaseStatusRefunded {
			t.Fatalf("expected REFUNDED despite gateway failure, got %s", got.Status)
		}
		if f.jobs.count() != 1 {
			t.Fatalf("expected one compensation job, got %d", f.jobs.count())
		}
		jobs, _ := f.jobs.ListDue(context.Background(), f.clk.Now().Unix())
		if len(jobs) != 1 || jobs[0].Kind != db_models.RefundJobRefund || jobs[0].OrderCode != 777001 {
			t.Fatalf("unexpected job %+v", jobs)
		}
		events := drainEvents(f.queue)
		if len(events) != 1 || events[0].Status != db_models.PurchaseStatusRefunded {
			t.Fatalf("event must still be published, got %+v", events)
		}
	})
}

func TestCancellationReconciler_ExpireHeld(t *testing.T) {
	t.Parallel()

	buyer := uuid.New()
	seller := uuid.New()

	t.Run("expires a held purchase", func(t *testing.T) {
		f := newFixture(nil)
		p := heldPurchase(f, buyer, seller, uuid.New())

		got, err := f.rec.ExpireHeld(context.Background(), p.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Status != db_models.PurchaseStatusRefunded {
			t.Fatalf("expected REFUNDED, got %s", got.Status)
		}
		if got.CancelReason != ReasonVerificationWindowExpired {
			t.Fatalf("expected expiry reason, got %q", got.CancelReason)
		}
		if f.gw.refundCount() != 1 {
			t.Fatalf("expected one refund call")
		}
	})

	t.Run("no-op when purchase is not held", func(t *testing.T) {
		f := newFixture(nil)
		p := heldPurchase(f, buyer, seller, uuid.New())
		if _, err := f.svc.ConfirmReceipt(context.Background(), p.ID, buyer); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		drainEvents(f.queue)

		got, err := f.rec.ExpireHeld(context.Background(), p.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Status != db_models.PurchaseStatusVerified {
			t.Fatalf("verified purchase must not be refunded, got %s", got.Status)
		}
		if f.gw.refundCount() != 0 {
			t.Fatalf("no refund call expected")
		}
	})
}

// The cancel/webhook race: whichever write wins the version check decides the
// outcome, and the loser reconciles against the new state instead of
// overwriting it.
func TestCancellationReconciler_CancelWebhookRace(t *testing.T) {
	t.Parallel()

	buyer := uuid.New()
	seller := uuid.New()

	captured := &gateway.Event{
		Type:            gateway.EventPaymentCaptured,
		OrderCode:       777001,
		PaymentLinkID:   "pl_123",
		ExternalEventID: "evt_race",
	}

	newPending := func(f *fixture) *db_models.Purchase {
		p := &db_models.Purchase{
			BaseModel:   db_models.BaseModel{ID: uuid.New()},
			ListingID:   uuid.New(),
			BuyerID:     buyer,
			SellerID:    seller,
			AmountMinor: 4000,
			Currency:    "USD",
			Status:      db_models.PurchaseStatusPending,
			OrderCode:   777001,
			Version:     1,
		}
		_ = f.repo.CreatePurchase(context.Background(), p)
		return p
	}

	t.Run("capture lands first, late cancel refunds", func(t *testing.T) {
		f := newFixture(nil)
		p := newPending(f)

		if err := f.svc.ApplyWebhookEvent(context.Background(), captured); err != nil {
			t.Fatalf("webhook: %v", err)
		}
		got, err := f.rec.Cancel(context.Background(), p.ID, buyer, "changed my mind")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if got.Status != db_models.PurchaseStatusRefunded {
			t.Fatalf("expected REFUNDED when funds were already captured, got %s", got.Status)
		}
	})

	t.Run("cancel lands first, late capture is dropped", func(t *testing.T) {
		f := newFixture(nil)
		p := newPending(f)

		if _, err := f.rec.Cancel(context.Background(), p.ID, buyer, "changed my mind"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if err := f.svc.ApplyWebhookEvent(context.Background(), captured); err != nil {
			t.Fatalf("webhook: %v", err)
		}
		if f.repo.storedStatus(p.ID) != db_models.PurchaseStatusCanceled {
			t.Fatalf("expected CANCELED to stand, got %s", f.repo.storedStatus(p.ID))
		}
	})

	t.Run("concurrent cancel and capture converge on one terminal state", func(t *testing.T) {
		f := newFixture(nil)
		p := newPending(f)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.rec.Cancel(context.Background(), p.ID, buyer, "changed my mind")
		}()
		go func() {
			defer wg.Done()
			_ = f.svc.ApplyWebhookEvent(context.Background(), captured)
		}()
		wg.Wait()

		switch got := f.repo.storedStatus(p.ID); got {
		case db_models.PurchaseStatusCanceled, db_models.PurchaseStatusRefunded:
			// either interleaving is legal, both leave the buyer whole
		default:
			t.Fatalf("expected a terminal resolution, got %s", got)
		}
	})
}
