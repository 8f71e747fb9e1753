package services

import (
	"context"
	"log"

	"github.com/google/uuid"

	"trovi/internal/gateway"
	"trovi/internal/models/db_models"
	"trovi/internal/repositories"
	"trovi/pkg/clock"
	"trovi/pkg/utils"
)

const ReasonVerificationWindowExpired = "VerificationWindowExpired"

// CancellationReconciler resolves the race between a buyer-initiated cancel
// and the provider webhook for the same purchase. Both paths converge here so
// the buyer is always made whole: a purchase found HELD at decision time is
// refunded, never left captured.
type CancellationReconcilerInterface interface {
	Cancel(ctx context.Context, purchaseID, requesterID uuid.UUID, reason string) (*db_models.Purchase, error)
	// ExpireHeld is the deadline scheduler's entry: HELD past its
	// verification deadline becomes REFUNDED.
	ExpireHeld(ctx context.Context, purchaseID uuid.UUID) (*db_models.Purchase, error)
}

type CancellationReconciler struct {
	purchaseRepo repositories.PurchaseRepositoryInterface
	refundJobs   repositories.RefundJobRepositoryInterface
	gateway      gateway.PaymentGatewayInterface
	queue        *EventQueue
	clock        clock.Clock
}

func NewCancellationReconciler(
	purchaseRepo repositories.PurchaseRepositoryInterface,
	refundJobs repositories.RefundJobRepositoryInterface,
	gw gateway.PaymentGatewayInterface,
	queue *EventQueue,
	clk clock.Clock,
) CancellationReconcilerInterface {
	return &CancellationReconciler{
		purchaseRepo: purchaseRepo,
		refundJobs:   refundJobs,
		gateway:      gw,
		queue:        queue,
		clock:        clk,
	}
}

func (r *CancellationReconciler) Cancel(ctx context.Context, purchaseID, requesterID uuid.UUID, reason string) (*db_models.Purchase, error) {
	var kind db_models.RefundJobKind

	purchase, err := transition(ctx, r.purchaseRepo, purchaseID, func(p *db_models.Purchase) (bool, error) {
		kind = ""
		if p.BuyerID != requesterID {
			return false, utils.ErrNotPurchaseBuyer
		}
		if p.Status.IsTerminal() {
			// already resolved, cancel is a no-op, return the outcome
			return false, nil
		}

		now := r.clock.Now().Unix()
		switch p.Status {
		case db_models.PurchaseStatusPending:
			p.Status = db_models.PurchaseStatusCanceled
			p.CanceledAt = &now
			kind = db_models.RefundJobVoid
		case db_models.PurchaseStatusHeld:
			// funds captured: favor making the buyer whole over the reservation
			p.Status = db_models.PurchaseStatusRefunded
			p.RefundedAt = &now
			kind = db_models.RefundJobRefund
		}
		p.CancelReason = reason
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if kind != "" {
		r.settle(ctx, purchase, kind, reason)
	}
	return purchase, nil
}

func (r *CancellationReconciler) ExpireHeld(ctx context.Context, purchaseID uuid.UUID) (*db_models.Purchase, error) {
	var expired bool

	purchase, err := transition(ctx, r.purchaseRepo, purchaseID, func(p *db_models.Purchase) (bool, error) {
		if p.Status != db_models.PurchaseStatusHeld {
			return false, nil
		}

		now := r.clock.Now().Unix()
		p.Status = db_models.PurchaseStatusRefunded
		p.RefundedAt = &now
		p.CancelReason = ReasonVerificationWindowExpired
		expired = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		r.settle(ctx, purchase, db_models.RefundJobRefund, ReasonVerificationWindowExpired)
	}
	return purchase, nil
}

// settle performs the external side effects after the terminal state is
// durably recorded. The gateway call is optimistic: on failure the state
// stands and a compensation job retries the refund asynchronously, so the
// user-visible outcome never blocks on a flaky downstream.
func (r *CancellationReconciler) settle(ctx context.Context, purchase *db_models.Purchase, kind db_models.RefundJobKind, reason string) {
	if err := r.gateway.VoidOrRefund(ctx, purchase.OrderCode, reason); err != nil {
		log.Printf("reconciler: %s for purchase %s failed, scheduling compensation: %v", kind, purchase.ID, err)
		job := &db_models.RefundJob{
			PurchaseID: purchase.ID,
			OrderCode:  purchase.OrderCode,
			Kind:       kind,
			Reason:     reason,
			NextRunAt:  r.clock.Now().Unix(),
			Status:     db_models.RefundJobPending,
			LastError:  err.Error(),
		}
		if enqueueErr := r.refundJobs.Enqueue(ctx, job); enqueueErr != nil {
			log.Printf("reconciler: failed to enqueue refund job for purchase %s: %v", purchase.ID, enqueueErr)
		}
	}

	r.queue.Publish(eventFor(purchase))
}
