package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"trovi/internal/models/db_models"
	"trovi/internal/repositories"
	"trovi/pkg/utils"
)

const maxTransitionRetries = 3

// transition re-reads the purchase, lets decide mutate it, and applies the
// result with a compare-and-swap on the version read at decision time. On a
// version conflict the decision is re-made against the fresh row, a bounded
// number of times. decide returns false to signal "no write needed"; the
// current snapshot is returned in that case.
//
// All status writes in the system go through here; nothing else is allowed
// to touch Purchase.Status.
func transition(ctx context.Context, repo repositories.PurchaseRepositoryInterface,
	purchaseID uuid.UUID, decide func(*db_models.Purchase) (bool, error)) (*db_models.Purchase, error) {

	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		purchase, err := repo.GetByID(ctx, purchaseID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if purchase == nil {
			return nil, utils.ErrPurchaseNotFound
		}

		readVersion := purchase.Version

		changed, err := decide(purchase)
		if err != nil {
			return nil, err
		}
		if !changed {
			return purchase, nil
		}

		err = repo.UpdateWithVersion(ctx, purchase, readVersion)
		if err == nil {
			return purchase, nil
		}
		if !errors.Is(err, repositories.ErrVersionMismatch) {
			return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		// lost the race, re-read and decide again
	}

	return nil, utils.ErrConcurrentModification
}
