package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trovi/internal/models/db_models"
)

// ErrVersionMismatch is returned when a compare-and-swap update loses the race.
var ErrVersionMismatch = errors.New("purchase version mismatch")

type PurchaseRepositoryInterface interface {
	CreatePurchase(ctx context.Context, purchase *db_models.Purchase) error
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.Purchase, error)
	GetByOrderCode(ctx context.Context, orderCode int64) (*db_models.Purchase, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]db_models.Purchase, error)
	ListHeld(ctx context.Context) ([]db_models.Purchase, error)
	// UpdateWithVersion applies purchase's current field values only if the
	// stored row still carries expectedVersion; the stored version is bumped
	// to expectedVersion+1. Returns ErrVersionMismatch when the row moved.
	UpdateWithVersion(ctx context.Context, purchase *db_models.Purchase, expectedVersion int64) error
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepositoryInterface {
	return &PurchaseRepository{db: db}
}

type PurchaseRepository struct {
	db *gorm.DB
}

func (r *PurchaseRepository) CreatePurchase(ctx context.Context, purchase *db_models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *PurchaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Purchase, error) {
	var purchase db_models.Purchase
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *PurchaseRepository) GetByOrderCode(ctx context.Context, orderCode int64) (*db_models.Purchase, error) {
	var purchase db_models.Purchase
	err := r.db.WithContext(ctx).Where("order_code = ?", orderCode).First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *PurchaseRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]db_models.Purchase, error) {
	var purchases []db_models.Purchase
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *PurchaseRepository) ListHeld(ctx context.Context) ([]db_models.Purchase, error) {
	var purchases []db_models.Purchase
	err := r.db.WithContext(ctx).
		Where("status = ?", db_models.PurchaseStatusHeld).
		Find(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

func (r *PurchaseRepository) UpdateWithVersion(ctx context.Context, purchase *db_models.Purchase, expectedVersion int64) error {
	next := expectedVersion + 1

	res := r.db.WithContext(ctx).
		Model(&db_models.Purchase{}).
		Where("id = ? AND version = ?", purchase.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":                purchase.Status,
			"checkout_session_id":   purchase.CheckoutSessionID,
			"payment_intent_id":     purchase.PaymentIntentID,
			"verification_deadline": purchase.VerificationDeadline,
			"held_at":               purchase.HeldAt,
			"verified_at":           purchase.VerifiedAt,
			"refunded_at":           purchase.RefundedAt,
			"canceled_at":           purchase.CanceledAt,
			"failed_at":             purchase.FailedAt,
			"cancel_reason":         purchase.CancelReason,
			"metadata":              purchase.Metadata,
			"version":               next,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionMismatch
	}

	purchase.Version = next
	return nil
}
