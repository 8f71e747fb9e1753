package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PurchasePaymentStatus string

const (
	PurchaseStatusPending  PurchasePaymentStatus = "PENDING"
	PurchaseStatusHeld     PurchasePaymentStatus = "HELD"
	PurchaseStatusVerified PurchasePaymentStatus = "VERIFIED"
	PurchaseStatusFailed   PurchasePaymentStatus = "FAILED"
	PurchaseStatusRefunded PurchasePaymentStatus = "REFUNDED"
	PurchaseStatusCanceled PurchasePaymentStatus = "CANCELED"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s PurchasePaymentStatus) IsTerminal() bool {
	switch s {
	case PurchaseStatusVerified, PurchaseStatusFailed, PurchaseStatusRefunded, PurchaseStatusCanceled:
		return true
	}
	return false
}

type Purchase struct {
	BaseModel
	ListingID uuid.UUID `gorm:"index;not null"`
	BuyerID   uuid.UUID `gorm:"index;not null"`
	SellerID  uuid.UUID `gorm:"index;not null"`

	AmountMinor int64  // e.g., 4000 = $40.00
	Currency    string `gorm:"size:3;default:USD"`

	Status PurchasePaymentStatus `gorm:"index;default:PENDING"`

	// Gateway correlation. Set once, never overwritten.
	Provider          string `gorm:"index"`
	OrderCode         int64  `gorm:"uniqueIndex"` // provider order code, links webhooks back to us
	CheckoutSessionID string
	PaymentIntentID   string

	// Unix seconds. VerificationDeadline is set exactly once, at PENDING -> HELD.
	VerificationDeadline *int64 `gorm:"index"`
	HeldAt               *int64
	VerifiedAt           *int64
	RefundedAt           *int64
	CanceledAt           *int64
	FailedAt             *int64

	CancelReason string

	// Optimistic concurrency guard; every transition bumps it.
	Version int64 `gorm:"not null;default:1"`

	// Raw provider payloads, receipts, failure reasons.
	Metadata datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
}
