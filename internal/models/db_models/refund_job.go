package db_models

import "github.com/google/uuid"

type RefundJobKind string

const (
	RefundJobVoid   RefundJobKind = "void"
	RefundJobRefund RefundJobKind = "refund"
)

type RefundJobStatus string

const (
	RefundJobPending   RefundJobStatus = "pending"
	RefundJobDone      RefundJobStatus = "done"
	RefundJobExhausted RefundJobStatus = "exhausted"
)

// RefundJob is the compensation queue for gateway void/refund calls that
// failed after the purchase already reached its terminal state. The scheduler
// worker retries these with backoff; user-visible state never waits on them.
type RefundJob struct {
	BaseModel
	PurchaseID uuid.UUID     `gorm:"index;not null"`
	OrderCode  int64         `gorm:"index"`
	Kind       RefundJobKind `gorm:"index"`
	Reason     string

	Attempts  int
	NextRunAt int64           `gorm:"index"` // unix seconds
	Status    RefundJobStatus `gorm:"index;default:pending"`
	LastError string
}
