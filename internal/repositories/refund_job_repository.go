package repositories

import (
	"context"

	"gorm.io/gorm"

	"trovi/internal/models/db_models"
)

type RefundJobRepositoryInterface interface {
	Enqueue(ctx context.Context, job *db_models.RefundJob) error
	ListDue(ctx context.Context, now int64) ([]db_models.RefundJob, error)
	Update(ctx context.Context, job *db_models.RefundJob) error
}

func NewRefundJobRepository(db *gorm.DB) RefundJobRepositoryInterface {
	return &RefundJobRepository{db: db}
}

type RefundJobRepository struct {
	db *gorm.DB
}

func (r *RefundJobRepository) Enqueue(ctx context.Context, job *db_models.RefundJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *RefundJobRepository) ListDue(ctx context.Context, now int64) ([]db_models.RefundJob, error) {
	var jobs []db_models.RefundJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", db_models.RefundJobPending, now).
		Order("next_run_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *RefundJobRepository) Update(ctx context.Context, job *db_models.RefundJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}
