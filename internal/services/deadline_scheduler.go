package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"trovi/internal/gateway"
	"trovi/internal/models/db_models"
	"trovi/internal/repositories"
	"trovi/pkg/clock"
)

// DeadlineScheduler arms a one-shot timer for every HELD purchase and forces
// the auto-refund transition when the verification window elapses without a
// buyer action. It also drives the refund compensation queue.
type DeadlineSchedulerInterface interface {
	Track(purchase *db_models.Purchase)
	Start(ctx context.Context) error
	Stop()
}

type SchedulerConfig struct {
	RefundRetryBase time.Duration
	RefundRetryCap  time.Duration
	RefundMaxTries  int
	// PollInterval for the refund job worker.
	PollInterval time.Duration
}

type DeadlineScheduler struct {
	purchaseRepo repositories.PurchaseRepositoryInterface
	refundJobs   repositories.RefundJobRepositoryInterface
	reconciler   CancellationReconcilerInterface
	gateway      gateway.PaymentGatewayInterface
	clock        clock.Clock
	cfg          SchedulerConfig
	logger       *log.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDeadlineScheduler(
	purchaseRepo repositories.PurchaseRepositoryInterface,
	refundJobs repositories.RefundJobRepositoryInterface,
	reconciler CancellationReconcilerInterface,
	gw gateway.PaymentGatewayInterface,
	clk clock.Clock,
	cfg SchedulerConfig,
	logger *log.Logger,
) *DeadlineScheduler {
	if cfg.RefundRetryBase <= 0 {
		cfg.RefundRetryBase = 30 * time.Second
	}
	if cfg.RefundRetryCap <= 0 {
		cfg.RefundRetryCap = time.Hour
	}
	if cfg.RefundMaxTries <= 0 {
		cfg.RefundMaxTries = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	return &DeadlineScheduler{
		purchaseRepo: purchaseRepo,
		refundJobs:   refundJobs,
		reconciler:   reconciler,
		gateway:      gw,
		clock:        clk,
		cfg:          cfg,
		logger:       logger,
		timers:       make(map[uuid.UUID]*time.Timer),
	}
}

// Start rescans the store for HELD purchases so timers survive restarts:
// future deadlines are re-armed, past-due ones fire immediately. It then
// launches the refund compensation worker.
func (s *DeadlineScheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	held, err := s.purchaseRepo.ListHeld(ctx)
	if err != nil {
		return err
	}
	for i := range held {
		s.Track(&held[i])
	}
	s.logger.Printf("scheduler: re-armed %d held purchase deadline(s)", len(held))

	s.wg.Add(1)
	go s.runRefundWorker(ctx)
	return nil
}

func (s *DeadlineScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *DeadlineScheduler) Track(purchase *db_models.Purchase) {
	if purchase.Status != db_models.PurchaseStatusHeld || purchase.VerificationDeadline == nil {
		return
	}

	delay := time.Unix(*purchase.VerificationDeadline, 0).Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	id := purchase.ID

	s.mu.Lock()
	if existing, ok := s.timers[id]; ok {
		existing.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.fire(id)
	})
	s.mu.Unlock()
}

func (s *DeadlineScheduler) fire(purchaseID uuid.UUID) {
	s.mu.Lock()
	delete(s.timers, purchaseID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ExpireHeld re-reads: a purchase that confirmed or canceled in the
	// meantime is left alone.
	purchase, err := s.reconciler.ExpireHeld(ctx, purchaseID)
	if err != nil {
		s.logger.Printf("scheduler: expiry for purchase %s failed: %v", purchaseID, err)
		return
	}
	if purchase.Status == db_models.PurchaseStatusRefunded && purchase.CancelReason == ReasonVerificationWindowExpired {
		s.logger.Printf("scheduler: purchase %s auto-refunded, verification window expired", purchaseID)
	}
}

func (s *DeadlineScheduler) runRefundWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processDueRefunds(ctx)
		}
	}
}

func (s *DeadlineScheduler) processDueRefunds(ctx context.Context) {
	jobs, err := s.refundJobs.ListDue(ctx, s.clock.Now().Unix())
	if err != nil {
		s.logger.Printf("scheduler: listing due refund jobs failed: %v", err)
		return
	}

	for i := range jobs {
		job := &jobs[i]
		err := s.gateway.VoidOrRefund(ctx, job.OrderCode, job.Reason)
		job.Attempts++

		if err == nil {
			job.Status = db_models.RefundJobDone
			job.LastError = ""
		} else if job.Attempts >= s.cfg.RefundMaxTries {
			job.Status = db_models.RefundJobExhausted
			job.LastError = err.Error()
			s.logger.Printf("scheduler: refund job %s for purchase %s exhausted after %d attempts: %v",
				job.ID, job.PurchaseID, job.Attempts, err)
		} else {
			backoff := s.cfg.RefundRetryBase << (job.Attempts - 1)
			if backoff > s.cfg.RefundRetryCap {
				backoff = s.cfg.RefundRetryCap
			}
			job.NextRunAt = s.clock.Now().Add(backoff).Unix()
			job.LastError = err.Error()
		}

		if updateErr := s.refundJobs.Update(ctx, job); updateErr != nil {
			s.logger.Printf("scheduler: updating refund job %s failed: %v", job.ID, updateErr)
		}
	}
}
