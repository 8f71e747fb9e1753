package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"trovi/internal/gateway"
	"trovi/internal/models/db_models"
	"trovi/internal/repositories"
)

var errFakeNotFound = errors.New("fake: not found")

// movableClock lets tests advance time between calls.
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMovableClock(t time.Time) *movableClock {
	return &movableClock{now: t.UTC()}
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakePurchaseRepo is an in-memory purchase store with the same
// compare-and-swap semantics as the postgres implementation.
type fakePurchaseRepo struct {
	mu        sync.Mutex
	purchases map[uuid.UUID]*db_models.Purchase

	// conflictsLeft forces that many UpdateWithVersion calls to lose the race
	// by bumping the stored version right before the CAS check.
	conflictsLeft int
	// conflictMutate, when set, is applied to the stored row on each injected
	// conflict, standing in for whatever the concurrent writer committed.
	conflictMutate func(p *db_models.Purchase)
}

func newFakePurchaseRepo(seed ...*db_models.Purchase) *fakePurchaseRepo {
	repo := &fakePurchaseRepo{purchases: make(map[uuid.UUID]*db_models.Purchase)}
	for _, p := range seed {
		cp := *p
		repo.purchases[p.ID] = &cp
	}
	return repo
}

func (r *fakePurchaseRepo) CreatePurchase(ctx context.Context, purchase *db_models.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	if purchase.Version == 0 {
		purchase.Version = 1
	}
	purchase.CreatedAt = time.Now().Unix()
	cp := *purchase
	r.purchases[purchase.ID] = &cp
	return nil
}

func (r *fakePurchaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.purchases[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePurchaseRepo) GetByOrderCode(ctx context.Context, orderCode int64) (*db_models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.purchases {
		if p.OrderCode == orderCode {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePurchaseRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]db_models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []db_models.Purchase
	for _, p := range r.purchases {
		if p.BuyerID == userID || p.SellerID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePurchaseRepo) ListHeld(ctx context.Context) ([]db_models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []db_models.Purchase
	for _, p := range r.purchases {
		if p.Status == db_models.PurchaseStatusHeld {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePurchaseRepo) UpdateWithVersion(ctx context.Context, purchase *db_models.Purchase, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.purchases[purchase.ID]
	if !ok {
		return errFakeNotFound
	}

	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		stored.Version++
		if r.conflictMutate != nil {
			r.conflictMutate(stored)
		}
	}

	if stored.Version != expectedVersion {
		return repositories.ErrVersionMismatch
	}

	cp := *purchase
	cp.Version = expectedVersion + 1
	r.purchases[purchase.ID] = &cp
	purchase.Version = cp.Version
	return nil
}

func (r *fakePurchaseRepo) storedStatus(id uuid.UUID) db_models.PurchasePaymentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.purchases[id]; ok {
		return p.Status
	}
	return ""
}

type fakeRefundJobRepo struct {
	mu   sync.Mutex
	jobs []*db_models.RefundJob
}

func (r *fakeRefundJobRepo) Enqueue(ctx context.Context, job *db_models.RefundJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	cp := *job
	r.jobs = append(r.jobs, &cp)
	return nil
}

func (r *fakeRefundJobRepo) ListDue(ctx context.Context, now int64) ([]db_models.RefundJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db_models.RefundJob
	for _, j := range r.jobs {
		if j.Status == db_models.RefundJobPending && j.NextRunAt <= now {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *fakeRefundJobRepo) Update(ctx context.Context, job *db_models.RefundJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, j := range r.jobs {
		if j.ID == job.ID {
			cp := *job
			r.jobs[i] = &cp
			return nil
		}
	}
	return errFakeNotFound
}

func (r *fakeRefundJobRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type fakeDedupeRepo struct {
	mu   sync.Mutex
	seen map[string]string
}

func newFakeDedupeRepo() *fakeDedupeRepo {
	return &fakeDedupeRepo{seen: make(map[string]string)}
}

func (r *fakeDedupeRepo) MarkProcessed(ctx context.Context, externalEventID string, purchaseID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[externalEventID]; ok {
		return false, nil
	}
	r.seen[externalEventID] = purchaseID
	return true, nil
}

type fakeGateway struct {
	mu sync.Mutex

	sessionID   string
	checkoutURL string
	createErr   error
	refundErr   error

	createCalls []int64
	refundCalls []int64
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, purchase *db_models.Purchase) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls = append(g.createCalls, purchase.OrderCode)
	if g.createErr != nil {
		return "", "", g.createErr
	}
	if g.sessionID == "" {
		g.sessionID = "cs_test"
	}
	if g.checkoutURL == "" {
		g.checkoutURL = "https://pay.example/cs_test"
	}
	return g.sessionID, g.checkoutURL, nil
}

func (g *fakeGateway) VoidOrRefund(ctx context.Context, orderCode int64, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, orderCode)
	return g.refundErr
}

func (g *fakeGateway) NormalizeWebhook(raw []byte) (*gateway.Event, error) {
	return nil, nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refundCalls)
}

type fakeScheduler struct {
	mu      sync.Mutex
	tracked []uuid.UUID
}

func (s *fakeScheduler) Track(purchase *db_models.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = append(s.tracked, purchase.ID)
}

func (s *fakeScheduler) Start(ctx context.Context) error { return nil }
func (s *fakeScheduler) Stop()                           {}

func (s *fakeScheduler) trackedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracked)
}

func drainEvents(q *EventQueue) []StatusChangedEvent {
	var out []StatusChangedEvent
	for {
		select {
		case e := <-q.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}
