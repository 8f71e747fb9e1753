package listings

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryClient is an in-process listing catalog used in tests and local dev.
type MemoryClient struct {
	mu       sync.Mutex
	listings map[uuid.UUID]*Listing
}

func NewMemoryClient(seed ...Listing) *MemoryClient {
	c := &MemoryClient{listings: make(map[uuid.UUID]*Listing)}
	for i := range seed {
		l := seed[i]
		c.listings[l.ID] = &l
	}
	return c
}

func (c *MemoryClient) Get(ctx context.Context, listingID uuid.UUID) (*Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.listings[listingID]
	if !ok {
		return nil, ErrListingNotFound
	}
	snapshot := *l
	return &snapshot, nil
}

func (c *MemoryClient) Reserve(ctx context.Context, listingID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.listings[listingID]
	if !ok {
		return ErrListingNotFound
	}
	if l.Availability != AvailabilityAvailable {
		return ErrNotReservable
	}
	l.Availability = AvailabilityReserved
	return nil
}

func (c *MemoryClient) Release(ctx context.Context, listingID uuid.UUID) error {
	return c.set(listingID, AvailabilityAvailable)
}

func (c *MemoryClient) MarkSold(ctx context.Context, listingID uuid.UUID) error {
	return c.set(listingID, AvailabilitySold)
}

func (c *MemoryClient) set(listingID uuid.UUID, availability Availability) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.listings[listingID]
	if !ok {
		return ErrListingNotFound
	}
	l.Availability = availability
	return nil
}

// Availability reports the current state of a listing, for assertions.
func (c *MemoryClient) AvailabilityOf(listingID uuid.UUID) Availability {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.listings[listingID]; ok {
		return l.Availability
	}
	return ""
}
