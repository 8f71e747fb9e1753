package listings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type Availability string

const (
	AvailabilityAvailable Availability = "AVAILABLE"
	AvailabilityReserved  Availability = "RESERVED"
	AvailabilitySold      Availability = "SOLD"
)

type Listing struct {
	ID           uuid.UUID    `json:"id"`
	SellerID     uuid.UUID    `json:"seller_id"`
	PriceMinor   int64        `json:"price_minor"`
	Currency     string       `json:"currency"`
	Availability Availability `json:"availability"`
}

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrNotReservable   = errors.New("listing cannot be reserved")
)

// Client is the listing catalog, which lives in a separate service. The
// orchestrator only needs a snapshot read plus the availability flips.
type ClientInterface interface {
	Get(ctx context.Context, listingID uuid.UUID) (*Listing, error)
	// Reserve atomically flips AVAILABLE -> RESERVED; ErrNotReservable when
	// someone else got there first.
	Reserve(ctx context.Context, listingID uuid.UUID) error
	Release(ctx context.Context, listingID uuid.UUID) error
	MarkSold(ctx context.Context, listingID uuid.UUID) error
}

func NewHTTPClient(baseURL string) ClientInterface {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func (c *HTTPClient) Get(ctx context.Context, listingID uuid.UUID) (*Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/internal/listings/%s", c.baseURL, listingID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrListingNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing service: unexpected status %d", resp.StatusCode)
	}

	var listing Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("listing service: decode: %w", err)
	}
	return &listing, nil
}

func (c *HTTPClient) Reserve(ctx context.Context, listingID uuid.UUID) error {
	return c.setAvailability(ctx, listingID, AvailabilityReserved)
}

func (c *HTTPClient) Release(ctx context.Context, listingID uuid.UUID) error {
	return c.setAvailability(ctx, listingID, AvailabilityAvailable)
}

func (c *HTTPClient) MarkSold(ctx context.Context, listingID uuid.UUID) error {
	return c.setAvailability(ctx, listingID, AvailabilitySold)
}

func (c *HTTPClient) setAvailability(ctx context.Context, listingID uuid.UUID, availability Availability) error {
	payload, _ := json.Marshal(map[string]string{"availability": string(availability)})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/internal/listings/%s/availability", c.baseURL, listingID),
		bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("listing service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrListingNotFound
	case http.StatusConflict:
		return ErrNotReservable
	default:
		return fmt.Errorf("listing service: unexpected status %d", resp.StatusCode)
	}
}
