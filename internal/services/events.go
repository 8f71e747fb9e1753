package services

import (
	"log"
	"time"

	"github.com/google/uuid"

	"trovi/internal/models/db_models"
)

// StatusChangedEvent is emitted once per successful purchase transition.
// Consumers must treat duplicates as no-ops keyed by purchase id + status.
type StatusChangedEvent struct {
	PurchaseID uuid.UUID                       `json:"purchase_id"`
	ListingID  uuid.UUID                       `json:"listing_id"`
	BuyerID    uuid.UUID                       `json:"buyer_id"`
	SellerID   uuid.UUID                       `json:"seller_id"`
	Status     db_models.PurchasePaymentStatus `json:"status"`
}

// EventQueue is the in-process topic between the transition sites and the
// notification dispatcher. Delivery within the process is at-least-once in
// spirit: a full queue drops with a log line rather than blocking a
// transition, and consumers reconcile against the store anyway.
type EventQueue struct {
	ch chan StatusChangedEvent
}

func NewEventQueue(size int) *EventQueue {
	if size <= 0 {
		size = 256
	}
	return &EventQueue{ch: make(chan StatusChangedEvent, size)}
}

const terminalPublishTimeout = 2 * time.Second

func (q *EventQueue) Publish(event StatusChangedEvent) {
	select {
	case q.ch <- event:
		return
	default:
	}

	if !event.Status.IsTerminal() {
		log.Printf("event queue full, dropping status change for purchase %s", event.PurchaseID)
		return
	}

	// terminal events carry the listing release/sold flip; wait out a burst
	// rather than strand the listing in RESERVED
	select {
	case q.ch <- event:
	case <-time.After(terminalPublishTimeout):
		log.Printf("event queue full, dropping terminal status change for purchase %s", event.PurchaseID)
	}
}

func (q *EventQueue) Events() <-chan StatusChangedEvent {
	return q.ch
}

func eventFor(p *db_models.Purchase) StatusChangedEvent {
	return StatusChangedEvent{
		PurchaseID: p.ID,
		ListingID:  p.ListingID,
		BuyerID:    p.BuyerID,
		SellerID:   p.SellerID,
		Status:     p.Status,
	}
}
