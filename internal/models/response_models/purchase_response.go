package response_models

import (
	"time"

	"trovi/internal/models/db_models"
)

type PurchaseResponse struct {
	ID                   string `json:"id"`
	ListingID            string `json:"listing_id"`
	BuyerID              string `json:"buyer_id"`
	SellerID             string `json:"seller_id"`
	AmountMinor          int64  `json:"amount"`
	Currency             string `json:"currency"`
	PaymentStatus        string `json:"payment_status"`
	CheckoutSessionID    string `json:"checkout_session_id,omitempty"`
	PaymentIntentID      string `json:"payment_intent_id,omitempty"`
	VerificationDeadline string `json:"verification_deadline,omitempty"`
	CancelReason         string `json:"cancel_reason,omitempty"`
	CreatedAt            string `json:"created_at"`
}

type CreatePurchaseResponse struct {
	PurchaseID         string `json:"purchase_id"`
	CheckoutURL        string `json:"checkout_url,omitempty"`
	NeedsPaymentMethod bool   `json:"needs_payment_method"`
}

func ToPurchaseResponse(p *db_models.Purchase) PurchaseResponse {
	resp := PurchaseResponse{
		ID:                p.ID.String(),
		ListingID:         p.ListingID.String(),
		BuyerID:           p.BuyerID.String(),
		SellerID:          p.SellerID.String(),
		AmountMinor:       p.AmountMinor,
		Currency:          p.Currency,
		PaymentStatus:     string(p.Status),
		CheckoutSessionID: p.CheckoutSessionID,
		PaymentIntentID:   p.PaymentIntentID,
		CancelReason:      p.CancelReason,
		CreatedAt:         time.Unix(p.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
	if p.VerificationDeadline != nil {
		resp.VerificationDeadline = time.Unix(*p.VerificationDeadline, 0).UTC().Format(time.RFC3339)
	}
	return resp
}
