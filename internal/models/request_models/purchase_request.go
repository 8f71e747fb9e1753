package request_models

type CreatePurchaseRequest struct {
	ListingID   string `json:"listing_id" binding:"required"`
	AmountMinor int64  `json:"amount" binding:"required"`
	Currency    string `json:"currency"`
}

type CancelPurchaseRequest struct {
	Reason string `json:"reason"`
}
