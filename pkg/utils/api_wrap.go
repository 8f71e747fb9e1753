package utils

import (
	"errors"
	"github.com/gin-gonic/gin"
	"log"
	"net/http"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func traceID(c *gin.Context) string {
	if v, ok := c.Get("trace_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  "success",
		Code:    http.StatusOK,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondCreated(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:  "success",
		Code:    http.StatusCreated,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
	})
}

// HandleServiceError maps the service error taxonomy onto HTTP codes.
// Transient gateway failures deliberately surface as a generic retryable 502.
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPurchaseNotFound):
		RespondError(c, http.StatusNotFound, "Purchase not found")
	case errors.Is(err, ErrListingUnavailable):
		RespondError(c, http.StatusConflict, "Listing is no longer available")
	case errors.Is(err, ErrInvalidAmount):
		RespondError(c, http.StatusBadRequest, "Invalid amount for this listing")
	case errors.Is(err, ErrBuyerIsSeller):
		RespondError(c, http.StatusBadRequest, "You cannot buy your own listing")
	case errors.Is(err, ErrNotPurchaseBuyer):
		RespondError(c, http.StatusForbidden, "Only the buyer may perform this action")
	case errors.Is(err, ErrConcurrentModification):
		RespondError(c, http.StatusConflict, "Purchase is being updated, try again")
	case errors.Is(err, ErrInvalidWebhookSignature):
		RespondError(c, http.StatusBadRequest, "Invalid webhook signature")
	case errors.Is(err, ErrGatewayUnavailable):
		RespondError(c, http.StatusBadGateway, "Payment provider unavailable, try again")
	case errors.Is(err, ErrDatabaseError):
		log.Printf("Database error: %v", err)
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	default:
		log.Printf("Unknown error: %v", err)
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
