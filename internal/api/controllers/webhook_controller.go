package controllers

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"trovi/internal/gateway"
	"trovi/internal/services"
	"trovi/pkg/utils"
)

type WebhookController struct {
	gateway   gateway.PaymentGatewayInterface
	processor *services.WebhookProcessor
}

func NewWebhookController(gw gateway.PaymentGatewayInterface, processor *services.WebhookProcessor) *WebhookController {
	return &WebhookController{
		gateway:   gw,
		processor: processor,
	}
}

// HandlePaymentWebhook verifies the provider signature, queues the normalized
// event, and acks 200 immediately; application is asynchronous. Unverifiable
// payloads never reach the queue.
func (w *WebhookController) HandlePaymentWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	event, err := w.gateway.NormalizeWebhook(rawBody)
	if err != nil {
		// security relevant: an unverifiable payload was presented
		log.Printf("webhook: rejected payload: %v", err)
		utils.HandleServiceError(c, err)
		return
	}

	if !w.processor.Enqueue(event) {
		// back-pressure: let the provider redeliver
		utils.RespondError(c, http.StatusServiceUnavailable, "Webhook queue full, retry later")
		return
	}

	utils.RespondSuccess(c, nil, "Webhook accepted")
}
