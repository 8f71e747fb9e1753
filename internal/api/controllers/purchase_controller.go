package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trovi/internal/models/db_models"
	"trovi/internal/models/request_models"
	"trovi/internal/models/response_models"
	"trovi/internal/services"
	"trovi/pkg/utils"
)

type PurchaseController struct {
	purchaseService services.PurchaseServiceInterface
}

func NewPurchaseController(purchaseService services.PurchaseServiceInterface) *PurchaseController {
	return &PurchaseController{
		purchaseService: purchaseService,
	}
}

func (p *PurchaseController) requesterID(c *gin.Context) (uuid.UUID, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		utils.RespondError(c, http.StatusUnauthorized, "user_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "invalid user_id")
		return uuid.Nil, false
	}
	return id, true
}

func (p *PurchaseController) CreatePurchase(c *gin.Context) {
	var request request_models.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	buyerID, ok := p.requesterID(c)
	if !ok {
		return
	}

	result, err := p.purchaseService.CreatePurchase(c.Request.Context(), buyerID, request)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondCreated(c, result, "Purchase created")
}

func (p *PurchaseController) GetPurchase(c *gin.Context) {
	purchaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid purchase id")
		return
	}

	if _, ok := p.requesterID(c); !ok {
		return
	}

	purchase, err := p.purchaseService.GetPurchase(c.Request.Context(), purchaseID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, response_models.ToPurchaseResponse(purchase), "")
}

func (p *PurchaseController) ListPurchases(c *gin.Context) {
	userID, ok := p.requesterID(c)
	if !ok {
		return
	}

	purchases, err := p.purchaseService.ListPurchasesForUser(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	responses := make([]response_models.PurchaseResponse, 0, len(purchases))
	for i := range purchases {
		responses = append(responses, response_models.ToPurchaseResponse(&purchases[i]))
	}

	utils.RespondSuccess(c, responses, "")
}

// CancelPurchase is idempotent: canceling an already-resolved purchase
// returns its terminal state with a 200.
func (p *PurchaseController) CancelPurchase(c *gin.Context) {
	purchaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid purchase id")
		return
	}

	requesterID, ok := p.requesterID(c)
	if !ok {
		return
	}

	var request request_models.CancelPurchaseRequest
	_ = c.ShouldBindJSON(&request)

	purchase, err := p.purchaseService.CancelPurchase(c.Request.Context(), purchaseID, requesterID, request.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, response_models.ToPurchaseResponse(purchase), cancelMessage(purchase))
}

func (p *PurchaseController) ConfirmReceipt(c *gin.Context) {
	purchaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid purchase id")
		return
	}

	requesterID, ok := p.requesterID(c)
	if !ok {
		return
	}

	purchase, err := p.purchaseService.ConfirmReceipt(c.Request.Context(), purchaseID, requesterID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, response_models.ToPurchaseResponse(purchase), "")
}

func cancelMessage(p *db_models.Purchase) string {
	switch p.Status {
	case db_models.PurchaseStatusCanceled:
		return "Purchase canceled"
	case db_models.PurchaseStatusRefunded:
		return "Purchase refunded"
	default:
		return "Purchase already resolved"
	}
}
