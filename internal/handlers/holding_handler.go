package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "folio/internal/errors"
	"folio/internal/pagination"
	"folio/internal/services"
	"folio/internal/uuid"
)

// HoldingHandler handles positions inside the user's accounts.
type HoldingHandler struct {
	holdingService services.HoldingServicer
	auditService   services.AuditServicer
}

// NewHoldingHandler creates a new HoldingHandler.
func NewHoldingHandler(holdingService services.HoldingServicer, auditService services.AuditServicer) *HoldingHandler {
	return &HoldingHandler{holdingService: holdingService, auditService: auditService}
}

// CreateHoldingRequest represents the request payload for adding a holding.
// A missing price uses the security's last known price.
type CreateHoldingRequest struct {
	AccountID  string          `json:"account_id" binding:"required,uuid"`
	SecurityID string          `json:"security_id" binding:"required,uuid"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Notes      string          `json:"notes" binding:"max=500"`
}

// UpdateHoldingRequest represents the request payload for updating a holding.
// A zero quantity removes the holding.
type UpdateHoldingRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Notes    string          `json:"notes" binding:"max=500"`
}

// CreateHolding handles adding a position
// @Summary     Add holding
// @Description Add a position to one of the user's accounts; adding a held security increases its quantity
// @Tags        holdings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateHoldingRequest true "Holding details"
// @Success     201 {object} models.Holding "Holding created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Account or security not found"
// @Router      /holdings [post]
func (h *HoldingHandler) CreateHolding(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	if !req.Quantity.IsPositive() {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be positive"))
		return
	}

	holding, err := h.holdingService.CreateHolding(userID, services.HoldingInput{
		AccountID:  req.AccountID,
		SecurityID: req.SecurityID,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Notes:      req.Notes,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_HOLDING", "holding", holding.ID, c.ClientIP(),
		map[string]interface{}{"account_id": req.AccountID, "security_id": req.SecurityID, "quantity": req.Quantity.String()})

	c.JSON(http.StatusCreated, gin.H{"holding": holding})
}

// ListHoldings handles listing the user's holdings
// @Summary     List holdings
// @Description Get a paginated list of holdings, optionally for one account
// @Tags        holdings
// @Produce     json
// @Security    BearerAuth
// @Param       account_id query string false "Only holdings of this account"
// @Param       page       query int    false "Page number (default 1)"
// @Param       page_size  query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Holding] "Paginated holdings"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Router      /holdings [get]
func (h *HoldingHandler) ListHoldings(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accountID := c.Query("account_id")
	if accountID != "" && !uuid.IsValid(accountID) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid account_id"))
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.holdingService.ListHoldings(userID, accountID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetHolding handles retrieving one holding
// @Summary     Get holding
// @Tags        holdings
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Holding ID"
// @Success     200 {object} models.Holding "Holding"
// @Failure     404 {object} ErrorResponse "Holding not found"
// @Router      /holdings/{id} [get]
func (h *HoldingHandler) GetHolding(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	holding, err := h.holdingService.GetHoldingByID(userID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"holding": holding})
}

// UpdateHolding handles changing a holding's quantity, price or notes
// @Summary     Update holding
// @Tags        holdings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Holding ID"
// @Param       request body UpdateHoldingRequest true "New values"
// @Success     200 {object} models.Holding "Holding updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Holding not found"
// @Router      /holdings/{id} [put]
func (h *HoldingHandler) UpdateHolding(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	holding, err := h.holdingService.UpdateHolding(userID, id, req.Quantity, req.Price, req.Notes)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_HOLDING", "holding", id, c.ClientIP(),
		map[string]interface{}{"quantity": req.Quantity.String(), "price": req.Price.String()})

	c.JSON(http.StatusOK, gin.H{"holding": holding})
}

// DeleteHolding handles removing a holding
// @Summary     Delete holding
// @Tags        holdings
// @Security    BearerAuth
// @Param       id path string true "Holding ID"
// @Success     204 "Holding deleted"
// @Failure     404 {object} ErrorResponse "Holding not found"
// @Router      /holdings/{id} [delete]
func (h *HoldingHandler) DeleteHolding(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.holdingService.DeleteHolding(userID, id); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_HOLDING", "holding", id, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}
