package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "folio/internal/errors"
	"folio/internal/pagination"
	"folio/internal/services"
)

// RebalanceHandler handles plan generation and trade execution.
type RebalanceHandler struct {
	rebalanceService services.RebalanceServicer
	auditService     services.AuditServicer
}

// NewRebalanceHandler creates a new RebalanceHandler.
func NewRebalanceHandler(rebalanceService services.RebalanceServicer, auditService services.AuditServicer) *RebalanceHandler {
	return &RebalanceHandler{rebalanceService: rebalanceService, auditService: auditService}
}

// ListTransactionsQuery selects the pending plan or the executed history.
type ListTransactionsQuery struct {
	Executed bool `form:"executed"`
}

// ExecuteTransactionRequest carries the user's choices for one planned trade.
// security_id is required when the trade awaits a selection; a positive
// price overrides the planned price.
type ExecuteTransactionRequest struct {
	SecurityID string          `json:"security_id" binding:"omitempty,uuid"`
	Price      decimal.Decimal `json:"price"`
}

// GeneratePlan handles computing a fresh rebalancing plan
// @Summary     Generate rebalancing plan
// @Description Refresh prices, compute trades that move the portfolio toward its targets and replace the pending plan
// @Tags        rebalance
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.Plan "Plan"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "User not found"
// @Router      /rebalance/plan [post]
func (h *RebalanceHandler) GeneratePlan(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	plan, err := h.rebalanceService.GeneratePlan(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionGeneratePlan, "rebalance_plan", "", c.ClientIP(),
		map[string]interface{}{"transactions": len(plan.Transactions)})

	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// ListTransactions handles listing planned or executed trades
// @Summary     List rebalance transactions
// @Description Pending trades in execution order, or executed trades newest first
// @Tags        rebalance
// @Produce     json
// @Security    BearerAuth
// @Param       executed  query bool false "List executed trades instead of the pending plan"
// @Param       page      query int  false "Page number (default 1)"
// @Param       page_size query int  false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.RebalanceTransaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Router      /rebalance/transactions [get]
func (h *RebalanceHandler) ListTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var q ListTransactionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.rebalanceService.ListTransactions(userID, q.Executed, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExecuteTransaction handles applying one planned trade
// @Summary     Execute rebalance transaction
// @Description Apply a planned trade to holdings and cash, then regenerate the rest of the plan
// @Tags        rebalance
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                    true  "Transaction ID"
// @Param       request body ExecuteTransactionRequest false "Selection and price override"
// @Success     200 {object} services.ExecutionResult "Execution result"
// @Failure     400 {object} ErrorResponse "Selection required, invalid price or insufficient funds"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     409 {object} ErrorResponse "Already executed"
// @Router      /rebalance/transactions/{id}/execute [post]
func (h *RebalanceHandler) ExecuteTransaction(c *gin.Context) {
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

	var req ExecuteTransactionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}
	if req.Price.IsNegative() {
		respondWithError(c, apperrors.ErrInvalidPrice)
		return
	}

	result, err := h.rebalanceService.ExecuteTransaction(c.Request.Context(), userID, id, services.ExecuteRequest{
		SecurityID: req.SecurityID,
		Price:      req.Price,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	changes := map[string]interface{}{
		"action":   string(result.Transaction.Action),
		"quantity": result.Transaction.Quantity.String(),
		"price":    result.Transaction.Price.String(),
	}
	if result.Transaction.SecurityID != nil {
		changes["security_id"] = *result.Transaction.SecurityID
	}
	h.auditService.Log(userID, services.AuditActionExecuteTransaction, "rebalance_transaction", id, c.ClientIP(), changes)

	c.JSON(http.StatusOK, result)
}
