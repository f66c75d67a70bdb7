package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "folio/internal/errors"
	"folio/internal/services"
)

// TargetHandler handles the user's target allocation.
type TargetHandler struct {
	targetService services.TargetServicer
	auditService  services.AuditServicer
}

// NewTargetHandler creates a new TargetHandler.
func NewTargetHandler(targetService services.TargetServicer, auditService services.AuditServicer) *TargetHandler {
	return &TargetHandler{targetService: targetService, auditService: auditService}
}

// TargetEntry is one asset class row of a target allocation. Omitted
// placement flags default to allowed.
type TargetEntry struct {
	AssetClassID           string          `json:"asset_class_id" binding:"required,uuid"`
	TargetPercentage       decimal.Decimal `json:"target_percentage"`
	AllowedInRegistered    *bool           `json:"allowed_in_registered"`
	AllowedInNonRegistered *bool           `json:"allowed_in_nonregistered"`
	PreferredAccountType   string          `json:"preferred_account_type" binding:"max=50"`
}

// ReplaceTargetsRequest represents the full target allocation.
type ReplaceTargetsRequest struct {
	Targets []TargetEntry `json:"targets" binding:"dive"`
}

// ListTargets handles retrieving the target allocation
// @Summary     List targets
// @Description Get the user's target percentage per asset class
// @Tags        targets
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]models.Target "Targets"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /targets [get]
func (h *TargetHandler) ListTargets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	targets, err := h.targetService.ListTargets(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

// ReplaceTargets handles replacing the whole target allocation
// @Summary     Replace targets
// @Description Replace the user's target allocation. Percentages are 0..100 each and need not sum to 100.
// @Tags        targets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ReplaceTargetsRequest true "Target allocation"
// @Success     200 {object} map[string][]models.Target "Stored targets"
// @Failure     400 {object} ErrorResponse "Invalid targets"
// @Failure     404 {object} ErrorResponse "Asset class not found"
// @Router      /targets [put]
func (h *TargetHandler) ReplaceTargets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ReplaceTargetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	inputs := make([]services.TargetInput, len(req.Targets))
	total := decimal.Zero
	for i, t := range req.Targets {
		inputs[i] = services.TargetInput{
			AssetClassID:           t.AssetClassID,
			TargetPercentage:       t.TargetPercentage,
			AllowedInRegistered:    t.AllowedInRegistered,
			AllowedInNonRegistered: t.AllowedInNonRegistered,
			PreferredAccountType:   t.PreferredAccountType,
		}
		total = total.Add(t.TargetPercentage)
	}

	targets, err := h.targetService.ReplaceTargets(userID, inputs)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "REPLACE_TARGETS", "target", "", c.ClientIP(),
		map[string]interface{}{"count": len(inputs), "total_percentage": total.String()})

	c.JSON(http.StatusOK, gin.H{"targets": targets})
}
