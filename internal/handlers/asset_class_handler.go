package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "folio/internal/errors"
	"folio/internal/services"
)

// AssetClassHandler handles the shared asset class catalog.
type AssetClassHandler struct {
	assetClassService services.AssetClassServicer
	auditService      services.AuditServicer
}

// NewAssetClassHandler creates a new AssetClassHandler.
func NewAssetClassHandler(assetClassService services.AssetClassServicer, auditService services.AuditServicer) *AssetClassHandler {
	return &AssetClassHandler{assetClassService: assetClassService, auditService: auditService}
}

// AssetClassRequest represents the request payload for creating or renaming an asset class.
type AssetClassRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// CreateAssetClass handles creating an asset class
// @Summary     Create asset class
// @Tags        asset-classes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body AssetClassRequest true "Asset class name"
// @Success     201 {object} models.AssetClass "Asset class created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     409 {object} ErrorResponse "Duplicate name"
// @Router      /asset-classes [post]
func (h *AssetClassHandler) CreateAssetClass(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AssetClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	class, err := h.assetClassService.CreateAssetClass(req.Name)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_ASSET_CLASS", "asset_class", class.ID, c.ClientIP(),
		map[string]interface{}{"name": class.Name})

	c.JSON(http.StatusCreated, gin.H{"asset_class": class})
}

// ListAssetClasses handles listing asset classes
// @Summary     List asset classes
// @Tags        asset-classes
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]models.AssetClass "Asset classes"
// @Router      /asset-classes [get]
func (h *AssetClassHandler) ListAssetClasses(c *gin.Context) {
	classes, err := h.assetClassService.ListAssetClasses()
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"asset_classes": classes})
}

// GetAssetClass handles retrieving one asset class
// @Summary     Get asset class
// @Tags        asset-classes
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Asset class ID"
// @Success     200 {object} models.AssetClass "Asset class"
// @Failure     404 {object} ErrorResponse "Asset class not found"
// @Router      /asset-classes/{id} [get]
func (h *AssetClassHandler) GetAssetClass(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	class, err := h.assetClassService.GetAssetClassByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"asset_class": class})
}

// UpdateAssetClass handles renaming an asset class
// @Summary     Rename asset class
// @Tags        asset-classes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string            true "Asset class ID"
// @Param       request body AssetClassRequest true "New name"
// @Success     200 {object} models.AssetClass "Asset class updated"
// @Failure     404 {object} ErrorResponse "Asset class not found"
// @Failure     409 {object} ErrorResponse "Duplicate name"
// @Router      /asset-classes/{id} [put]
func (h *AssetClassHandler) UpdateAssetClass(c *gin.Context) {
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

	var req AssetClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	class, err := h.assetClassService.UpdateAssetClass(id, req.Name)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_ASSET_CLASS", "asset_class", id, c.ClientIP(),
		map[string]interface{}{"name": class.Name})

	c.JSON(http.StatusOK, gin.H{"asset_class": class})
}

// DeleteAssetClass handles deleting an unused asset class
// @Summary     Delete asset class
// @Tags        asset-classes
// @Security    BearerAuth
// @Param       id path string true "Asset class ID"
// @Success     204 "Asset class deleted"
// @Failure     404 {object} ErrorResponse "Asset class not found"
// @Failure     409 {object} ErrorResponse "Asset class in use"
// @Router      /asset-classes/{id} [delete]
func (h *AssetClassHandler) DeleteAssetClass(c *gin.Context) {
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

	if err := h.assetClassService.DeleteAssetClass(id); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_ASSET_CLASS", "asset_class", id, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}
