package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "folio/internal/errors"
	"folio/internal/services"
)

// ExportHandler handles portfolio export and import.
type ExportHandler struct {
	exportService services.ExportServicer
	auditService  services.AuditServicer
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exportService services.ExportServicer, auditService services.AuditServicer) *ExportHandler {
	return &ExportHandler{exportService: exportService, auditService: auditService}
}

// Export handles downloading the user's portfolio
// @Summary     Export portfolio
// @Description Accounts, holdings, targets and preferences keyed by ticker and name
// @Tags        portfolio
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.PortfolioExport "Portfolio document"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	doc, err := h.exportService.Export(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="portfolio.json"`)
	c.JSON(http.StatusOK, doc)
}

// Import handles replacing the user's portfolio from a document
// @Summary     Import portfolio
// @Description Replace accounts, holdings, targets and preferences; nothing changes unless the whole document applies
// @Tags        portfolio
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body services.PortfolioExport true "Portfolio document"
// @Success     200 {object} services.ImportSummary "Records created"
// @Failure     400 {object} ErrorResponse "Invalid document"
// @Failure     404 {object} ErrorResponse "Unknown ticker or asset class"
// @Router      /import [post]
func (h *ExportHandler) Import(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var doc services.PortfolioExport
	if err := c.ShouldBindJSON(&doc); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	summary, err := h.exportService.Import(userID, doc)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionImportPortfolio, "portfolio", userID, c.ClientIP(),
		map[string]interface{}{
			"accounts":    summary.Accounts,
			"holdings":    summary.Holdings,
			"targets":     summary.Targets,
			"preferences": summary.Preferences,
		})

	c.JSON(http.StatusOK, gin.H{"imported": summary})
}
