package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "folio/internal/errors"
	"folio/internal/pagination"
	"folio/internal/services"
)

// SecurityHandler handles security-related requests.
type SecurityHandler struct {
	securityService services.SecurityServicer
	auditService    services.AuditServicer
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(securityService services.SecurityServicer, auditService services.AuditServicer) *SecurityHandler {
	return &SecurityHandler{securityService: securityService, auditService: auditService}
}

// SecurityRequest represents the request payload for creating or replacing a security.
type SecurityRequest struct {
	Ticker          string          `json:"ticker" binding:"required,min=1,max=20"`
	Name            string          `json:"name" binding:"max=200"`
	Exchange        string          `json:"exchange" binding:"max=20"`
	AssetClassID    string          `json:"asset_class_id" binding:"required,uuid"`
	Currency        string          `json:"currency" binding:"omitempty,iso4217"`
	IsPublic        bool            `json:"is_public"`
	AutoUpdatePrice bool            `json:"auto_update_price"`
	LastPrice       decimal.Decimal `json:"last_price"`
}

func (r SecurityRequest) input() services.SecurityInput {
	return services.SecurityInput{
		Ticker:          r.Ticker,
		Name:            r.Name,
		Exchange:        r.Exchange,
		AssetClassID:    r.AssetClassID,
		Currency:        r.Currency,
		IsPublic:        r.IsPublic,
		AutoUpdatePrice: r.AutoUpdatePrice,
		LastPrice:       r.LastPrice,
	}
}

// RecordPricesRequest represents the request payload for bulk price recording.
type RecordPricesRequest struct {
	Prices []RecordPriceEntry `json:"prices" binding:"required,min=1,dive"`
}

// RecordPriceEntry represents a single price entry in a bulk request.
type RecordPriceEntry struct {
	SecurityID string          `json:"security_id" binding:"required,uuid"`
	Price      decimal.Decimal `json:"price"`
	Source     string          `json:"source" binding:"max=50"`
	RecordedAt time.Time       `json:"recorded_at" binding:"required"`
}

// CreateSecurity handles creating a new security.
// @Summary     Create security
// @Description Add a security to the shared catalog
// @Tags        securities
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body SecurityRequest true "Security details"
// @Success     201 {object} models.Security "Security created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Asset class not found"
// @Failure     409 {object} ErrorResponse "Duplicate ticker"
// @Router      /securities [post]
func (h *SecurityHandler) CreateSecurity(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SecurityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	security, err := h.securityService.CreateSecurity(req.input())
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_SECURITY", "security", security.ID, c.ClientIP(),
		map[string]interface{}{"ticker": security.Ticker, "asset_class_id": security.AssetClassID})

	c.JSON(http.StatusCreated, gin.H{"security": security})
}

// ListSecurities handles listing all securities.
// @Summary     List securities
// @Description Get a paginated list of the security catalog
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Security] "Paginated securities"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /securities [get]
func (h *SecurityHandler) ListSecurities(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.securityService.ListSecurities(page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// LookupTicker handles resolving a ticker against the quote provider.
// @Summary     Look up ticker
// @Description Resolve a ticker's name, last price and currency without creating a security
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       ticker path string true "Ticker symbol"
// @Success     200 {object} pricing.TickerInfo "Ticker details"
// @Failure     404 {object} ErrorResponse "Ticker not found"
// @Failure     502 {object} ErrorResponse "Quote provider error"
// @Failure     503 {object} ErrorResponse "Lookup not configured"
// @Router      /securities/lookup/{ticker} [get]
func (h *SecurityHandler) LookupTicker(c *gin.Context) {
	info, err := h.securityService.LookupTicker(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticker": info})
}

// GetSecurity handles retrieving a specific security.
// @Summary     Get security by ID
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Security ID"
// @Success     200 {object} models.Security "Security details"
// @Failure     400 {object} ErrorResponse "Invalid security ID"
// @Failure     404 {object} ErrorResponse "Security not found"
// @Router      /securities/{id} [get]
func (h *SecurityHandler) GetSecurity(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	security, err := h.securityService.GetSecurityByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"security": security})
}

// UpdateSecurity handles replacing a security's fields.
// @Summary     Update security
// @Description Update a security; a changed last price is applied to every holding of it
// @Tags        securities
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string          true "Security ID"
// @Param       request body SecurityRequest true "Security details"
// @Success     200 {object} models.Security "Security updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Security not found"
// @Failure     409 {object} ErrorResponse "Duplicate ticker"
// @Router      /securities/{id} [put]
func (h *SecurityHandler) UpdateSecurity(c *gin.Context) {
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

	var req SecurityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	security, err := h.securityService.UpdateSecurity(id, req.input())
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPDATE_SECURITY", "security", id, c.ClientIP(),
		map[string]interface{}{"ticker": security.Ticker, "last_price": security.LastPrice.String()})

	c.JSON(http.StatusOK, gin.H{"security": security})
}

// DeleteSecurity handles removing a security that nobody holds.
// @Summary     Delete security
// @Tags        securities
// @Security    BearerAuth
// @Param       id path string true "Security ID"
// @Success     204 "Security deleted"
// @Failure     404 {object} ErrorResponse "Security not found"
// @Failure     409 {object} ErrorResponse "Security is held"
// @Router      /securities/{id} [delete]
func (h *SecurityHandler) DeleteSecurity(c *gin.Context) {
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

	if err := h.securityService.DeleteSecurity(id); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "DELETE_SECURITY", "security", id, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// GetPriceHistory handles retrieving price history for a security.
// @Summary     Get price history
// @Description Get price history for a security (paginated)
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Security ID"
// @Param       from_date query string true  "Start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date   query string true  "End date (RFC3339 or YYYY-MM-DD)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.SecurityPrice] "Paginated prices"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /securities/{id}/prices [get]
func (h *SecurityHandler) GetPriceHistory(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	from, to, err := parseDateRange(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.securityService.GetPriceHistory(id, from, to, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListRefreshable handles listing the securities whose prices are fetched automatically.
// @Summary     List refreshable securities (pipeline)
// @Description Get every public security with automatic price updates (pipeline endpoint)
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} map[string][]models.Security "Refreshable securities"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/securities [get]
func (h *SecurityHandler) ListRefreshable(c *gin.Context) {
	securities, err := h.securityService.ListRefreshable()
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"securities": securities})
}

// RecordPrices handles bulk price recording for securities.
// @Summary     Record prices
// @Description Bulk record prices for securities (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body RecordPricesRequest true "Price entries"
// @Success     200 {object} map[string]int "Prices recorded count"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/securities/prices [post]
func (h *SecurityHandler) RecordPrices(c *gin.Context) {
	var req RecordPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	inputs := make([]services.SecurityPriceInput, len(req.Prices))
	for i, p := range req.Prices {
		if !p.Price.IsPositive() {
			respondWithError(c, apperrors.ErrInvalidPrice)
			return
		}
		source := p.Source
		if source == "" {
			source = "pipeline"
		}
		inputs[i] = services.SecurityPriceInput{
			SecurityID: p.SecurityID,
			Price:      p.Price,
			Source:     source,
			RecordedAt: p.RecordedAt,
		}
	}

	count, err := h.securityService.RecordPrices(inputs)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log("", "RECORD_PRICES", "security_price", "", c.ClientIP(),
		map[string]interface{}{"submitted": len(inputs), "recorded": count})

	c.JSON(http.StatusOK, gin.H{"prices_recorded": count})
}
