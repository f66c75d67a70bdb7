package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "folio/internal/errors"
	"folio/internal/services"
)

// ExchangeRateHandler handles stored and fetched currency conversion rates.
type ExchangeRateHandler struct {
	rateService  services.ExchangeRateServicer
	userService  services.UserServicer
	auditService services.AuditServicer
}

// NewExchangeRateHandler creates a new ExchangeRateHandler.
func NewExchangeRateHandler(rateService services.ExchangeRateServicer, userService services.UserServicer, auditService services.AuditServicer) *ExchangeRateHandler {
	return &ExchangeRateHandler{rateService: rateService, userService: userService, auditService: auditService}
}

// AddRateRequest represents a manually entered rate: one unit of
// from_currency buys rate units of to_currency.
type AddRateRequest struct {
	FromCurrency string          `json:"from_currency" binding:"required,iso4217"`
	ToCurrency   string          `json:"to_currency" binding:"required,iso4217"`
	Rate         decimal.Decimal `json:"rate"`
}

// RefreshRatesRequest lists the currencies to fetch into the user's base currency.
type RefreshRatesRequest struct {
	Currencies []string `json:"currencies" binding:"required,min=1,dive,iso4217"`
}

// ListRateQuery holds the list query parameters.
type ListRateQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ListRates handles listing recent exchange rates
// @Summary     List exchange rates
// @Description Get the most recently recorded rates, newest first
// @Tags        exchange-rates
// @Produce     json
// @Security    BearerAuth
// @Param       limit query int false "Maximum rows (default 50, max 500)"
// @Success     200 {object} map[string][]models.ExchangeRate "Rates"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Router      /exchange-rates [get]
func (h *ExchangeRateHandler) ListRates(c *gin.Context) {
	var q ListRateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	rates, err := h.rateService.ListRates(q.Limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exchange_rates": rates})
}

// AddRate handles recording a manual exchange rate
// @Summary     Add exchange rate
// @Tags        exchange-rates
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body AddRateRequest true "Rate"
// @Success     201 {object} models.ExchangeRate "Rate recorded"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Router      /exchange-rates [post]
func (h *ExchangeRateHandler) AddRate(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AddRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	rate, err := h.rateService.AddRate(req.FromCurrency, req.ToCurrency, req.Rate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "ADD_EXCHANGE_RATE", "exchange_rate", rate.ID, c.ClientIP(),
		map[string]interface{}{"pair": rate.FromCurrency + "/" + rate.ToCurrency, "rate": rate.Rate.String()})

	c.JSON(http.StatusCreated, gin.H{"exchange_rate": rate})
}

// RefreshRates handles fetching live rates into the user's base currency
// @Summary     Refresh exchange rates
// @Description Fetch live rates for the given currencies into the user's base currency
// @Tags        exchange-rates
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body RefreshRatesRequest true "Currencies"
// @Success     200 {object} map[string][]models.ExchangeRate "Fetched rates"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     502 {object} ErrorResponse "Rate provider unavailable"
// @Router      /exchange-rates/refresh [post]
func (h *ExchangeRateHandler) RefreshRates(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RefreshRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	user, err := h.userService.GetUserByID(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	rates, err := h.rateService.RefreshRates(c.Request.Context(), user.BaseCurrency, req.Currencies)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "REFRESH_EXCHANGE_RATES", "exchange_rate", "", c.ClientIP(),
		map[string]interface{}{"base": user.BaseCurrency, "currencies": strings.Join(req.Currencies, ",")})

	c.JSON(http.StatusOK, gin.H{"exchange_rates": rates})
}
