package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "folio/internal/errors"
	"folio/internal/rebalance"
	"folio/internal/services"
)

// PreferenceHandler handles security restrictions and asset class placement rules.
type PreferenceHandler struct {
	preferenceService services.PreferenceServicer
	auditService      services.AuditServicer
}

// NewPreferenceHandler creates a new PreferenceHandler.
func NewPreferenceHandler(preferenceService services.PreferenceServicer, auditService services.AuditServicer) *PreferenceHandler {
	return &PreferenceHandler{preferenceService: preferenceService, auditService: auditService}
}

// SecurityPreferenceRequest sets the accounts a security may be bought in.
// account_config holds "allowed" for restricted_to_accounts and
// "priority_1".."priority_3" for prioritized_accounts.
type SecurityPreferenceRequest struct {
	RestrictionType string                  `json:"restriction_type" binding:"required,restriction_type"`
	AccountConfig   rebalance.AccountConfig `json:"account_config"`
	Notes           string                  `json:"notes" binding:"max=500"`
}

// AssetClassPreferenceEntry is one asset class row of the placement rules.
type AssetClassPreferenceEntry struct {
	AssetClassID        string   `json:"asset_class_id" binding:"required,uuid"`
	OnlyInRegistered    bool     `json:"only_in_registered"`
	OnlyInNonRegistered bool     `json:"only_in_nonregistered"`
	AvoidAccountTypes   []string `json:"avoid_account_types" binding:"omitempty,dive,max=50"`
	PreferredAccountID  *string  `json:"preferred_account_id" binding:"omitempty,uuid"`
}

// ReplaceAssetClassPreferencesRequest represents the full set of placement rules.
type ReplaceAssetClassPreferencesRequest struct {
	Preferences []AssetClassPreferenceEntry `json:"preferences" binding:"dive"`
}

// GetSecurityPreference handles retrieving a security's restriction
// @Summary     Get security preference
// @Description Get the user's account restriction for a security; unrestricted when none is stored
// @Tags        preferences
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Security ID"
// @Success     200 {object} models.SecurityPreference "Preference"
// @Failure     404 {object} ErrorResponse "Security not found"
// @Router      /securities/{id}/preference [get]
func (h *PreferenceHandler) GetSecurityPreference(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	securityID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	pref, err := h.preferenceService.GetSecurityPreference(userID, securityID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"preference": pref})
}

// SetSecurityPreference handles storing a security's restriction
// @Summary     Set security preference
// @Description Restrict a security to some accounts or rank the accounts it is bought in
// @Tags        preferences
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                    true "Security ID"
// @Param       request body SecurityPreferenceRequest true "Restriction"
// @Success     200 {object} models.SecurityPreference "Stored preference"
// @Failure     400 {object} ErrorResponse "Invalid restriction"
// @Failure     404 {object} ErrorResponse "Security not found"
// @Router      /securities/{id}/preference [put]
func (h *PreferenceHandler) SetSecurityPreference(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	securityID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SecurityPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	restriction, err := rebalance.NewRestriction(req.RestrictionType, req.AccountConfig)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidRestriction, err.Error()))
		return
	}

	pref, err := h.preferenceService.SetSecurityPreference(userID, securityID, restriction, req.Notes)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionSetPreference, "security_preference", securityID, c.ClientIP(),
		map[string]interface{}{"restriction_type": req.RestrictionType})

	c.JSON(http.StatusOK, gin.H{"preference": pref})
}

// ListAssetClassPreferences handles retrieving the placement rules
// @Summary     List asset class preferences
// @Tags        preferences
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]models.AssetClassPreference "Preferences"
// @Router      /asset-class-preferences [get]
func (h *PreferenceHandler) ListAssetClassPreferences(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	prefs, err := h.preferenceService.ListAssetClassPreferences(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

// ReplaceAssetClassPreferences handles replacing the placement rules
// @Summary     Replace asset class preferences
// @Description Replace the rules that narrow which accounts may hold each asset class
// @Tags        preferences
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ReplaceAssetClassPreferencesRequest true "Placement rules"
// @Success     200 {object} map[string][]models.AssetClassPreference "Stored preferences"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Asset class or account not found"
// @Router      /asset-class-preferences [put]
func (h *PreferenceHandler) ReplaceAssetClassPreferences(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ReplaceAssetClassPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	inputs := make([]services.AssetClassPreferenceInput, len(req.Preferences))
	for i, p := range req.Preferences {
		inputs[i] = services.AssetClassPreferenceInput{
			AssetClassID:        p.AssetClassID,
			OnlyInRegistered:    p.OnlyInRegistered,
			OnlyInNonRegistered: p.OnlyInNonRegistered,
			AvoidAccountTypes:   p.AvoidAccountTypes,
			PreferredAccountID:  p.PreferredAccountID,
		}
	}

	prefs, err := h.preferenceService.ReplaceAssetClassPreferences(userID, inputs)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "REPLACE_ASSET_CLASS_PREFERENCES", "asset_class_preference", "", c.ClientIP(),
		map[string]interface{}{"count": len(inputs)})

	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}
