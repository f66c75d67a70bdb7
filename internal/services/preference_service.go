package services

import (
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "folio/internal/errors"
	"folio/internal/models"
	"folio/internal/rebalance"
)

// preferenceService manages security restrictions and asset class placement.
type preferenceService struct {
	db *gorm.DB
}

// NewPreferenceService creates a new PreferenceServicer.
func NewPreferenceService(db *gorm.DB) PreferenceServicer {
	return &preferenceService{db: db}
}

// GetSecurityPreference returns the user's restriction for a security. A
// security without a stored preference is reported as unrestricted.
func (s *preferenceService) GetSecurityPreference(userID, securityID string) (*models.SecurityPreference, error) {
	var count int64
	if err := s.db.Model(&models.Security{}).Where("id = ?", securityID).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return nil, apperrors.ErrSecurityNotFound
	}

	var pref models.SecurityPreference
	err := s.db.Where("user_id = ? AND security_id = ?", userID, securityID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.SecurityPreference{
			UserID:          userID,
			SecurityID:      securityID,
			RestrictionType: string(rebalance.RestrictionUnrestricted),
		}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &pref, nil
}

// SetSecurityPreference stores the restriction for a security, replacing any
// previous one. Every referenced account must belong to the user.
func (s *preferenceService) SetSecurityPreference(userID, securityID string, restriction rebalance.Restriction, notes string) (*models.SecurityPreference, error) {
	if restriction == nil {
		restriction = rebalance.Unrestricted{}
	}

	var config datatypes.JSON
	if cfg := rebalance.ConfigOf(restriction); cfg != nil {
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		config = datatypes.JSON(raw)

		referenced := referencedAccounts(cfg)
		if len(referenced) > 0 {
			var owned int64
			if err := s.db.Model(&models.Account{}).Where("user_id = ? AND id IN ?", userID, referenced).
				Count(&owned).Error; err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if int(owned) != len(referenced) {
				return nil, apperrors.WithMessage(apperrors.ErrInvalidRestriction, "account_config references unknown accounts")
			}
		}
	}

	var pref models.SecurityPreference
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Security{}).Where("id = ?", securityID).Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count == 0 {
			return apperrors.ErrSecurityNotFound
		}

		if err := tx.Unscoped().Where("user_id = ? AND security_id = ?", userID, securityID).
			Delete(&models.SecurityPreference{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		pref = models.SecurityPreference{
			UserID:          userID,
			SecurityID:      securityID,
			RestrictionType: string(restriction.Type()),
			AccountConfig:   config,
			Notes:           notes,
		}
		if err := tx.Omit(clause.Associations).Create(&pref).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func referencedAccounts(cfg *rebalance.AccountConfig) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, list := range [][]string{cfg.Allowed, cfg.Priority1, cfg.Priority2, cfg.Priority3} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// ListAssetClassPreferences returns the user's asset class placement rules.
func (s *preferenceService) ListAssetClassPreferences(userID string) ([]models.AssetClassPreference, error) {
	var prefs []models.AssetClassPreference
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&prefs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return prefs, nil
}

// ReplaceAssetClassPreferences swaps the user's placement rules for the given list.
func (s *preferenceService) ReplaceAssetClassPreferences(userID string, inputs []AssetClassPreferenceInput) ([]models.AssetClassPreference, error) {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if in.AssetClassID == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "asset_class_id is required")
		}
		if seen[in.AssetClassID] {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "each asset class may have only one preference")
		}
		seen[in.AssetClassID] = true
		if in.OnlyInRegistered && in.OnlyInNonRegistered {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "an asset class cannot be limited to both registered and non-registered accounts")
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, in := range inputs {
			var count int64
			if err := tx.Model(&models.AssetClass{}).Where("id = ?", in.AssetClassID).Count(&count).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if count == 0 {
				return apperrors.ErrAssetClassNotFound
			}
			if in.PreferredAccountID != nil && *in.PreferredAccountID != "" {
				if err := tx.Model(&models.Account{}).Where("id = ? AND user_id = ?", *in.PreferredAccountID, userID).
					Count(&count).Error; err != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
				if count == 0 {
					return apperrors.ErrAccountNotFound
				}
			}
		}

		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&models.AssetClassPreference{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		for _, in := range inputs {
			pref := models.AssetClassPreference{
				UserID:              userID,
				AssetClassID:        in.AssetClassID,
				OnlyInRegistered:    in.OnlyInRegistered,
				OnlyInNonRegistered: in.OnlyInNonRegistered,
			}
			if len(in.AvoidAccountTypes) > 0 {
				types := make([]string, 0, len(in.AvoidAccountTypes))
				for _, t := range in.AvoidAccountTypes {
					if t = strings.TrimSpace(t); t != "" {
						types = append(types, t)
					}
				}
				raw, err := json.Marshal(types)
				if err != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
				pref.AvoidAccountTypes = datatypes.JSON(raw)
			}
			if in.PreferredAccountID != nil && *in.PreferredAccountID != "" {
				id := *in.PreferredAccountID
				pref.PreferredAccountID = &id
			}
			if err := tx.Create(&pref).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.ListAssetClassPreferences(userID)
}
