package services

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "folio/internal/errors"
	"folio/internal/models"
)

var maxTargetPercentage = decimal.NewFromInt(100)

// targetService manages a user's target allocation.
type targetService struct {
	db *gorm.DB
}

// NewTargetService creates a new TargetServicer.
func NewTargetService(db *gorm.DB) TargetServicer {
	return &targetService{db: db}
}

// ListTargets returns the user's targets in the order they were defined.
func (s *targetService) ListTargets(userID string) ([]models.Target, error) {
	var targets []models.Target
	if err := s.db.Preload("AssetClass").Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").Find(&targets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return targets, nil
}

// ReplaceTargets swaps the user's whole target list for the given one. Each
// asset class may appear once and every percentage must be within 0..100;
// the total is not required to be 100.
func (s *targetService) ReplaceTargets(userID string, inputs []TargetInput) ([]models.Target, error) {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if in.AssetClassID == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidTargets, "asset_class_id is required")
		}
		if seen[in.AssetClassID] {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidTargets, "each asset class may have only one target")
		}
		seen[in.AssetClassID] = true
		if in.TargetPercentage.IsNegative() || in.TargetPercentage.GreaterThan(maxTargetPercentage) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidTargets, "target percentage must be between 0 and 100")
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if len(inputs) > 0 {
			ids := make([]string, 0, len(inputs))
			for _, in := range inputs {
				ids = append(ids, in.AssetClassID)
			}
			var count int64
			if err := tx.Model(&models.AssetClass{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if int(count) != len(ids) {
				return apperrors.ErrAssetClassNotFound
			}
		}

		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&models.Target{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		for _, in := range inputs {
			target := models.Target{
				UserID:                 userID,
				AssetClassID:           in.AssetClassID,
				TargetPercentage:       in.TargetPercentage,
				AllowedInRegistered:    boolOr(in.AllowedInRegistered, true),
				AllowedInNonRegistered: boolOr(in.AllowedInNonRegistered, true),
				PreferredAccountType:   in.PreferredAccountType,
			}
			if err := tx.Omit(clause.Associations).Create(&target).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.ListTargets(userID)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
