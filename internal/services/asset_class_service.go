package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "folio/internal/errors"
	"folio/internal/models"
)

// assetClassService manages the shared asset class catalog.
type assetClassService struct {
	db *gorm.DB
}

// NewAssetClassService creates a new AssetClassServicer.
func NewAssetClassService(db *gorm.DB) AssetClassServicer {
	return &assetClassService{db: db}
}

// CreateAssetClass adds a uniquely named asset class.
func (s *assetClassService) CreateAssetClass(name string) (*models.AssetClass, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "asset class name is required")
	}

	class := &models.AssetClass{Name: name}
	if err := s.db.Create(class).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrDuplicateAssetClass
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return class, nil
}

// ListAssetClasses returns every asset class ordered by name.
func (s *assetClassService) ListAssetClasses() ([]models.AssetClass, error) {
	var classes []models.AssetClass
	if err := s.db.Order("name ASC").Find(&classes).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return classes, nil
}

// GetAssetClassByID returns an asset class by its ID.
func (s *assetClassService) GetAssetClassByID(id string) (*models.AssetClass, error) {
	var class models.AssetClass
	if err := s.db.Where("id = ?", id).First(&class).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAssetClassNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &class, nil
}

// UpdateAssetClass renames an asset class.
func (s *assetClassService) UpdateAssetClass(id, name string) (*models.AssetClass, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "asset class name is required")
	}

	class, err := s.GetAssetClassByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(class).Update("name", name).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrDuplicateAssetClass
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return class, nil
}

// DeleteAssetClass removes an asset class that no security, holding or
// target references.
func (s *assetClassService) DeleteAssetClass(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var class models.AssetClass
		if err := tx.Where("id = ?", id).First(&class).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrAssetClassNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		var refs int64
		if err := tx.Model(&models.Security{}).Where("asset_class_id = ?", id).Count(&refs).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if refs > 0 {
			return apperrors.ErrAssetClassInUse
		}

		// Holdings reach an asset class through their security, so the
		// security check above covers them.
		if err := tx.Model(&models.Target{}).Where("asset_class_id = ?", id).Count(&refs).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if refs > 0 {
			return apperrors.ErrAssetClassInUse
		}

		if err := tx.Unscoped().Where("asset_class_id = ?", id).Delete(&models.AssetClassPreference{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Unscoped().Delete(&class).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}
