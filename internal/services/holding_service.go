package services

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "folio/internal/errors"
	"folio/internal/models"
	"folio/internal/pagination"
)

// holdingService manages positions inside a user's accounts.
type holdingService struct {
	db *gorm.DB
}

// NewHoldingService creates a new HoldingServicer.
func NewHoldingService(db *gorm.DB) HoldingServicer {
	return &holdingService{db: db}
}

// ownedHoldings scopes holdings to accounts owned by userID.
func ownedHoldings(userID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("account_id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).Model(&models.Account{}).Select("id").Where("user_id = ?", userID))
	}
}

// CreateHolding adds a position. Buying more of a security already held in
// the account increases the existing holding instead.
func (s *holdingService) CreateHolding(userID string, in HoldingInput) (*models.Holding, error) {
	if !in.Quantity.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be positive")
	}
	if in.Price.IsNegative() {
		return nil, apperrors.ErrInvalidPrice
	}

	var holding models.Holding
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Where("id = ? AND user_id = ?", in.AccountID, userID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrAccountNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		var security models.Security
		if err := tx.Where("id = ?", in.SecurityID).First(&security).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrSecurityNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		price := in.Price
		if price.IsZero() {
			price = security.LastPrice
		}

		err := tx.Where("account_id = ? AND security_id = ?", in.AccountID, in.SecurityID).First(&holding).Error
		switch {
		case err == nil:
			holding.Quantity = holding.Quantity.Add(in.Quantity)
			holding.Price = price
			if in.Notes != "" {
				holding.Notes = in.Notes
			}
			if err := tx.Omit(clause.Associations).Save(&holding).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			holding = models.Holding{
				AccountID:  in.AccountID,
				SecurityID: in.SecurityID,
				Quantity:   in.Quantity,
				Price:      price,
				Notes:      in.Notes,
			}
			if err := tx.Omit(clause.Associations).Create(&holding).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		default:
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		holding.Security = security
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &holding, nil
}

// ListHoldings returns the user's holdings, optionally limited to one account.
func (s *holdingService) ListHoldings(userID, accountID string, page pagination.PageRequest) (*pagination.PageResponse[models.Holding], error) {
	query := s.db.Model(&models.Holding{}).Scopes(ownedHoldings(userID))
	if accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}

	result, err := pagination.Find[models.Holding](query, page, "created_at ASC", "Security")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetHoldingByID returns one of the user's holdings.
func (s *holdingService) GetHoldingByID(userID, holdingID string) (*models.Holding, error) {
	var holding models.Holding
	err := s.db.Scopes(ownedHoldings(userID)).Preload("Security").
		Where("id = ?", holdingID).First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrHoldingNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &holding, nil
}

// UpdateHolding sets a holding's quantity, price and notes. A zero quantity
// removes the holding.
func (s *holdingService) UpdateHolding(userID, holdingID string, quantity, price decimal.Decimal, notes string) (*models.Holding, error) {
	if quantity.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity cannot be negative")
	}
	if price.IsNegative() {
		return nil, apperrors.ErrInvalidPrice
	}

	holding, err := s.GetHoldingByID(userID, holdingID)
	if err != nil {
		return nil, err
	}

	if quantity.IsZero() {
		if err := s.db.Unscoped().Delete(&models.Holding{}, "id = ?", holdingID).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		holding.Quantity = decimal.Zero
		return holding, nil
	}

	updates := map[string]interface{}{"quantity": quantity, "notes": notes}
	if price.IsPositive() {
		updates["price"] = price
	}
	if err := s.db.Model(&models.Holding{}).Where("id = ?", holdingID).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return s.GetHoldingByID(userID, holdingID)
}

// DeleteHolding removes one of the user's holdings.
func (s *holdingService) DeleteHolding(userID, holdingID string) error {
	if _, err := s.GetHoldingByID(userID, holdingID); err != nil {
		return err
	}
	if err := s.db.Unscoped().Delete(&models.Holding{}, "id = ?", holdingID).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}
