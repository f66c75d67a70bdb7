package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "folio/internal/errors"
	"folio/internal/models"
	"folio/internal/pagination"
	"folio/internal/validator"
)

// accountService handles account-related business logic.
type accountService struct {
	db *gorm.DB
}

// NewAccountService creates a new AccountServicer.
func NewAccountService(db *gorm.DB) AccountServicer {
	return &accountService{db: db}
}

func validateAccountInput(in *AccountInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}
	if in.Currency == "" {
		in.Currency = models.DefaultBaseCurrency
	}
	in.Currency = strings.ToUpper(in.Currency)
	if !validator.ValidCurrency(in.Currency) {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "currency must be an ISO 4217 code")
	}
	if in.CashBalance.IsNegative() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "cash balance cannot be negative")
	}
	return nil
}

// CreateAccount creates a new account for a user
func (s *accountService) CreateAccount(userID string, in AccountInput) (*models.Account, error) {
	if err := validateAccountInput(&in); err != nil {
		return nil, err
	}

	account := &models.Account{
		UserID:       userID,
		Name:         in.Name,
		AccountType:  in.AccountType,
		Currency:     in.Currency,
		IsRegistered: in.IsRegistered,
		Priority:     in.Priority,
		CashBalance:  in.CashBalance,
		Notes:        in.Notes,
	}

	if err := s.db.Create(account).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return account, nil
}

// GetUserAccounts retrieves a paginated list of accounts for a user.
func (s *accountService) GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	query := s.db.Model(&models.Account{}).Where("user_id = ?", userID)
	result, err := pagination.Find[models.Account](query, page, "priority DESC, name ASC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetAccountByID retrieves an account with its holdings for a specific user
func (s *accountService) GetAccountByID(userID, accountID string) (*models.Account, error) {
	var account models.Account
	err := s.db.Preload("Holdings.Security").
		Where("id = ? AND user_id = ?", accountID, userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// UpdateAccount replaces the editable fields of an account.
func (s *accountService) UpdateAccount(userID, accountID string, in AccountInput) (*models.Account, error) {
	if err := validateAccountInput(&in); err != nil {
		return nil, err
	}

	account, err := s.GetAccountByID(userID, accountID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":          in.Name,
		"account_type":  in.AccountType,
		"currency":      in.Currency,
		"is_registered": in.IsRegistered,
		"priority":      in.Priority,
		"cash_balance":  in.CashBalance,
		"notes":         in.Notes,
	}
	if err := s.db.Model(account).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return s.GetAccountByID(userID, accountID)
}

// DeleteAccount removes an account without holdings. Its unexecuted planned
// trades go with it.
func (s *accountService) DeleteAccount(userID, accountID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrAccountNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		var holdings int64
		if err := tx.Model(&models.Holding{}).Where("account_id = ?", accountID).Count(&holdings).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if holdings > 0 {
			return apperrors.ErrAccountInUse
		}

		if err := tx.Unscoped().Where("account_id = ? AND executed = ?", accountID, false).
			Delete(&models.RebalanceTransaction{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(&account).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}
