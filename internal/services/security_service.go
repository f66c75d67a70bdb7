package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "folio/internal/errors"
	"folio/internal/models"
	"folio/internal/pagination"
	"folio/internal/pricing"
	"folio/internal/validator"
)

// securityService handles security-related business logic.
type securityService struct {
	db     *gorm.DB
	lookup TickerLookup
}

// NewSecurityService creates a new SecurityServicer. lookup may be nil, in
// which case ticker lookups are unavailable.
func NewSecurityService(db *gorm.DB, lookup TickerLookup) SecurityServicer {
	return &securityService{db: db, lookup: lookup}
}

func (s *securityService) validateInput(tx *gorm.DB, in *SecurityInput) error {
	in.Ticker = strings.ToUpper(strings.TrimSpace(in.Ticker))
	if in.Ticker == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "Ticker is required")
	}
	if in.Currency == "" {
		in.Currency = pricing.CurrencyForTicker(in.Ticker, in.Exchange)
	}
	in.Currency = strings.ToUpper(in.Currency)
	if !validator.ValidCurrency(in.Currency) {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "currency must be an ISO 4217 code")
	}
	if in.LastPrice.IsNegative() {
		return apperrors.ErrInvalidPrice
	}

	var count int64
	if err := tx.Model(&models.AssetClass{}).Where("id = ?", in.AssetClassID).Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return apperrors.ErrAssetClassNotFound
	}
	return nil
}

// CreateSecurity creates a new security record.
func (s *securityService) CreateSecurity(in SecurityInput) (*models.Security, error) {
	if err := s.validateInput(s.db, &in); err != nil {
		return nil, err
	}

	security := &models.Security{
		Ticker:          in.Ticker,
		Name:            in.Name,
		Exchange:        in.Exchange,
		AssetClassID:    in.AssetClassID,
		Currency:        in.Currency,
		IsPublic:        in.IsPublic,
		AutoUpdatePrice: in.AutoUpdatePrice,
		LastPrice:       in.LastPrice,
	}
	if in.LastPrice.IsPositive() {
		now := time.Now().UTC()
		security.LastPriceAt = &now
	}

	if err := s.db.Create(security).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrDuplicateSecurity
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return security, nil
}

// GetSecurityByID returns a security by its ID.
func (s *securityService) GetSecurityByID(id string) (*models.Security, error) {
	var security models.Security
	if err := s.db.Preload("AssetClass").Where("id = ?", id).First(&security).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &security, nil
}

// ListSecurities returns a paginated list of securities ordered by ticker.
func (s *securityService) ListSecurities(page pagination.PageRequest) (*pagination.PageResponse[models.Security], error) {
	result, err := pagination.Find[models.Security](s.db.Model(&models.Security{}), page, "ticker ASC", "AssetClass")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// UpdateSecurity replaces the editable fields of a security. A changed
// price also becomes the price of every holding of the security.
func (s *securityService) UpdateSecurity(id string, in SecurityInput) (*models.Security, error) {
	if err := s.validateInput(s.db, &in); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var security models.Security
		if err := tx.Where("id = ?", id).First(&security).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrSecurityNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		updates := map[string]interface{}{
			"ticker":            in.Ticker,
			"name":              in.Name,
			"exchange":          in.Exchange,
			"asset_class_id":    in.AssetClassID,
			"currency":          in.Currency,
			"is_public":         in.IsPublic,
			"auto_update_price": in.AutoUpdatePrice,
		}
		if in.LastPrice.IsPositive() && !in.LastPrice.Equal(security.LastPrice) {
			updates["last_price"] = in.LastPrice
			updates["last_price_at"] = time.Now().UTC()
			if err := tx.Model(&models.Holding{}).Where("security_id = ?", id).
				Update("price", in.LastPrice).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		if err := tx.Model(&security).Updates(updates).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.ErrDuplicateSecurity
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetSecurityByID(id)
}

// DeleteSecurity removes a security that no holding references, along with
// its preferences and price history.
func (s *securityService) DeleteSecurity(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var security models.Security
		if err := tx.Where("id = ?", id).First(&security).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrSecurityNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		var holdings int64
		if err := tx.Model(&models.Holding{}).Where("security_id = ?", id).Count(&holdings).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if holdings > 0 {
			return apperrors.ErrSecurityInUse
		}

		for _, model := range []interface{}{&models.SecurityPreference{}, &models.SecurityPrice{}} {
			if err := tx.Unscoped().Where("security_id = ?", id).Delete(model).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		if err := tx.Unscoped().Delete(&security).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// ListRefreshable returns the securities whose prices are fetched automatically.
func (s *securityService) ListRefreshable() ([]models.Security, error) {
	var securities []models.Security
	if err := s.db.Where("is_public = ? AND auto_update_price = ?", true, true).
		Order("ticker ASC").Find(&securities).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return securities, nil
}

// RecordPrices appends price observations to the history, skipping
// duplicates, and moves each security's last price and its holdings' prices
// forward when the observation is the newest seen.
func (s *securityService) RecordPrices(prices []SecurityPriceInput) (int, error) {
	if len(prices) == 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Prices array is empty")
	}
	for _, p := range prices {
		if !p.Price.IsPositive() {
			return 0, apperrors.ErrInvalidPrice
		}
	}

	count := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, p := range prices {
			var security models.Security
			if err := tx.Where("id = ?", p.SecurityID).First(&security).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.WithMessage(apperrors.ErrSecurityNotFound, "Security not found: "+p.SecurityID)
				}
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}

			recordedAt := p.RecordedAt.UTC()
			if recordedAt.IsZero() {
				recordedAt = time.Now().UTC()
			}
			sp := models.SecurityPrice{
				SecurityID: p.SecurityID,
				Price:      p.Price,
				Source:     p.Source,
				RecordedAt: recordedAt,
			}
			result := tx.Where("security_id = ? AND recorded_at = ?", sp.SecurityID, sp.RecordedAt).FirstOrCreate(&sp)
			if result.Error != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
			}
			if result.RowsAffected > 0 {
				count++
			}

			if security.LastPriceAt != nil && security.LastPriceAt.After(recordedAt) {
				continue
			}
			if err := tx.Model(&security).Updates(map[string]interface{}{
				"last_price":    p.Price,
				"last_price_at": recordedAt,
			}).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if err := tx.Model(&models.Holding{}).Where("security_id = ?", p.SecurityID).
				Update("price", p.Price).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// GetPriceHistory returns paginated price history for a security within a date range.
func (s *securityService) GetPriceHistory(
	securityID string,
	from, to time.Time,
	page pagination.PageRequest,
) (*pagination.PageResponse[models.SecurityPrice], error) {
	if _, err := s.GetSecurityByID(securityID); err != nil {
		return nil, err
	}

	query := s.db.Model(&models.SecurityPrice{}).
		Where("security_id = ? AND recorded_at >= ? AND recorded_at <= ?", securityID, from, to)
	result, err := pagination.Find[models.SecurityPrice](query, page, "recorded_at DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// LatestPrices returns the last known price of each security.
func (s *securityService) LatestPrices(ctx context.Context, securityIDs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(securityIDs))
	if len(securityIDs) == 0 {
		return out, nil
	}

	var securities []models.Security
	if err := s.db.WithContext(ctx).Select("id", "last_price").
		Where("id IN ?", securityIDs).Find(&securities).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for _, sec := range securities {
		if sec.LastPrice.IsPositive() {
			out[sec.ID] = sec.LastPrice
		}
	}
	return out, nil
}

// isUniqueConstraintError checks if a GORM error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}

// LookupTicker asks the market-data provider for a symbol's name, price and
// listing currency.
func (s *securityService) LookupTicker(ctx context.Context, ticker string) (*pricing.TickerInfo, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Ticker is required")
	}
	if s.lookup == nil {
		return nil, apperrors.ErrTickerLookupUnavailable
	}

	info, err := s.lookup.Lookup(ctx, ticker)
	if err != nil {
		if errors.Is(err, pricing.ErrSymbolNotFound) {
			return nil, apperrors.ErrTickerNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrTickerLookupFailed, err)
	}
	return info, nil
}
