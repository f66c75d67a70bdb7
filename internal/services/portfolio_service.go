package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	apperrors "folio/internal/errors"
	"folio/internal/logger"
	"folio/internal/models"
	"folio/internal/pagination"
	"folio/internal/rebalance"
)

// portfolioService builds portfolio views and value snapshots.
type portfolioService struct {
	db    *gorm.DB
	rates ExchangeRateServicer
}

// NewPortfolioService creates a new PortfolioServicer.
func NewPortfolioService(db *gorm.DB, rates ExchangeRateServicer) PortfolioServicer {
	return &portfolioService{db: db, rates: rates}
}

// rateTableFor resolves the rates a portfolio needs, degrading to the
// built-in defaults when the rate store is unusable.
func rateTableFor(ctx context.Context, rates ExchangeRateServicer, data *portfolioData) rebalance.RateTable {
	if rates == nil {
		return rebalance.DefaultRates()
	}
	table, err := rates.RateTable(ctx, data.user.BaseCurrency, data.currencies())
	if err != nil {
		logger.Get().Warnw("exchange rates unavailable, using defaults", "user_id", data.user.ID, "error", err)
		return rebalance.DefaultRates()
	}
	return table
}

// GetSummary reports the portfolio's value per asset class and per account,
// compared with the user's targets.
func (s *portfolioService) GetSummary(ctx context.Context, userID string) (*PortfolioSummary, error) {
	data, err := loadPortfolio(s.db, userID)
	if err != nil {
		return nil, err
	}
	snap := data.snapshot(rateTableFor(ctx, s.rates, data))
	alloc := rebalance.Allocate(snap.Accounts, snap.Rates, snap.BaseCurrency)

	// Held classes without a target are reported against a zero target.
	targets := append([]rebalance.Target(nil), snap.Targets...)
	targeted := make(map[string]bool, len(targets))
	for _, t := range targets {
		targeted[t.AssetClassID] = true
	}
	for _, acc := range snap.Accounts {
		for _, h := range acc.Holdings {
			if h.AssetClassID != "" && !targeted[h.AssetClassID] {
				targeted[h.AssetClassID] = true
				targets = append(targets, rebalance.Target{AssetClassID: h.AssetClassID})
			}
		}
	}

	rows := rebalance.Compare(alloc, targets)
	rebalance.SortByCurrentPct(rows)

	names, err := s.classNames()
	if err != nil {
		return nil, err
	}

	summary := &PortfolioSummary{
		BaseCurrency: snap.BaseCurrency,
		Classes:      make([]ClassSummary, 0, len(rows)),
		Accounts:     make([]AccountSummary, 0, len(snap.Accounts)),
	}
	for _, r := range rows {
		summary.Classes = append(summary.Classes, ClassSummary{
			AssetClassID:   r.AssetClassID,
			AssetClassName: names[r.AssetClassID],
			CurrentValue:   r.CurrentValue,
			CurrentPct:     r.CurrentPct,
			TargetPct:      r.TargetPct,
			TargetValue:    r.TargetValue,
			DollarDiff:     r.DollarDiff,
			PercentageDiff: r.PercentageDiff,
			Balanced:       r.PercentageDiff.Abs().LessThanOrEqual(snap.BalancedThreshold),
		})
	}

	for _, acc := range snap.Accounts {
		holdings := rebalance.AccountValue(acc, snap.Rates, snap.BaseCurrency)
		cash := snap.Rates.Convert(acc.Cash, acc.Currency, snap.BaseCurrency)
		summary.Accounts = append(summary.Accounts, AccountSummary{
			AccountID:     acc.ID,
			Name:          acc.Name,
			Currency:      acc.Currency,
			HoldingsValue: holdings,
			CashBalance:   cash,
			TotalValue:    holdings.Add(cash),
		})
		summary.TotalCash = summary.TotalCash.Add(cash)
	}
	summary.TotalValue = alloc.Total.Add(summary.TotalCash)

	return summary, nil
}

func (s *portfolioService) classNames() (map[string]string, error) {
	var classes []models.AssetClass
	if err := s.db.Select("id", "name").Find(&classes).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	names := make(map[string]string, len(classes))
	for _, c := range classes {
		names[c.ID] = c.Name
	}
	return names, nil
}

// computeSnapshot values a portfolio snapshot in base currency.
func computeSnapshot(snap rebalance.Snapshot, recordedAt time.Time) *models.PortfolioSnapshot {
	holdings, cash := totals(snap)
	return &models.PortfolioSnapshot{
		UserID:        snap.UserID,
		RecordedAt:    recordedAt,
		BaseCurrency:  snap.BaseCurrency,
		HoldingsValue: holdings,
		CashBalance:   cash,
		TotalValue:    holdings.Add(cash),
	}
}

// ComputeAndRecordSnapshots stores a value snapshot for every user with at
// least one account. A snapshot already stored for the same user and time
// is overwritten.
func (s *portfolioService) ComputeAndRecordSnapshots(ctx context.Context, recordedAt time.Time) (int, error) {
	var userIDs []string
	if err := s.db.Model(&models.Account{}).Distinct("user_id").Pluck("user_id", &userIDs).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	count := 0
	for _, userID := range userIDs {
		data, err := loadPortfolio(s.db, userID)
		if err != nil {
			return count, err
		}
		snapshot := computeSnapshot(data.snapshot(rateTableFor(ctx, s.rates, data)), recordedAt)

		var existing models.PortfolioSnapshot
		result := s.db.Where("user_id = ? AND recorded_at = ?", userID, recordedAt).First(&existing)
		if result.Error == nil {
			if err := s.db.Model(&existing).Updates(map[string]interface{}{
				"base_currency":  snapshot.BaseCurrency,
				"holdings_value": snapshot.HoldingsValue,
				"cash_balance":   snapshot.CashBalance,
				"total_value":    snapshot.TotalValue,
			}).Error; err != nil {
				return count, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		} else {
			if err := s.db.Create(snapshot).Error; err != nil {
				return count, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		count++
	}

	return count, nil
}

// GetSnapshots returns paginated snapshots for a user within a date range.
func (s *portfolioService) GetSnapshots(
	userID string,
	from, to time.Time,
	page pagination.PageRequest,
) (*pagination.PageResponse[models.PortfolioSnapshot], error) {
	query := s.db.Model(&models.PortfolioSnapshot{}).
		Where("user_id = ? AND recorded_at >= ? AND recorded_at <= ?", userID, from, to)
	result, err := pagination.Find[models.PortfolioSnapshot](query, page, "recorded_at DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}
