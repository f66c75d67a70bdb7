package services

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "folio/internal/errors"
	"folio/internal/logger"
	"folio/internal/models"
	"folio/internal/rebalance"
	"folio/internal/validator"
)

const (
	// DefaultRateFreshness is how long a stored rate is used before refetching.
	DefaultRateFreshness = 24 * time.Hour

	defaultRateListLimit = 50
	maxRateListLimit     = 500
)

// exchangeRateService stores observed rates and builds rate tables for
// planning, fetching missing pairs on demand.
type exchangeRateService struct {
	db        *gorm.DB
	fetcher   RateFetcher
	freshness time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// NewExchangeRateService creates a new ExchangeRateServicer. A nil fetcher
// disables fetching; stored and default rates are still served.
func NewExchangeRateService(db *gorm.DB, fetcher RateFetcher, freshness, timeout time.Duration) ExchangeRateServicer {
	if freshness <= 0 {
		freshness = DefaultRateFreshness
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &exchangeRateService{
		db:        db,
		fetcher:   fetcher,
		freshness: freshness,
		timeout:   timeout,
		now:       time.Now,
	}
}

// latestRates loads the newest stored rate per pair, optionally only those
// recorded at or after since.
func (s *exchangeRateService) latestRates(since *time.Time) (rebalance.RateTable, error) {
	q := s.db.Model(&models.ExchangeRate{}).Order("recorded_at DESC")
	if since != nil {
		q = q.Where("recorded_at >= ?", *since)
	}

	var rows []models.ExchangeRate
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	table := make(rebalance.RateTable)
	for _, r := range rows {
		key := rebalance.RateKey(r.FromCurrency, r.ToCurrency)
		if _, ok := table[key]; !ok && r.Rate.IsPositive() {
			table[key] = r.Rate
		}
	}
	return table, nil
}

// RateTable returns rates converting each of currencies into base. Fresh
// stored rates are used first; missing pairs are fetched and stored. Pairs
// that still cannot be resolved fall back to the newest stored rate, and
// conversion itself falls back to the built-in defaults.
func (s *exchangeRateService) RateTable(ctx context.Context, base string, currencies []string) (rebalance.RateTable, error) {
	base = strings.ToUpper(base)
	since := s.now().Add(-s.freshness)
	table, err := s.latestRates(&since)
	if err != nil {
		return nil, err
	}

	missing := table.Missing(currencies, base)
	if len(missing) == 0 {
		return table, nil
	}

	for _, c := range missing {
		rate, err := s.fetch(ctx, c, base)
		if err != nil {
			logger.Get().Warnw("exchange rate fetch failed", "from", c, "to", base, "error", err)
			continue
		}
		table[rebalance.RateKey(c, base)] = rate.Rate
	}

	if missing = table.Missing(currencies, base); len(missing) == 0 {
		return table, nil
	}

	stale, err := s.latestRates(nil)
	if err != nil {
		return nil, err
	}
	for _, c := range missing {
		if r, ok := stale.Lookup(c, base); ok {
			logger.Get().Infow("using stale exchange rate", "from", c, "to", base, "rate", r.String())
			table[rebalance.RateKey(c, base)] = r
		} else {
			logger.Get().Warnw("no exchange rate available, using default", "from", c, "to", base)
		}
	}
	return table, nil
}

// fetch obtains a live rate and stores it.
func (s *exchangeRateService) fetch(ctx context.Context, from, to string) (*models.ExchangeRate, error) {
	if s.fetcher == nil {
		return nil, apperrors.WithMessage(apperrors.ErrExchangeRateUnavailable, "no rate source configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rate, err := s.fetcher.FetchRate(ctx, from, to)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrExchangeRateUnavailable, err)
	}
	return s.store(from, to, rate, s.fetcher.Source())
}

func (s *exchangeRateService) store(from, to string, rate decimal.Decimal, source string) (*models.ExchangeRate, error) {
	row := &models.ExchangeRate{
		FromCurrency: strings.ToUpper(from),
		ToCurrency:   strings.ToUpper(to),
		Rate:         rate,
		Source:       source,
		RecordedAt:   s.now().UTC(),
	}
	if err := s.db.Create(row).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return row, nil
}

// ListRates returns the most recently recorded rates, newest first.
func (s *exchangeRateService) ListRates(limit int) ([]models.ExchangeRate, error) {
	if limit <= 0 {
		limit = defaultRateListLimit
	}
	if limit > maxRateListLimit {
		limit = maxRateListLimit
	}

	var rows []models.ExchangeRate
	if err := s.db.Order("recorded_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return rows, nil
}

// AddRate records a manually entered rate.
func (s *exchangeRateService) AddRate(from, to string, rate decimal.Decimal) (*models.ExchangeRate, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if !validator.ValidCurrency(from) || !validator.ValidCurrency(to) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "currencies must be ISO 4217 codes")
	}
	if from == to {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "currencies must differ")
	}
	if !rate.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "rate must be positive")
	}
	return s.store(from, to, rate, models.RateSourceManual)
}

// RefreshRates fetches a live rate into base for every currency, regardless
// of what is stored. Any failed pair fails the refresh.
func (s *exchangeRateService) RefreshRates(ctx context.Context, base string, currencies []string) ([]models.ExchangeRate, error) {
	base = strings.ToUpper(base)
	seen := map[string]bool{base: true}

	var out []models.ExchangeRate
	for _, c := range currencies {
		c = strings.ToUpper(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true

		row, err := s.fetch(ctx, c, base)
		if err != nil {
			return out, err
		}
		out = append(out, *row)
	}
	return out, nil
}
