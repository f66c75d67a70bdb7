package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceStore returns the most recently recorded price per security id.
type PriceStore interface {
	LatestPrices(ctx context.Context, securityIDs []string) (map[string]decimal.Decimal, error)
}

// ManualSource serves prices that users or the price pipeline recorded.
type ManualSource struct {
	store PriceStore
}

// NewManualSource creates a source reading recorded prices from store.
func NewManualSource(store PriceStore) *ManualSource {
	return &ManualSource{store: store}
}

// Name returns the source's display name.
func (s *ManualSource) Name() string { return "Recorded prices" }

// Kind returns KindManual.
func (s *ManualSource) Kind() Kind { return KindManual }

// FetchPrices looks up the latest recorded price of each security.
func (s *ManualSource) FetchPrices(ctx context.Context, securities []Security) ([]Quote, []FetchError) {
	if len(securities) == 0 {
		return nil, nil
	}

	ids := make([]string, len(securities))
	for i, sec := range securities {
		ids[i] = sec.ID
	}
	prices, err := s.store.LatestPrices(ctx, ids)
	if err != nil {
		return nil, allFailed(securities, fmt.Errorf("loading recorded prices: %w", err))
	}

	now := time.Now().UTC()
	var quotes []Quote
	var fetchErrors []FetchError
	for _, sec := range securities {
		price, ok := prices[sec.ID]
		if !ok || !price.IsPositive() {
			fetchErrors = append(fetchErrors, FetchError{SecurityID: sec.ID, Ticker: sec.Ticker, Err: fmt.Errorf("no recorded price")})
			continue
		}
		quotes = append(quotes, Quote{SecurityID: sec.ID, Ticker: sec.Ticker, Price: price, RecordedAt: now})
	}
	return quotes, fetchErrors
}
