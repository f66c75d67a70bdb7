package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// latestTrader is the slice of the Alpaca market data client this source uses.
type latestTrader interface {
	GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error)
}

// AlpacaSource is a market-data source backed by Alpaca's latest-trade endpoint.
// It covers US listings only.
type AlpacaSource struct {
	client latestTrader
}

// NewAlpacaSource creates an Alpaca source. Empty credentials fall back to
// the APCA_API_KEY_ID / APCA_API_SECRET_KEY environment variables.
func NewAlpacaSource(apiKey, apiSecret string) *AlpacaSource {
	return &AlpacaSource{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
	}
}

// Name returns the source's display name.
func (s *AlpacaSource) Name() string { return "Alpaca" }

// Kind returns KindMarketData.
func (s *AlpacaSource) Kind() Kind { return KindMarketData }

// FetchPrices requests the latest trade for every ticker in one call.
func (s *AlpacaSource) FetchPrices(ctx context.Context, securities []Security) ([]Quote, []FetchError) {
	if len(securities) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, allFailed(securities, err)
	}

	symbols := make([]string, 0, len(securities))
	seen := make(map[string]bool)
	for _, sec := range securities {
		if !seen[sec.Ticker] {
			seen[sec.Ticker] = true
			symbols = append(symbols, sec.Ticker)
		}
	}

	trades, err := s.client.GetLatestTrades(symbols, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, allFailed(securities, fmt.Errorf("alpaca latest trades: %w", err))
	}

	var quotes []Quote
	var fetchErrors []FetchError
	for _, sec := range securities {
		trade, ok := trades[sec.Ticker]
		if !ok || trade.Price <= 0 {
			fetchErrors = append(fetchErrors, FetchError{SecurityID: sec.ID, Ticker: sec.Ticker, Err: fmt.Errorf("no trade for %s", sec.Ticker)})
			continue
		}
		recorded := trade.Timestamp
		if recorded.IsZero() {
			recorded = time.Now().UTC()
		}
		quotes = append(quotes, Quote{
			SecurityID: sec.ID,
			Ticker:     sec.Ticker,
			Price:      decimal.NewFromFloat(trade.Price),
			RecordedAt: recorded,
		})
	}
	return quotes, fetchErrors
}
