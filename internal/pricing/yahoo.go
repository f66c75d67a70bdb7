package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	yahooQuoteURL = "https://query1.finance.yahoo.com/v7/finance/quote"
	yahooBatchMax = 50
	// YahooUserAgent is sent on every Yahoo request; the API rejects blank agents.
	YahooUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
)

// exchangeSuffixes maps exchange codes to Yahoo ticker suffixes.
var exchangeSuffixes = map[string]string{
	"TSX":      ".TO",
	"TSXV":     ".V",
	"NEO":      ".NE",
	"CSE":      ".CN",
	"LSE":      ".L",
	"ASX":      ".AX",
	"XETRA":    ".DE",
	"SIX":      ".SW",
	"EURONEXT": ".PA",
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuoteResult `json:"result"`
		Error  *json.RawMessage   `json:"error"`
	} `json:"quoteResponse"`
}

type yahooQuoteResult struct {
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	LongName           string  `json:"longName,omitempty"`
	ShortName          string  `json:"shortName,omitempty"`
	Currency           string  `json:"currency,omitempty"`
	FullExchangeName   string  `json:"fullExchangeName,omitempty"`
}

// YahooSource is a market-data source backed by the Yahoo Finance quote API.
type YahooSource struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
}

// NewYahooSource creates a Yahoo Finance source.
func NewYahooSource(httpClient *http.Client) *YahooSource {
	return &YahooSource{httpClient: httpClient, baseURL: yahooQuoteURL}
}

// Name returns the source's display name.
func (s *YahooSource) Name() string { return "Yahoo Finance" }

// Kind returns KindMarketData.
func (s *YahooSource) Kind() Kind { return KindMarketData }

// yahooSymbol appends the exchange suffix unless the ticker already has one.
func yahooSymbol(sec Security) string {
	if strings.Contains(sec.Ticker, ".") {
		return sec.Ticker
	}
	if suffix, ok := exchangeSuffixes[strings.ToUpper(sec.Exchange)]; ok {
		return sec.Ticker + suffix
	}
	return sec.Ticker
}

// FetchPrices fetches quotes in batches of yahooBatchMax symbols.
func (s *YahooSource) FetchPrices(ctx context.Context, securities []Security) ([]Quote, []FetchError) {
	if len(securities) == 0 {
		return nil, nil
	}

	bySymbol := make(map[string][]Security, len(securities))
	symbols := make([]string, 0, len(securities))
	for _, sec := range securities {
		sym := yahooSymbol(sec)
		if _, seen := bySymbol[sym]; !seen {
			symbols = append(symbols, sym)
		}
		bySymbol[sym] = append(bySymbol[sym], sec)
	}

	var quotes []Quote
	var fetchErrors []FetchError
	now := time.Now().UTC()

	for i := 0; i < len(symbols); i += yahooBatchMax {
		end := min(i+yahooBatchMax, len(symbols))
		q, fe := s.fetchBatch(ctx, symbols[i:end], bySymbol, now)
		quotes = append(quotes, q...)
		fetchErrors = append(fetchErrors, fe...)
	}
	return quotes, fetchErrors
}

func (s *YahooSource) fetchBatch(ctx context.Context, symbols []string, bySymbol map[string][]Security, now time.Time) ([]Quote, []FetchError) {
	var batch []Security
	for _, sym := range symbols {
		batch = append(batch, bySymbol[sym]...)
	}

	results, err := s.quote(ctx, symbols)
	if err != nil {
		return nil, allFailed(batch, err)
	}

	found := make(map[string]float64, len(results))
	for _, r := range results {
		found[r.Symbol] = r.RegularMarketPrice
	}

	var quotes []Quote
	var fetchErrors []FetchError
	for _, sym := range symbols {
		price, ok := found[sym]
		for _, sec := range bySymbol[sym] {
			switch {
			case !ok:
				fetchErrors = append(fetchErrors, FetchError{SecurityID: sec.ID, Ticker: sec.Ticker, Err: fmt.Errorf("symbol %s not found in response", sym)})
			case price <= 0:
				fetchErrors = append(fetchErrors, FetchError{SecurityID: sec.ID, Ticker: sec.Ticker, Err: fmt.Errorf("non-positive price for %s", sym)})
			default:
				quotes = append(quotes, Quote{
					SecurityID: sec.ID,
					Ticker:     sec.Ticker,
					Price:      decimal.NewFromFloat(price),
					RecordedAt: now,
				})
			}
		}
	}
	return quotes, fetchErrors
}

// quote calls the quote endpoint for symbols.
func (s *YahooSource) quote(ctx context.Context, symbols []string) ([]yahooQuoteResult, error) {
	url := s.baseURL + "?symbols=" + strings.Join(symbols, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", YahooUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body yahooQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return body.QuoteResponse.Result, nil
}

// Lookup describes a single Yahoo symbol: its name, current price and
// listing currency.
func (s *YahooSource) Lookup(ctx context.Context, symbol string) (*TickerInfo, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	results, err := s.quote(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		info := &TickerInfo{
			Symbol:   symbol,
			Name:     r.LongName,
			Price:    decimal.NewFromFloat(r.RegularMarketPrice),
			Currency: strings.ToUpper(r.Currency),
			Exchange: r.FullExchangeName,
		}
		if info.Name == "" {
			info.Name = r.ShortName
		}
		if info.Currency == "" {
			info.Currency = CurrencyForTicker(symbol, "")
		}
		return info, nil
	}
	return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
}
