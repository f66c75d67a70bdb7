// Package fx fetches currency exchange rates from Yahoo Finance.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"folio/internal/pricing"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// yahooChartResponse is the subset of the v8 chart payload used for forex pairs.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooRates fetches spot rates for currency pairs such as USDCAD=X.
type YahooRates struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
}

// NewYahooRates creates a rate fetcher.
func NewYahooRates(httpClient *http.Client) *YahooRates {
	return &YahooRates{httpClient: httpClient, baseURL: yahooChartURL}
}

// Source names the origin stored alongside fetched rates.
func (y *YahooRates) Source() string { return "yahoo" }

// FetchRate returns how many units of to one unit of from buys.
func (y *YahooRates) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	ticker := from + to + "=X"
	url := y.baseURL + "/" + ticker + "?interval=1d&range=1d"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("building forex request: %w", err)
	}
	req.Header.Set("User-Agent", pricing.YahooUserAgent)

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("forex http request for %s: %w", ticker, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("forex request for %s: unexpected status %d", ticker, resp.StatusCode)
	}

	var chart yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return decimal.Zero, fmt.Errorf("decoding forex response for %s: %w", ticker, err)
	}
	if chart.Chart.Error != nil {
		return decimal.Zero, fmt.Errorf("forex chart error for %s: %s: %s", ticker, chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return decimal.Zero, fmt.Errorf("no forex results for %s", ticker)
	}

	rate := chart.Chart.Result[0].Meta.RegularMarketPrice
	if rate <= 0 {
		return decimal.Zero, fmt.Errorf("invalid forex rate for %s: %f", ticker, rate)
	}
	return decimal.NewFromFloat(rate), nil
}
