// Package pricing fetches current security prices. A Source is one of three
// kinds: market-data APIs, a user-maintained spreadsheet, or manually
// recorded prices.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies where a Source gets its prices.
type Kind string

const (
	KindMarketData  Kind = "market-data"
	KindSpreadsheet Kind = "spreadsheet"
	KindManual      Kind = "manual"
)

// Security carries the fields a source needs to quote a security.
type Security struct {
	ID       string
	Ticker   string
	Exchange string
	Currency string
}

// Quote is a successfully fetched unit price.
type Quote struct {
	SecurityID string
	Ticker     string
	Price      decimal.Decimal
	RecordedAt time.Time
}

// FetchError is a failed fetch for one security.
type FetchError struct {
	SecurityID string
	Ticker     string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch price for %s (%s): %v", e.Ticker, e.SecurityID, e.Err)
}

// Source fetches current prices for a set of securities.
type Source interface {
	// Name returns a display name such as "Yahoo Finance".
	Name() string

	// Kind reports the source's category.
	Kind() Kind

	// FetchPrices returns as many quotes as it can along with per-security
	// errors for the rest. It must honor ctx cancellation.
	FetchPrices(ctx context.Context, securities []Security) ([]Quote, []FetchError)
}

// allFailed builds one FetchError per security sharing err.
func allFailed(securities []Security, err error) []FetchError {
	out := make([]FetchError, len(securities))
	for i, sec := range securities {
		out[i] = FetchError{SecurityID: sec.ID, Ticker: sec.Ticker, Err: err}
	}
	return out
}
