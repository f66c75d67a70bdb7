package pricing

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Options selects and configures a Source.
type Options struct {
	// Provider is one of "yahoo", "alpaca", "spreadsheet" or "manual".
	Provider        string
	SheetLocation   string
	AlpacaAPIKey    string
	AlpacaAPISecret string
	CacheTTL        time.Duration
	HTTPClient      *http.Client
}

// New builds the configured source. Remote sources are wrapped in a
// CachedSource; manual prices are read straight from store.
func New(opts Options, store PriceStore) (Source, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	switch strings.ToLower(opts.Provider) {
	case "", "yahoo":
		return NewCachedSource(NewYahooSource(client), opts.CacheTTL), nil
	case "alpaca":
		return NewCachedSource(NewAlpacaSource(opts.AlpacaAPIKey, opts.AlpacaAPISecret), opts.CacheTTL), nil
	case "spreadsheet":
		if opts.SheetLocation == "" {
			return nil, fmt.Errorf("spreadsheet price source requires a sheet location")
		}
		return NewCachedSource(NewSpreadsheetSource(opts.SheetLocation, client), opts.CacheTTL), nil
	case "manual":
		if store == nil {
			return nil, fmt.Errorf("manual price source requires a price store")
		}
		return NewManualSource(store), nil
	}
	return nil, fmt.Errorf("unknown price source %q", opts.Provider)
}
