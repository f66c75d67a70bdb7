package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrSymbolNotFound is returned by lookups of symbols the provider does not list.
var ErrSymbolNotFound = errors.New("symbol not found")

// TickerInfo describes a listed symbol.
type TickerInfo struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Exchange string          `json:"exchange,omitempty"`
}

// suffixCurrencies maps Yahoo ticker suffixes to listing currencies.
var suffixCurrencies = []struct {
	suffix   string
	currency string
}{
	{".TO", "CAD"},
	{".V", "CAD"},
	{".NE", "CAD"},
	{".CN", "CAD"},
	{".L", "GBP"},
	{".PA", "EUR"},
	{".AS", "EUR"},
	{".DE", "EUR"},
	{".SW", "CHF"},
	{".AX", "AUD"},
}

// CurrencyForTicker infers the listing currency from the ticker's suffix,
// or from the exchange when the ticker has none. Anything else is USD.
func CurrencyForTicker(ticker, exchange string) string {
	sym := strings.ToUpper(yahooSymbol(Security{
		Ticker:   strings.TrimSpace(ticker),
		Exchange: strings.TrimSpace(exchange),
	}))
	for _, sc := range suffixCurrencies {
		if strings.HasSuffix(sym, sc.suffix) {
			return sc.currency
		}
	}
	return "USD"
}
