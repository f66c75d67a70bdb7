package rebalance

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// RateTable maps "FROM_TO_TO" keys to the multiplier that converts an amount
// in FROM into TO.
type RateTable map[string]decimal.Decimal

// RateKey builds the table key for a currency pair.
func RateKey(from, to string) string {
	return strings.ToUpper(from) + "_TO_" + strings.ToUpper(to)
}

var defaultUSDToCAD = decimal.RequireFromString("1.35")

// DefaultRates is the fallback table used when no stored or fetched rate exists.
func DefaultRates() RateTable {
	return RateTable{
		RateKey("USD", "CAD"): defaultUSDToCAD,
		RateKey("CAD", "USD"): decimal.NewFromInt(1).Div(defaultUSDToCAD),
	}
}

// Lookup returns the rate converting from into to. Same-currency pairs are
// always 1. A missing direct entry is answered by the inverse of the reverse
// entry, then by crossing through a currency both sides are quoted against.
func (t RateTable) Lookup(from, to string) (decimal.Decimal, bool) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), true
	}
	if r, ok := t.direct(from, to); ok {
		return r, true
	}

	pivots := make([]string, 0, len(t))
	for key := range t {
		parts := strings.SplitN(key, "_TO_", 2)
		if len(parts) != 2 {
			continue
		}
		for _, c := range parts {
			if c != from && c != to {
				pivots = append(pivots, c)
			}
		}
	}
	sort.Strings(pivots)
	for _, p := range pivots {
		a, ok := t.direct(from, p)
		if !ok {
			continue
		}
		if b, ok := t.direct(p, to); ok {
			return a.Mul(b), true
		}
	}
	return decimal.Zero, false
}

func (t RateTable) direct(from, to string) (decimal.Decimal, bool) {
	if r, ok := t[RateKey(from, to)]; ok && r.IsPositive() {
		return r, true
	}
	if r, ok := t[RateKey(to, from)]; ok && r.IsPositive() {
		return decimal.NewFromInt(1).Div(r), true
	}
	return decimal.Zero, false
}

// Convert converts amount between currencies and never fails. Pairs missing
// from the table fall back to DefaultRates and finally to identity.
func (t RateTable) Convert(amount decimal.Decimal, from, to string) decimal.Decimal {
	if strings.EqualFold(from, to) {
		return amount
	}
	if r, ok := t.Lookup(from, to); ok {
		return amount.Mul(r)
	}
	if r, ok := DefaultRates().Lookup(from, to); ok {
		return amount.Mul(r)
	}
	return amount
}

// Missing lists the currencies that have no usable rate into base.
func (t RateTable) Missing(currencies []string, base string) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, c := range currencies {
		c = strings.ToUpper(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		if _, ok := t.Lookup(c, base); !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// Merge returns a new table holding t's entries overridden by other's.
func (t RateTable) Merge(other RateTable) RateTable {
	out := make(RateTable, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
