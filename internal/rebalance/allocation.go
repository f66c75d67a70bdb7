package rebalance

import (
	"github.com/shopspring/decimal"
)

// Allocation is the portfolio's market value per asset class in the base
// currency, the matching percentages, and the total.
type Allocation struct {
	Values      map[string]decimal.Decimal
	Percentages map[string]decimal.Decimal
	Total       decimal.Decimal
}

// Value returns the class's value, zero when the class holds nothing.
func (a Allocation) Value(assetClassID string) decimal.Decimal {
	return a.Values[assetClassID]
}

// Percent returns the class's share of the total, zero when absent.
func (a Allocation) Percent(assetClassID string) decimal.Decimal {
	return a.Percentages[assetClassID]
}

// Allocate sums every holding's market value into its asset class after
// converting to base. Holdings without an asset class are left out of both
// the class values and the total. Percentages are all zero when the total is zero.
func Allocate(accounts []Account, rates RateTable, base string) Allocation {
	alloc := Allocation{
		Values:      make(map[string]decimal.Decimal),
		Percentages: make(map[string]decimal.Decimal),
	}

	for _, acc := range accounts {
		for _, h := range acc.Holdings {
			if h.AssetClassID == "" {
				continue
			}
			v := rates.Convert(h.MarketValue(), h.Currency, base)
			alloc.Values[h.AssetClassID] = alloc.Values[h.AssetClassID].Add(v)
			alloc.Total = alloc.Total.Add(v)
		}
	}

	for class, v := range alloc.Values {
		if alloc.Total.IsPositive() {
			alloc.Percentages[class] = v.Div(alloc.Total).Mul(hundred)
		} else {
			alloc.Percentages[class] = decimal.Zero
		}
	}
	return alloc
}

// AccountValue is the base-currency market value of an account's holdings,
// excluding cash.
func AccountValue(acc Account, rates RateTable, base string) decimal.Decimal {
	total := decimal.Zero
	for _, h := range acc.Holdings {
		total = total.Add(rates.Convert(h.MarketValue(), h.Currency, base))
	}
	return total
}

// AccountTotal is AccountValue plus the account's cash in base currency.
func AccountTotal(acc Account, rates RateTable, base string) decimal.Decimal {
	return AccountValue(acc, rates, base).Add(rates.Convert(acc.Cash, acc.Currency, base))
}
