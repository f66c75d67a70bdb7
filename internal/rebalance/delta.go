package rebalance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// minTradablePct is the smallest deviation worth trading when trading costs apply.
var minTradablePct = decimal.RequireFromString("0.1")

// Delta is the deviation of one asset class from its target. DollarDiff is
// positive when the class is underweight. PercentageDiff is current minus
// target, so it is positive when the class is overweight.
type Delta struct {
	AssetClassID   string          `json:"asset_class_id"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	CurrentPct     decimal.Decimal `json:"current_pct"`
	TargetPct      decimal.Decimal `json:"target_pct"`
	TargetValue    decimal.Decimal `json:"target_value"`
	DollarDiff     decimal.Decimal `json:"dollar_diff"`
	PercentageDiff decimal.Decimal `json:"percentage_diff"`
}

// Compare returns one row per target, in target order, whether or not the
// class is within its threshold. Targets need not sum to 100.
func Compare(alloc Allocation, targets []Target) []Delta {
	rows := make([]Delta, 0, len(targets))
	for _, t := range targets {
		current := alloc.Value(t.AssetClassID)
		currentPct := alloc.Percent(t.AssetClassID)
		targetValue := alloc.Total.Mul(t.Percentage).Div(hundred)
		rows = append(rows, Delta{
			AssetClassID:   t.AssetClassID,
			CurrentValue:   current,
			CurrentPct:     currentPct,
			TargetPct:      t.Percentage,
			TargetValue:    targetValue,
			DollarDiff:     targetValue.Sub(current),
			PercentageDiff: currentPct.Sub(t.Percentage),
		})
	}
	return rows
}

// Deltas returns the actionable rows of Compare: those deviating by more
// than threshold percentage points and, when trading costs are enabled, by
// at least minTradablePct.
func Deltas(alloc Allocation, targets []Target, threshold decimal.Decimal, tradingCostsEnabled bool) []Delta {
	var out []Delta
	for _, d := range Compare(alloc, targets) {
		dev := d.PercentageDiff.Abs()
		if dev.LessThanOrEqual(threshold) {
			continue
		}
		if tradingCostsEnabled && dev.LessThan(minTradablePct) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// SortByCurrentPct orders rows by descending current percentage for display.
func SortByCurrentPct(rows []Delta) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CurrentPct.GreaterThan(rows[j].CurrentPct)
	})
}
