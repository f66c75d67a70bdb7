package rebalance

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRateTable_Lookup(t *testing.T) {
	table := RateTable{
		RateKey("USD", "CAD"): d("1.35"),
		RateKey("EUR", "CAD"): d("1.5"),
	}

	t.Run("same_currency", func(t *testing.T) {
		r, ok := table.Lookup("cad", "CAD")
		if !ok || !r.Equal(decimal.NewFromInt(1)) {
			t.Errorf("expected 1, got %s (ok=%v)", r, ok)
		}
	})

	t.Run("direct", func(t *testing.T) {
		r, ok := table.Lookup("usd", "cad")
		if !ok || !r.Equal(d("1.35")) {
			t.Errorf("expected 1.35, got %s (ok=%v)", r, ok)
		}
	})

	t.Run("inverse", func(t *testing.T) {
		r, ok := table.Lookup("CAD", "USD")
		if !ok {
			t.Fatal("expected inverse rate")
		}
		if !r.Equal(decimal.NewFromInt(1).Div(d("1.35"))) {
			t.Errorf("expected 1/1.35, got %s", r)
		}
	})

	t.Run("cross_through_pivot", func(t *testing.T) {
		r, ok := table.Lookup("USD", "EUR")
		if !ok {
			t.Fatal("expected cross rate through CAD")
		}
		if !r.Round(6).Equal(d("0.9")) {
			t.Errorf("expected 0.9, got %s", r)
		}
	})

	t.Run("unknown_pair", func(t *testing.T) {
		if _, ok := table.Lookup("GBP", "JPY"); ok {
			t.Error("expected no rate for GBP/JPY")
		}
	})

	t.Run("non_positive_entry_ignored", func(t *testing.T) {
		bad := RateTable{RateKey("USD", "CAD"): decimal.Zero}
		if _, ok := bad.Lookup("USD", "CAD"); ok {
			t.Error("a zero rate must not be usable")
		}
	})
}

func TestRateTable_Convert(t *testing.T) {
	t.Run("uses_table", func(t *testing.T) {
		table := RateTable{RateKey("USD", "CAD"): d("1.25")}
		got := table.Convert(d("100"), "USD", "CAD")
		if !got.Equal(d("125")) {
			t.Errorf("expected 125, got %s", got)
		}
	})

	t.Run("falls_back_to_defaults", func(t *testing.T) {
		got := RateTable{}.Convert(d("100"), "USD", "CAD")
		if !got.Equal(d("135")) {
			t.Errorf("expected default-rate conversion of 135, got %s", got)
		}
	})

	t.Run("identity_when_nothing_known", func(t *testing.T) {
		got := RateTable{}.Convert(d("100"), "GBP", "JPY")
		if !got.Equal(d("100")) {
			t.Errorf("expected identity, got %s", got)
		}
	})

	t.Run("nil_table", func(t *testing.T) {
		var table RateTable
		got := table.Convert(d("10"), "CAD", "CAD")
		if !got.Equal(d("10")) {
			t.Errorf("expected 10, got %s", got)
		}
	})
}

func TestRateTable_Missing(t *testing.T) {
	table := RateTable{RateKey("USD", "CAD"): d("1.35")}

	got := table.Missing([]string{"USD", "eur", "CAD", "EUR", ""}, "CAD")
	if !reflect.DeepEqual(got, []string{"EUR"}) {
		t.Errorf("expected [EUR], got %v", got)
	}
}

func TestRateTable_Merge(t *testing.T) {
	a := RateTable{RateKey("USD", "CAD"): d("1.30"), RateKey("EUR", "CAD"): d("1.5")}
	b := RateTable{RateKey("USD", "CAD"): d("1.40")}

	merged := a.Merge(b)

	if !merged[RateKey("USD", "CAD")].Equal(d("1.40")) {
		t.Errorf("expected override 1.40, got %s", merged[RateKey("USD", "CAD")])
	}
	if !merged[RateKey("EUR", "CAD")].Equal(d("1.5")) {
		t.Error("expected EUR entry to survive the merge")
	}
	if !a[RateKey("USD", "CAD")].Equal(d("1.30")) {
		t.Error("merge must not modify the receiver")
	}
}
