package rebalance

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"

	"folio/internal/logger"
	"folio/internal/pricing"
)

func init() {
	logger.Init("test")
}

type fakeSource struct {
	prices map[string]decimal.Decimal
	asked  []string
}

func (f *fakeSource) Name() string       { return "Fake" }
func (f *fakeSource) Kind() pricing.Kind { return pricing.KindMarketData }

func (f *fakeSource) FetchPrices(_ context.Context, securities []pricing.Security) ([]pricing.Quote, []pricing.FetchError) {
	var quotes []pricing.Quote
	var errs []pricing.FetchError
	for _, s := range securities {
		f.asked = append(f.asked, s.Ticker)
		if px, ok := f.prices[s.ID]; ok {
			quotes = append(quotes, pricing.Quote{SecurityID: s.ID, Ticker: s.Ticker, Price: px, RecordedAt: time.Now()})
		} else {
			errs = append(errs, pricing.FetchError{SecurityID: s.ID, Ticker: s.Ticker, Err: context.DeadlineExceeded})
		}
	}
	return quotes, errs
}

var (
	vfv = Security{ID: "vfv", Ticker: "VFV", AssetClassID: "equity", Currency: "CAD", Price: d("100")}
	zag = Security{ID: "zag", Ticker: "ZAG", AssetClassID: "bond", Currency: "CAD", Price: d("10")}
	xbb = Security{ID: "xbb", Ticker: "XBB", AssetClassID: "bond", Currency: "CAD", Price: d("10")}
)

func equityHolding(qty string) Holding {
	return Holding{SecurityID: "vfv", Ticker: "VFV", AssetClassID: "equity", Currency: "CAD", Quantity: d(qty), Price: d("100")}
}

func fiftyFifty() []Target {
	return []Target{
		{AssetClassID: "equity", Percentage: d("50")},
		{AssetClassID: "bond", Percentage: d("50")},
	}
}

// allEquity is a single account holding 1000 CAD of equity against a 50/50 target.
func allEquity(securities ...Security) Snapshot {
	return Snapshot{
		UserID:            "user-1",
		BaseCurrency:      "CAD",
		Accounts:          []Account{{ID: "acc-1", Currency: "CAD", Holdings: []Holding{equityHolding("10")}}},
		Securities:        securities,
		Targets:           fiftyFifty(),
		BalancedThreshold: d("0.5"),
		Rates:             RateTable{},
	}
}

func TestPlanner_Compute(t *testing.T) {
	planner := NewPlanner(nil, time.Second)

	t.Run("sells_overweight_to_fund_underweight", func(t *testing.T) {
		res := planner.Compute(allEquity(vfv, zag))

		if len(res.Deltas) != 2 {
			t.Fatalf("expected 2 deltas, got %d", len(res.Deltas))
		}
		if len(res.Transactions) != 2 {
			t.Fatalf("expected 2 transactions, got %+v", res.Transactions)
		}
		sell, buy := res.Transactions[0], res.Transactions[1]
		if sell.Action != ActionSell || sell.SecurityID != "vfv" || !sell.Quantity.Equal(d("5")) || !sell.Amount.Equal(d("500")) {
			t.Errorf("unexpected sell %+v", sell)
		}
		if buy.Action != ActionBuy || buy.SecurityID != "zag" || !buy.Quantity.Equal(d("50")) || !buy.Amount.Equal(d("500")) {
			t.Errorf("unexpected buy %+v", buy)
		}
		if sell.ExecutionOrder != 1 || buy.ExecutionOrder != 2 {
			t.Errorf("expected execution order 1,2 got %d,%d", sell.ExecutionOrder, buy.ExecutionOrder)
		}
		if sell.IsFinalTrade || !buy.IsFinalTrade {
			t.Error("only the account's last buy is the final trade")
		}
	})

	t.Run("balanced_portfolio_plans_nothing", func(t *testing.T) {
		snap := allEquity(vfv, zag)
		snap.Accounts[0].Holdings = append(snap.Accounts[0].Holdings,
			Holding{SecurityID: "zag", AssetClassID: "bond", Currency: "CAD", Quantity: d("100"), Price: d("10")})

		res := planner.Compute(snap)

		if len(res.Deltas) != 0 || len(res.Transactions) != 0 {
			t.Errorf("expected nothing to do, got %d deltas and %d transactions", len(res.Deltas), len(res.Transactions))
		}
	})

	t.Run("cash_only_portfolio_plans_nothing", func(t *testing.T) {
		snap := allEquity(vfv, zag)
		snap.Accounts[0].Holdings = nil
		snap.Accounts[0].Cash = d("1000")

		if res := planner.Compute(snap); len(res.Transactions) != 0 {
			t.Errorf("expected no trades without invested value, got %+v", res.Transactions)
		}
	})

	t.Run("buys_foreign_security_with_converted_cash", func(t *testing.T) {
		bnd := Security{ID: "bnd", Ticker: "BND", AssetClassID: "bond", Currency: "USD", Price: d("10")}
		snap := allEquity(vfv, bnd)
		snap.Rates = RateTable{RateKey("USD", "CAD"): d("1.25")}

		res := planner.Compute(snap)

		if len(res.Transactions) != 2 {
			t.Fatalf("expected 2 transactions, got %+v", res.Transactions)
		}
		buy := res.Transactions[1]
		if buy.SecurityID != "bnd" || buy.Currency != "USD" {
			t.Fatalf("unexpected buy %+v", buy)
		}
		if !buy.Quantity.Equal(d("40")) || !buy.Amount.Equal(d("400")) {
			t.Errorf("expected 40 units for 400 USD, got %s for %s", buy.Quantity, buy.Amount)
		}
	})

	t.Run("tie_produces_placeholder", func(t *testing.T) {
		res := planner.Compute(allEquity(vfv, zag, xbb))

		if len(res.Transactions) != 2 {
			t.Fatalf("expected 2 transactions, got %+v", res.Transactions)
		}
		buy := res.Transactions[1]
		if !buy.RequiresUserSelection || buy.SecurityID != "" {
			t.Fatalf("expected a placeholder buy, got %+v", buy)
		}
		if !reflect.DeepEqual(buy.AvailableSecurities, []string{"zag", "xbb"}) {
			t.Errorf("unexpected candidates %v", buy.AvailableSecurities)
		}
		if !buy.Amount.Equal(d("500")) || !buy.Quantity.IsZero() {
			t.Errorf("expected 500 placeholder with zero quantity, got %s / %s", buy.Amount, buy.Quantity)
		}
		if !buy.IsFinalTrade {
			t.Error("placeholder should be the final trade")
		}
	})

	t.Run("held_security_breaks_tie", func(t *testing.T) {
		snap := allEquity(vfv, zag, xbb)
		snap.Accounts[0].Holdings = append(snap.Accounts[0].Holdings,
			Holding{SecurityID: "xbb", AssetClassID: "bond", Currency: "CAD", Quantity: d("1"), Price: d("10")})

		res := planner.Compute(snap)

		buy := res.Transactions[len(res.Transactions)-1]
		if buy.Action != ActionBuy || buy.SecurityID != "xbb" {
			t.Fatalf("expected a buy of the held XBB, got %+v", buy)
		}
		// 495 to buy, but selling whole VFV units only raises 400.
		if !buy.Quantity.Equal(d("40")) {
			t.Errorf("expected 40 units, got %s", buy.Quantity)
		}
	})

	t.Run("restriction_picks_allowed_account", func(t *testing.T) {
		snap := allEquity(vfv, zag)
		snap.Accounts = append(snap.Accounts, Account{ID: "acc-2", Currency: "CAD", Cash: d("1000")})
		snap.Restrictions = map[string]Restriction{"zag": NewRestrictedTo("acc-2")}

		res := planner.Compute(snap)

		if len(res.Transactions) != 1 {
			t.Fatalf("expected a single buy, got %+v", res.Transactions)
		}
		buy := res.Transactions[0]
		if buy.AccountID != "acc-2" || buy.SecurityID != "zag" || !buy.Quantity.Equal(d("50")) {
			t.Errorf("unexpected buy %+v", buy)
		}
	})

	t.Run("placement_excludes_account_kind", func(t *testing.T) {
		snap := allEquity(vfv, zag)
		snap.Accounts = append(snap.Accounts, Account{ID: "rrsp", Currency: "CAD", IsRegistered: true, Cash: d("1000")})
		snap.Targets[1].Placement = Placement{ExcludeNonRegistered: true}

		res := planner.Compute(snap)

		if len(res.Transactions) != 1 || res.Transactions[0].AccountID != "rrsp" {
			t.Fatalf("expected the bond buy in the RRSP, got %+v", res.Transactions)
		}
	})

	t.Run("preferred_account_funds_class", func(t *testing.T) {
		snap := allEquity(vfv, zag)
		snap.Accounts = append(snap.Accounts, Account{ID: "tfsa", Type: "TFSA", Currency: "CAD", Cash: d("200")})
		snap.Targets[1].Placement = Placement{PreferredAccountID: "tfsa"}

		res := planner.Compute(snap)

		if len(res.Transactions) != 1 {
			t.Fatalf("expected a single buy, got %+v", res.Transactions)
		}
		buy := res.Transactions[0]
		if buy.AccountID != "tfsa" || !buy.Quantity.Equal(d("20")) {
			t.Errorf("expected 20 ZAG in the TFSA, got %+v", buy)
		}
	})

	t.Run("missing_price_skips_buy", func(t *testing.T) {
		unpriced := zag
		unpriced.Price = decimal.Zero

		res := planner.Compute(allEquity(vfv, unpriced))

		if len(res.Transactions) != 1 || res.Transactions[0].Action != ActionSell {
			t.Fatalf("expected only the sell, got %+v", res.Transactions)
		}
		if res.Transactions[0].IsFinalTrade {
			t.Error("a sell is never the final trade")
		}
	})

	t.Run("no_security_for_class", func(t *testing.T) {
		res := planner.Compute(allEquity(vfv))
		if len(res.Transactions) != 0 {
			t.Errorf("expected no trades, got %+v", res.Transactions)
		}
	})

	t.Run("empty_allow_list_plans_nothing", func(t *testing.T) {
		snap := allEquity(vfv, zag)
		snap.Restrictions = map[string]Restriction{"zag": NewRestrictedTo()}

		res := planner.Compute(snap)

		if len(res.Transactions) != 0 {
			t.Errorf("expected no trades when bonds may not be bought anywhere, got %+v", res.Transactions)
		}
	})

	t.Run("targets_over_100_cap_buy_at_cash", func(t *testing.T) {
		snap := allEquity(vfv, zag)
		snap.Accounts[0].Cash = d("100")
		snap.Targets = []Target{
			{AssetClassID: "equity", Percentage: d("100")},
			{AssetClassID: "bond", Percentage: d("50")},
		}

		res := planner.Compute(snap)

		if len(res.Transactions) != 1 {
			t.Fatalf("expected a single buy, got %+v", res.Transactions)
		}
		buy := res.Transactions[0]
		if buy.Action != ActionBuy || !buy.Amount.Equal(d("100")) || !buy.Quantity.Equal(d("10")) {
			t.Errorf("expected the buy capped at 100 of cash, got %+v", buy)
		}
	})

	t.Run("does_not_mutate_snapshot", func(t *testing.T) {
		snap := allEquity(vfv, zag)

		planner.Compute(snap)

		if !snap.Accounts[0].Holdings[0].Quantity.Equal(d("10")) || !snap.Accounts[0].Cash.IsZero() {
			t.Error("planning must work on a copy of the accounts")
		}
	})
}

func TestPlanner_Plan(t *testing.T) {
	t.Run("refreshes_auto_update_prices", func(t *testing.T) {
		autoVFV := vfv
		autoVFV.AutoUpdate = true
		src := &fakeSource{prices: map[string]decimal.Decimal{"vfv": d("200")}}
		planner := NewPlanner(src, time.Second)

		snap := allEquity(autoVFV, zag)
		snap.Accounts[0].Holdings[0].Quantity = d("5")

		res := planner.Plan(context.Background(), snap)

		if !reflect.DeepEqual(src.asked, []string{"VFV"}) {
			t.Errorf("expected only VFV to be quoted, got %v", src.asked)
		}
		if !res.Prices["vfv"].Equal(d("200")) {
			t.Errorf("expected refreshed price 200, got %s", res.Prices["vfv"])
		}
		sell := res.Transactions[0]
		if !sell.Price.Equal(d("200")) || !sell.Quantity.Equal(d("2")) {
			t.Errorf("expected to sell 2 at 200, got %s at %s", sell.Quantity, sell.Price)
		}
	})

	t.Run("failed_refresh_keeps_stored_price", func(t *testing.T) {
		autoZAG := zag
		autoZAG.AutoUpdate = true
		planner := NewPlanner(&fakeSource{}, time.Second)

		res := planner.Plan(context.Background(), allEquity(vfv, autoZAG))

		if len(res.Prices) != 0 {
			t.Errorf("expected no refreshed prices, got %v", res.Prices)
		}
		buy := res.Transactions[len(res.Transactions)-1]
		if !buy.Price.Equal(d("10")) {
			t.Errorf("expected stored price 10, got %s", buy.Price)
		}
	})

	t.Run("nil_source", func(t *testing.T) {
		planner := NewPlanner(nil, 0)
		if planner.SourceName() != "none" {
			t.Errorf("expected none, got %s", planner.SourceName())
		}
		if res := planner.Plan(context.Background(), allEquity(vfv, zag)); len(res.Transactions) != 2 {
			t.Errorf("expected plan without refresh, got %+v", res.Transactions)
		}
	})
}

func TestPlanner_ComputeInvariants(t *testing.T) {
	xef := Security{ID: "xef", Ticker: "XEF", AssetClassID: "intl", Currency: "CAD", Price: d("20")}
	threeWay := []Target{
		{AssetClassID: "equity", Percentage: d("40")},
		{AssetClassID: "bond", Percentage: d("40")},
		{AssetClassID: "intl", Percentage: d("20")},
	}
	bondHolding := func(qty string) Holding {
		return Holding{SecurityID: "zag", Ticker: "ZAG", AssetClassID: "bond", Currency: "CAD", Quantity: d(qty), Price: d("10")}
	}

	tests := []struct {
		name     string
		accounts []Account
		targets  []Target
		extra    []Security
	}{
		{
			name: "two_accounts_three_classes",
			accounts: []Account{
				{ID: "taxable", Currency: "CAD", Cash: d("50"), Holdings: []Holding{equityHolding("20")}},
				{ID: "rrsp", Currency: "CAD", IsRegistered: true, Cash: d("300"), Holdings: []Holding{bondHolding("50")}},
			},
			targets: threeWay,
		},
		{
			name: "cash_rich_account_with_tie",
			accounts: []Account{
				{ID: "taxable", Currency: "CAD", Cash: d("5000"), Holdings: []Holding{equityHolding("7")}},
				{ID: "tfsa", Currency: "CAD", Cash: d("15"), Holdings: []Holding{bondHolding("3")}},
			},
			targets: threeWay,
			extra:   []Security{xbb},
		},
		{
			name: "overcommitted_targets",
			accounts: []Account{
				{ID: "a", Currency: "CAD", Cash: d("10"), Holdings: []Holding{equityHolding("3"), bondHolding("1")}},
				{ID: "b", Currency: "CAD", IsRegistered: true, Cash: d("999"), Holdings: []Holding{equityHolding("1")}},
			},
			targets: []Target{
				{AssetClassID: "equity", Percentage: d("90")},
				{AssetClassID: "bond", Percentage: d("60")},
				{AssetClassID: "intl", Percentage: d("30")},
			},
		},
	}

	planner := NewPlanner(nil, time.Second)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{
				UserID:            "user-1",
				BaseCurrency:      "CAD",
				Accounts:          tt.accounts,
				Securities:        append([]Security{vfv, zag, xef}, tt.extra...),
				Targets:           tt.targets,
				BalancedThreshold: d("0.5"),
				Rates:             RateTable{},
			}

			res := planner.Compute(snap)
			if len(res.Transactions) == 0 {
				t.Fatal("expected an unbalanced portfolio to produce trades")
			}

			cash := make(map[string]decimal.Decimal)
			for _, acc := range tt.accounts {
				cash[acc.ID] = acc.Cash
			}
			bought := make(map[string]decimal.Decimal)
			finals := make(map[string]int)
			lastBuy := make(map[string]int)
			for i, tx := range res.Transactions {
				if tx.ExecutionOrder != i+1 {
					t.Errorf("trade %d has execution order %d", i, tx.ExecutionOrder)
				}
				switch tx.Action {
				case ActionSell:
					cash[tx.AccountID] = cash[tx.AccountID].Add(tx.Amount)
				case ActionBuy:
					bought[tx.AccountID] = bought[tx.AccountID].Add(tx.Amount)
					lastBuy[tx.AccountID] = i
				}
				if !tx.RequiresUserSelection && !tx.Quantity.IsPositive() {
					t.Errorf("trade %d has non-positive quantity %s", i, tx.Quantity)
				}
				if tx.IsFinalTrade {
					finals[tx.AccountID]++
					if tx.Action != ActionBuy {
						t.Errorf("trade %d: only buys may be final", i)
					}
				}
			}

			for accountID, spent := range bought {
				if spent.GreaterThan(cash[accountID]) {
					t.Errorf("account %s buys %s with only %s of cash and proceeds", accountID, spent, cash[accountID])
				}
				if finals[accountID] != 1 {
					t.Errorf("account %s has %d final trades, want 1", accountID, finals[accountID])
				}
				if !res.Transactions[lastBuy[accountID]].IsFinalTrade {
					t.Errorf("account %s: last buy is not the final trade", accountID)
				}
			}
			for accountID, n := range finals {
				if _, ok := bought[accountID]; !ok || n > 1 {
					t.Errorf("account %s has %d final trades without matching buys", accountID, n)
				}
			}
		})
	}
}

func TestPlanner_QuietUnderTest(t *testing.T) {
	planner := NewPlanner(&fakeSource{}, time.Second)
	autoZAG := zag
	autoZAG.AutoUpdate = true
	planner.Plan(context.Background(), allEquity(vfv, autoZAG))

	if logger.Named("rebalance").Desugar().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected skipped units and refresh failures to go to a discarding logger")
	}
}

func TestMarkFinalTrades(t *testing.T) {
	txs := []Transaction{
		{AccountID: "a", Action: ActionSell},
		{AccountID: "a", Action: ActionBuy},
		{AccountID: "b", Action: ActionBuy},
		{AccountID: "a", Action: ActionBuy},
	}

	markFinalTrades(txs)

	got := []bool{txs[0].IsFinalTrade, txs[1].IsFinalTrade, txs[2].IsFinalTrade, txs[3].IsFinalTrade}
	if !reflect.DeepEqual(got, []bool{false, false, true, true}) {
		t.Errorf("unexpected final flags %v", got)
	}
}
