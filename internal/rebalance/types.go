// Package rebalance computes portfolio allocations, deviations from target
// allocations, and the ordered list of trades that moves a portfolio back
// toward its targets. It works on in-memory snapshots and never touches the
// database; callers load snapshots and persist the returned transactions.
package rebalance

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Action is the direction of a planned trade.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Holding is a position in one security inside one account. Price is per
// unit in the security's currency.
type Holding struct {
	ID           string
	SecurityID   string
	Ticker       string
	AssetClassID string
	Currency     string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
}

// MarketValue returns quantity × price in the security's currency.
func (h Holding) MarketValue() decimal.Decimal {
	return h.Quantity.Mul(h.Price)
}

// Account is a brokerage account with its cash (in account currency) and holdings.
type Account struct {
	ID           string
	Name         string
	Type         string
	Currency     string
	IsRegistered bool
	Priority     int
	Cash         decimal.Decimal
	Holdings     []Holding
}

// Security is a catalog entry that can be bought. Price is the last known
// unit price in Currency; zero means unknown.
type Security struct {
	ID           string
	Ticker       string
	Exchange     string
	AssetClassID string
	Currency     string
	Price        decimal.Decimal
	AutoUpdate   bool
}

// Placement narrows which accounts may hold an asset class. It merges the
// target's registered/non-registered rules with the user's asset-class
// preference.
type Placement struct {
	ExcludeRegistered    bool
	ExcludeNonRegistered bool
	AvoidAccountTypes    []string
	PreferredAccountID   string
	PreferredAccountType string
}

// Target is the desired share of the portfolio for one asset class.
type Target struct {
	AssetClassID string
	Percentage   decimal.Decimal
	Placement    Placement
}

// Snapshot is everything the planner needs for one user.
type Snapshot struct {
	UserID              string
	BaseCurrency        string
	Accounts            []Account
	Securities          []Security
	Targets             []Target
	Restrictions        map[string]Restriction
	BalancedThreshold   decimal.Decimal
	TradingCostsEnabled bool
	Rates               RateTable
}

// restrictionFor returns the security's restriction, unrestricted when none is set.
func (s *Snapshot) restrictionFor(securityID string) Restriction {
	if r, ok := s.Restrictions[securityID]; ok && r != nil {
		return r
	}
	return Unrestricted{}
}

// Transaction is one planned trade. SecurityID is empty when the user must
// pick one of AvailableSecurities before execution.
type Transaction struct {
	AccountID             string
	SecurityID            string
	AssetClassID          string
	Action                Action
	Quantity              decimal.Decimal
	Price                 decimal.Decimal
	Amount                decimal.Decimal
	Currency              string
	ExecutionOrder        int
	IsFinalTrade          bool
	RequiresUserSelection bool
	AvailableSecurities   []string
}

// Result is the outcome of a planning run.
type Result struct {
	Transactions []Transaction
	Deltas       []Delta
	// Prices holds the quotes obtained during the refresh step, keyed by security id.
	Prices map[string]decimal.Decimal
}

func minDecimal(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	m := first
	for _, d := range rest {
		if d.LessThan(m) {
			m = d
		}
	}
	return m
}
