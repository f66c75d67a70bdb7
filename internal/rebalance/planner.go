package rebalance

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"folio/internal/logger"
	"folio/internal/pricing"
)

const defaultRefreshTimeout = 10 * time.Second

// Planner turns a snapshot into an ordered trade list. A nil price source
// skips the refresh step.
type Planner struct {
	prices  pricing.Source
	timeout time.Duration
}

// NewPlanner creates a Planner refreshing prices through src, giving up on
// the refresh after timeout.
func NewPlanner(src pricing.Source, timeout time.Duration) *Planner {
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	return &Planner{prices: src, timeout: timeout}
}

// SourceName names the price source, or "none" when refreshing is disabled.
func (p *Planner) SourceName() string {
	if p.prices == nil {
		return "none"
	}
	return p.prices.Name()
}

// Plan refreshes prices best-effort, then computes the plan. It never fails:
// units of work lacking data are skipped and logged.
func (p *Planner) Plan(ctx context.Context, snap Snapshot) Result {
	prices := p.refreshPrices(ctx, snap.Securities)
	res := p.Compute(WithPrices(snap, prices))
	res.Prices = prices
	return res
}

// Compute plans against the snapshot as given, without refreshing prices.
func (p *Planner) Compute(snap Snapshot) Result {
	if snap.Rates == nil {
		snap.Rates = DefaultRates()
	}
	alloc := Allocate(snap.Accounts, snap.Rates, snap.BaseCurrency)
	deltas := Deltas(alloc, snap.Targets, snap.BalancedThreshold, snap.TradingCostsEnabled)

	res := Result{Deltas: deltas}
	if len(deltas) == 0 {
		return res
	}

	run := newPlanRun(snap)
	res.Transactions = run.execute(deltas)
	return res
}

func (p *Planner) refreshPrices(ctx context.Context, securities []Security) map[string]decimal.Decimal {
	if p.prices == nil {
		return nil
	}

	var wanted []pricing.Security
	for _, sec := range securities {
		if sec.AutoUpdate {
			wanted = append(wanted, pricing.Security{
				ID:       sec.ID,
				Ticker:   sec.Ticker,
				Exchange: sec.Exchange,
				Currency: sec.Currency,
			})
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	quotes, fetchErrors := p.prices.FetchPrices(ctx, wanted)
	for _, fe := range fetchErrors {
		logger.Named("rebalance").Warnw("price refresh failed",
			"source", p.prices.Name(),
			"ticker", fe.Ticker,
			"error", fe.Err,
		)
	}

	out := make(map[string]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		if q.Price.IsPositive() {
			out[q.SecurityID] = q.Price
		}
	}
	return out
}

// WithPrices returns a copy of snap whose securities and holdings carry the
// refreshed prices.
func WithPrices(snap Snapshot, prices map[string]decimal.Decimal) Snapshot {
	if len(prices) == 0 {
		return snap
	}
	secs := make([]Security, len(snap.Securities))
	for i, sec := range snap.Securities {
		if px, ok := prices[sec.ID]; ok {
			sec.Price = px
		}
		secs[i] = sec
	}
	snap.Securities = secs

	accounts := cloneAccounts(snap.Accounts)
	for i := range accounts {
		for j := range accounts[i].Holdings {
			if px, ok := prices[accounts[i].Holdings[j].SecurityID]; ok {
				accounts[i].Holdings[j].Price = px
			}
		}
	}
	snap.Accounts = accounts
	return snap
}

func cloneAccounts(in []Account) []Account {
	out := make([]Account, len(in))
	for i, acc := range in {
		acc.Holdings = append([]Holding(nil), acc.Holdings...)
		out[i] = acc
	}
	return out
}

// planRun holds the working state of one planning pass.
type planRun struct {
	snap     Snapshot
	accounts []Account
	toSell   map[string]decimal.Decimal
	toBuy    map[string]decimal.Decimal
	txs      []Transaction
}

func newPlanRun(snap Snapshot) *planRun {
	return &planRun{
		snap:     snap,
		accounts: cloneAccounts(snap.Accounts),
		toSell:   make(map[string]decimal.Decimal),
		toBuy:    make(map[string]decimal.Decimal),
	}
}

func (r *planRun) execute(deltas []Delta) []Transaction {
	var order []string
	for _, d := range deltas {
		switch {
		case d.DollarDiff.IsNegative():
			r.toSell[d.AssetClassID] = d.DollarDiff.Neg()
		case d.DollarDiff.IsPositive():
			r.toBuy[d.AssetClassID] = d.DollarDiff
			order = append(order, d.AssetClassID)
		}
	}

	for _, classID := range order {
		r.planClass(classID)
	}

	markFinalTrades(r.txs)
	return r.txs
}

func (r *planRun) placementFor(classID string) Placement {
	for _, t := range r.snap.Targets {
		if t.AssetClassID == classID {
			return t.Placement
		}
	}
	return Placement{}
}

// planClass funds and buys one underweight asset class.
func (r *planRun) planClass(classID string) {
	log := logger.Named("rebalance")
	rates := r.snap.Rates
	base := r.snap.BaseCurrency
	placement := r.placementFor(classID)

	idx := r.selectAccount(classID, placement)
	if idx < 0 {
		log.Infow("no eligible account for asset class", "user_id", r.snap.UserID, "asset_class_id", classID)
		return
	}
	acc := &r.accounts[idx]

	// Raise cash from overweight holdings in the chosen account.
	cashNeeded := r.toBuy[classID]
	for hi := range acc.Holdings {
		if !cashNeeded.IsPositive() {
			break
		}
		h := &acc.Holdings[hi]
		remaining, ok := r.toSell[h.AssetClassID]
		if !ok || !remaining.IsPositive() || !h.Price.IsPositive() || !h.Quantity.IsPositive() {
			continue
		}

		marketValue := rates.Convert(h.MarketValue(), h.Currency, base)
		sellBase := minDecimal(cashNeeded, marketValue, remaining)
		sellNative := rates.Convert(sellBase, base, h.Currency)
		qty := sellNative.Div(h.Price).Floor()
		if qty.GreaterThan(h.Quantity) {
			qty = h.Quantity.Floor()
		}
		if !qty.IsPositive() {
			continue
		}

		amount := qty.Mul(h.Price)
		realized := rates.Convert(amount, h.Currency, base)
		r.toSell[h.AssetClassID] = remaining.Sub(realized)
		cashNeeded = cashNeeded.Sub(realized)
		h.Quantity = h.Quantity.Sub(qty)
		acc.Cash = acc.Cash.Add(rates.Convert(amount, h.Currency, acc.Currency))

		r.emit(Transaction{
			AccountID:    acc.ID,
			SecurityID:   h.SecurityID,
			AssetClassID: h.AssetClassID,
			Action:       ActionSell,
			Quantity:     qty,
			Price:        h.Price,
			Amount:       amount,
			Currency:     h.Currency,
		})
	}

	buyBase := minDecimal(r.toBuy[classID], rates.Convert(acc.Cash, acc.Currency, base))
	if !buyBase.IsPositive() {
		log.Infow("no cash available for asset class", "user_id", r.snap.UserID, "asset_class_id", classID, "account_id", acc.ID)
		return
	}

	tied := r.candidateSecurities(classID, *acc)
	switch {
	case len(tied) == 0:
		log.Infow("no eligible security for asset class", "user_id", r.snap.UserID, "asset_class_id", classID, "account_id", acc.ID)
		return

	case len(tied) > 1:
		ids := make([]string, len(tied))
		for i, sec := range tied {
			ids[i] = sec.ID
		}
		amount := rates.Convert(buyBase, base, acc.Currency)
		acc.Cash = acc.Cash.Sub(amount)
		r.toBuy[classID] = r.toBuy[classID].Sub(buyBase)
		r.emit(Transaction{
			AccountID:             acc.ID,
			AssetClassID:          classID,
			Action:                ActionBuy,
			Quantity:              decimal.Zero,
			Price:                 decimal.Zero,
			Amount:                amount,
			Currency:              acc.Currency,
			RequiresUserSelection: true,
			AvailableSecurities:   ids,
		})
		return
	}

	sec := tied[0]
	if !sec.Price.IsPositive() {
		log.Warnw("skipping buy without price", "user_id", r.snap.UserID, "ticker", sec.Ticker)
		return
	}
	qty := rates.Convert(buyBase, base, sec.Currency).Div(sec.Price).Floor()
	if !qty.IsPositive() {
		log.Infow("buy amount below one share", "user_id", r.snap.UserID, "ticker", sec.Ticker)
		return
	}

	amount := qty.Mul(sec.Price)
	acc.Cash = acc.Cash.Sub(rates.Convert(amount, sec.Currency, acc.Currency))
	r.toBuy[classID] = r.toBuy[classID].Sub(rates.Convert(amount, sec.Currency, base))
	r.emit(Transaction{
		AccountID:    acc.ID,
		SecurityID:   sec.ID,
		AssetClassID: classID,
		Action:       ActionBuy,
		Quantity:     qty,
		Price:        sec.Price,
		Amount:       amount,
		Currency:     sec.Currency,
	})
}

// selectAccount picks the funding account for classID among accounts that
// pass the placement rules and may buy at least one security of the class.
func (r *planRun) selectAccount(classID string, placement Placement) int {
	candidates := r.buyableAccounts(classID, ClassEligible(r.accounts, placement))
	if len(candidates) == 0 {
		return -1
	}
	best := RankAccounts(candidates, classID, r.toSell, r.snap.Rates, r.snap.BaseCurrency, placement)[0]
	for i := range r.accounts {
		if r.accounts[i].ID == best.ID {
			return i
		}
	}
	return -1
}

// buyableAccounts keeps the accounts where some security of the class is
// eligible under its restriction. Input order is preserved.
func (r *planRun) buyableAccounts(classID string, accounts []Account) []Account {
	allowed := make(map[string]bool)
	for _, sec := range r.snap.Securities {
		if sec.AssetClassID != classID {
			continue
		}
		for _, acc := range EligibleAccounts(r.snap.restrictionFor(sec.ID), accounts) {
			allowed[acc.ID] = true
		}
	}

	out := make([]Account, 0, len(accounts))
	for _, acc := range accounts {
		if allowed[acc.ID] {
			out = append(out, acc)
		}
	}
	return out
}

// candidateSecurities returns the best-ranked eligible securities of the
// class for the account. Securities already held in the account come first,
// then the restriction's rank. More than one result means a tie.
func (r *planRun) candidateSecurities(classID string, acc Account) []Security {
	held := make(map[string]bool)
	for _, h := range acc.Holdings {
		if h.Quantity.IsPositive() {
			held[h.SecurityID] = true
		}
	}

	type candidate struct {
		sec  Security
		held bool
		rank int
	}
	var list []candidate
	for _, sec := range r.snap.Securities {
		if sec.AssetClassID != classID {
			continue
		}
		restriction := r.snap.restrictionFor(sec.ID)
		if !restriction.Allows(acc.ID) {
			continue
		}
		list = append(list, candidate{sec: sec, held: held[sec.ID], rank: restriction.Rank(acc.ID)})
	}
	if len(list) == 0 {
		return nil
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].held != list[j].held {
			return list[i].held
		}
		return list[i].rank < list[j].rank
	})

	top := list[0]
	var tied []Security
	for _, c := range list {
		if c.held != top.held || c.rank != top.rank {
			break
		}
		tied = append(tied, c.sec)
	}
	return tied
}

func (r *planRun) emit(tx Transaction) {
	tx.ExecutionOrder = len(r.txs) + 1
	r.txs = append(r.txs, tx)
}

// markFinalTrades flags the last BUY of every account.
func markFinalTrades(txs []Transaction) {
	last := make(map[string]int)
	for i, tx := range txs {
		if tx.Action == ActionBuy {
			last[tx.AccountID] = i
		}
	}
	for _, i := range last {
		txs[i].IsFinalTrade = true
	}
}
