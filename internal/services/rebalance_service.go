package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "folio/internal/errors"
	"folio/internal/logger"
	"folio/internal/models"
	"folio/internal/pagination"
	"folio/internal/rebalance"
)

// fractionalPlaces bounds the share count of a final trade.
const fractionalPlaces = 8

// userLocks serializes planning and execution per user.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// lock blocks until the user's lock is held and returns its release func.
func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// rebalanceService plans trades and executes them one at a time. Every
// execution regenerates the remaining plan.
type rebalanceService struct {
	db         *gorm.DB
	planner    *rebalance.Planner
	rates      ExchangeRateServicer
	securities SecurityServicer
	locks      *userLocks
	now        func() time.Time
}

// NewRebalanceService creates a new RebalanceServicer.
func NewRebalanceService(db *gorm.DB, planner *rebalance.Planner, rates ExchangeRateServicer, securities SecurityServicer) RebalanceServicer {
	return &rebalanceService{
		db:         db,
		planner:    planner,
		rates:      rates,
		securities: securities,
		locks:      newUserLocks(),
		now:        time.Now,
	}
}

// GeneratePlan refreshes prices, computes a new plan and atomically replaces
// the user's unexecuted plan with it. It fails only when the portfolio
// cannot be loaded or persisted.
func (s *rebalanceService) GeneratePlan(ctx context.Context, userID string) (*Plan, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	data, err := loadPortfolio(s.db, userID)
	if err != nil {
		return nil, err
	}
	snap := data.snapshot(rateTableFor(ctx, s.rates, data))

	res := s.planner.Plan(ctx, snap)
	s.recordPrices(userID, res.Prices)

	now := s.now().UTC()
	plan := &Plan{Deltas: res.Deltas, GeneratedAt: now}
	if plan.Deltas == nil {
		plan.Deltas = []rebalance.Delta{}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		rows, err := replacePlan(tx, userID, res.Transactions)
		if err != nil {
			return err
		}
		plan.Transactions = rows

		snapshot := computeSnapshot(rebalance.WithPrices(snap, res.Prices), now)
		if err := tx.Create(snapshot).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("rebalance plan generated",
		"user_id", userID,
		"transactions", len(plan.Transactions),
		"deltas", len(plan.Deltas),
	)
	return plan, nil
}

// recordPrices stores quotes obtained while planning. Failures are logged;
// the plan already used the fresh prices.
func (s *rebalanceService) recordPrices(userID string, prices map[string]decimal.Decimal) {
	if len(prices) == 0 || s.securities == nil {
		return
	}
	now := s.now().UTC()
	inputs := make([]SecurityPriceInput, 0, len(prices))
	for id, price := range prices {
		inputs = append(inputs, SecurityPriceInput{SecurityID: id, Price: price, Source: s.planner.SourceName(), RecordedAt: now})
	}
	if _, err := s.securities.RecordPrices(inputs); err != nil {
		logger.Get().Warnw("failed to store refreshed prices", "user_id", userID, "error", err)
	}
}

// replacePlan deletes the user's unexecuted transactions and stores txs in their place.
func replacePlan(tx *gorm.DB, userID string, txs []rebalance.Transaction) ([]models.RebalanceTransaction, error) {
	if err := tx.Unscoped().Where("user_id = ? AND executed = ?", userID, false).
		Delete(&models.RebalanceTransaction{}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	rows := make([]models.RebalanceTransaction, 0, len(txs))
	for _, t := range txs {
		row := models.RebalanceTransaction{
			UserID:                userID,
			AccountID:             t.AccountID,
			AssetClassID:          t.AssetClassID,
			Action:                models.RebalanceAction(t.Action),
			Quantity:              t.Quantity,
			Price:                 t.Price,
			Amount:                t.Amount,
			Currency:              t.Currency,
			IsFinalTrade:          t.IsFinalTrade,
			RequiresUserSelection: t.RequiresUserSelection,
			ExecutionOrder:        t.ExecutionOrder,
		}
		if t.SecurityID != "" {
			id := t.SecurityID
			row.SecurityID = &id
		}
		if len(t.AvailableSecurities) > 0 {
			raw, err := json.Marshal(t.AvailableSecurities)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			row.AvailableSecurities = datatypes.JSON(raw)
		}
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return rows, nil
}

// ListTransactions returns the user's pending plan in execution order, or
// the executed history newest first.
func (s *rebalanceService) ListTransactions(userID string, executed bool, page pagination.PageRequest) (*pagination.PageResponse[models.RebalanceTransaction], error) {
	order := "execution_order ASC"
	if executed {
		order = "executed_at DESC"
	}

	query := s.db.Model(&models.RebalanceTransaction{}).Where("user_id = ? AND executed = ?", userID, executed)
	result, err := pagination.Find[models.RebalanceTransaction](query, page, order, "Security")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// ExecuteTransaction applies one planned trade to the account's holdings and
// cash, marks it executed and regenerates the rest of the plan, all in one
// database transaction.
func (s *rebalanceService) ExecuteTransaction(ctx context.Context, userID, transactionID string, req ExecuteRequest) (*ExecutionResult, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	// Rates are resolved first; fetching may be slow and writes new rows.
	data, err := loadPortfolio(s.db, userID)
	if err != nil {
		return nil, err
	}
	rates := rateTableFor(ctx, s.rates, data)

	var result ExecutionResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var rt models.RebalanceTransaction
		if err := tx.Where("id = ? AND user_id = ?", transactionID, userID).First(&rt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrRebalanceTransactionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if rt.Executed {
			return apperrors.ErrTransactionAlreadyExecuted
		}

		securityID, err := chosenSecurity(rt, req.SecurityID)
		if err != nil {
			return err
		}

		var security models.Security
		if err := tx.Where("id = ?", securityID).First(&security).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrSecurityNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		var account models.Account
		if err := tx.Where("id = ? AND user_id = ?", rt.AccountID, userID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrAccountNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		price := req.Price
		if !price.IsPositive() && rt.SecurityID != nil && *rt.SecurityID == securityID {
			price = rt.Price
		}
		if !price.IsPositive() {
			price = security.LastPrice
		}
		if !price.IsPositive() {
			return apperrors.ErrInvalidPrice
		}

		var fill *tradeFill
		switch rt.Action {
		case models.RebalanceActionBuy:
			fill, err = executeBuy(tx, &account, &security, &rt, price, rates)
		case models.RebalanceActionSell:
			fill, err = executeSell(tx, &account, &security, &rt, price, rates)
		default:
			err = apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown transaction action")
		}
		if err != nil {
			return err
		}

		executedAt := s.now().UTC()
		rt.SecurityID = &security.ID
		rt.Quantity = fill.quantity
		rt.Price = price
		rt.Amount = fill.quantity.Mul(price)
		rt.Currency = security.Currency
		rt.Executed = true
		rt.ExecutedAt = &executedAt
		if err := tx.Model(&rt).Updates(map[string]interface{}{
			"security_id": securityID,
			"quantity":    rt.Quantity,
			"price":       rt.Price,
			"amount":      rt.Amount,
			"currency":    rt.Currency,
			"executed":    true,
			"executed_at": executedAt,
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		// Every remaining trade is stale once one executes.
		fresh, err := loadPortfolio(tx, userID)
		if err != nil {
			return err
		}
		res := s.planner.Compute(fresh.snapshot(rates))
		rows, err := replacePlan(tx, userID, res.Transactions)
		if err != nil {
			return err
		}

		rt.Security = &security
		result = ExecutionResult{
			Transaction: rt,
			Holding:     fill.holding,
			Account:     account,
			Plan:        &Plan{Transactions: rows, Deltas: res.Deltas, GeneratedAt: executedAt},
		}
		if result.Plan.Deltas == nil {
			result.Plan.Deltas = []rebalance.Delta{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("rebalance transaction executed",
		"user_id", userID,
		"transaction_id", transactionID,
		"action", result.Transaction.Action,
		"quantity", result.Transaction.Quantity.String(),
		"remaining", len(result.Plan.Transactions),
	)
	return &result, nil
}

// chosenSecurity resolves the security a trade executes against. Trades
// awaiting a choice accept only one of their available securities.
func chosenSecurity(rt models.RebalanceTransaction, selected string) (string, error) {
	if !rt.RequiresUserSelection {
		if rt.SecurityID == nil || *rt.SecurityID == "" {
			return "", apperrors.ErrSelectionRequired
		}
		if selected != "" && selected != *rt.SecurityID {
			return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "this transaction is for a fixed security")
		}
		return *rt.SecurityID, nil
	}

	if selected == "" {
		return "", apperrors.ErrSelectionRequired
	}
	var available []string
	if len(rt.AvailableSecurities) > 0 {
		if err := json.Unmarshal(rt.AvailableSecurities, &available); err != nil {
			return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	for _, id := range available {
		if id == selected {
			return selected, nil
		}
	}
	return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "selected security is not available for this transaction")
}

type tradeFill struct {
	quantity decimal.Decimal
	holding  *models.Holding
}

// executeBuy spends account cash on the security. The final trade of an
// account buys a fractional quantity of its planned amount. When the cash
// left after that would not buy one more share, it absorbs the remainder
// and leaves exactly zero cash.
func executeBuy(tx *gorm.DB, account *models.Account, security *models.Security, rt *models.RebalanceTransaction, price decimal.Decimal, rates rebalance.RateTable) (*tradeFill, error) {
	var qty decimal.Decimal
	spendAll := false
	switch {
	case rt.IsFinalTrade:
		available := rates.Convert(account.CashBalance, account.Currency, security.Currency)
		budget := rates.Convert(rt.Amount, rt.Currency, security.Currency)
		if !budget.LessThan(available) || available.Sub(budget).LessThan(price) {
			budget = available
			spendAll = true
		}
		qty = budget.Div(price).Truncate(fractionalPlaces)
	case rt.RequiresUserSelection:
		budget := rates.Convert(rt.Amount, rt.Currency, security.Currency)
		qty = budget.Div(price).Floor()
	default:
		qty = rt.Quantity
	}
	if !qty.IsPositive() {
		return nil, apperrors.ErrInsufficientCash
	}

	cost := rates.Convert(qty.Mul(price), security.Currency, account.Currency)
	cash := account.CashBalance.Sub(cost)
	if spendAll {
		cash = decimal.Zero
	} else if cash.IsNegative() {
		return nil, apperrors.ErrInsufficientCash
	}

	var holding models.Holding
	err := tx.Where("account_id = ? AND security_id = ?", account.ID, security.ID).First(&holding).Error
	switch {
	case err == nil:
		holding.Quantity = holding.Quantity.Add(qty)
		holding.Price = price
		if err := tx.Omit(clause.Associations).Save(&holding).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		holding = models.Holding{
			AccountID:  account.ID,
			SecurityID: security.ID,
			Quantity:   qty,
			Price:      price,
		}
		if err := tx.Omit(clause.Associations).Create(&holding).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	default:
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := tx.Model(account).Update("cash_balance", cash).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	account.CashBalance = cash
	holding.Security = *security

	return &tradeFill{quantity: qty, holding: &holding}, nil
}

// executeSell sells up to the planned quantity, never more than is held,
// and deletes the holding once it is empty.
func executeSell(tx *gorm.DB, account *models.Account, security *models.Security, rt *models.RebalanceTransaction, price decimal.Decimal, rates rebalance.RateTable) (*tradeFill, error) {
	var holding models.Holding
	if err := tx.Where("account_id = ? AND security_id = ?", account.ID, security.ID).First(&holding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInsufficientShares
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	qty := rt.Quantity
	if qty.GreaterThan(holding.Quantity) {
		logger.Get().Infow("selling remaining holding instead of planned quantity",
			"holding_id", holding.ID,
			"planned", qty.String(),
			"held", holding.Quantity.String(),
		)
		qty = holding.Quantity
	}
	if !qty.IsPositive() {
		return nil, apperrors.ErrInsufficientShares
	}

	holding.Quantity = holding.Quantity.Sub(qty)
	holding.Price = price
	if holding.Quantity.IsPositive() {
		if err := tx.Omit(clause.Associations).Save(&holding).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	} else {
		holding.Quantity = decimal.Zero
		if err := tx.Unscoped().Delete(&models.Holding{}, "id = ?", holding.ID).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	proceeds := rates.Convert(qty.Mul(price), security.Currency, account.Currency)
	cash := account.CashBalance.Add(proceeds)
	if err := tx.Model(account).Update("cash_balance", cash).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	account.CashBalance = cash
	holding.Security = *security

	return &tradeFill{quantity: qty, holding: &holding}, nil
}
