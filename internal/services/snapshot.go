package services

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "folio/internal/errors"
	"folio/internal/logger"
	"folio/internal/models"
	"folio/internal/rebalance"
)

// portfolioData is everything stored about one user's portfolio.
type portfolioData struct {
	user          models.User
	accounts      []models.Account
	securities    []models.Security
	targets       []models.Target
	securityPrefs []models.SecurityPreference
	classPrefs    []models.AssetClassPreference
}

// loadPortfolio reads a user's portfolio through db, which may be a
// transaction. Only a missing user or a database failure is an error.
func loadPortfolio(db *gorm.DB, userID string) (*portfolioData, error) {
	var data portfolioData
	if err := db.Where("id = ?", userID).First(&data.user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := db.Preload("Holdings", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC, id ASC")
	}).Preload("Holdings.Security").
		Where("user_id = ?", userID).
		Order("priority DESC, created_at ASC, id ASC").
		Find(&data.accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := db.Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&data.targets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	classIDs := make([]string, 0, len(data.targets))
	for _, t := range data.targets {
		classIDs = append(classIDs, t.AssetClassID)
	}
	var heldIDs []string
	for _, acc := range data.accounts {
		for _, h := range acc.Holdings {
			heldIDs = append(heldIDs, h.SecurityID)
		}
	}
	if len(classIDs) > 0 || len(heldIDs) > 0 {
		q := db.Model(&models.Security{})
		switch {
		case len(classIDs) > 0 && len(heldIDs) > 0:
			q = q.Where("asset_class_id IN ? OR id IN ?", classIDs, heldIDs)
		case len(classIDs) > 0:
			q = q.Where("asset_class_id IN ?", classIDs)
		default:
			q = q.Where("id IN ?", heldIDs)
		}
		if err := q.Order("ticker ASC").Find(&data.securities).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	if err := db.Where("user_id = ?", userID).Find(&data.securityPrefs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := db.Where("user_id = ?", userID).Find(&data.classPrefs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return &data, nil
}

// currencies lists every currency the portfolio's values are quoted in.
func (p *portfolioData) currencies() []string {
	var out []string
	for _, acc := range p.accounts {
		out = append(out, acc.Currency)
		for _, h := range acc.Holdings {
			out = append(out, h.Security.Currency)
		}
	}
	for _, sec := range p.securities {
		out = append(out, sec.Currency)
	}
	return out
}

// snapshot converts the stored portfolio into the planner's input.
func (p *portfolioData) snapshot(rates rebalance.RateTable) rebalance.Snapshot {
	log := logger.Get()

	snap := rebalance.Snapshot{
		UserID:              p.user.ID,
		BaseCurrency:        p.user.BaseCurrency,
		BalancedThreshold:   p.user.BalancedThreshold,
		TradingCostsEnabled: p.user.TradingCostsEnabled,
		Rates:               rates,
		Restrictions:        make(map[string]rebalance.Restriction, len(p.securityPrefs)),
	}
	if snap.BaseCurrency == "" {
		snap.BaseCurrency = models.DefaultBaseCurrency
	}

	for _, acc := range p.accounts {
		ra := rebalance.Account{
			ID:           acc.ID,
			Name:         acc.Name,
			Type:         acc.AccountType,
			Currency:     acc.Currency,
			IsRegistered: acc.IsRegistered,
			Priority:     acc.Priority,
			Cash:         acc.CashBalance,
		}
		for _, h := range acc.Holdings {
			price := h.Price
			if !price.IsPositive() {
				price = h.Security.LastPrice
			}
			ra.Holdings = append(ra.Holdings, rebalance.Holding{
				ID:           h.ID,
				SecurityID:   h.SecurityID,
				Ticker:       h.Security.Ticker,
				AssetClassID: h.Security.AssetClassID,
				Currency:     h.Security.Currency,
				Quantity:     h.Quantity,
				Price:        price,
			})
		}
		snap.Accounts = append(snap.Accounts, ra)
	}

	for _, sec := range p.securities {
		snap.Securities = append(snap.Securities, rebalance.Security{
			ID:           sec.ID,
			Ticker:       sec.Ticker,
			Exchange:     sec.Exchange,
			AssetClassID: sec.AssetClassID,
			Currency:     sec.Currency,
			Price:        sec.LastPrice,
			AutoUpdate:   sec.Refreshable(),
		})
	}

	classPrefs := make(map[string]models.AssetClassPreference, len(p.classPrefs))
	for _, cp := range p.classPrefs {
		classPrefs[cp.AssetClassID] = cp
	}
	for _, t := range p.targets {
		snap.Targets = append(snap.Targets, rebalance.Target{
			AssetClassID: t.AssetClassID,
			Percentage:   t.TargetPercentage,
			Placement:    placementFor(t, classPrefs[t.AssetClassID]),
		})
	}

	for _, pref := range p.securityPrefs {
		r, err := rebalance.ParseRestriction(pref.RestrictionType, pref.AccountConfig)
		if err != nil {
			log.Warnw("ignoring unreadable security preference",
				"user_id", p.user.ID,
				"security_id", pref.SecurityID,
				"error", err,
			)
			continue
		}
		snap.Restrictions[pref.SecurityID] = r
	}

	return snap
}

// placementFor merges a target's account rules with the asset class preference.
func placementFor(t models.Target, pref models.AssetClassPreference) rebalance.Placement {
	p := rebalance.Placement{
		ExcludeRegistered:    !t.AllowedInRegistered || pref.OnlyInNonRegistered,
		ExcludeNonRegistered: !t.AllowedInNonRegistered || pref.OnlyInRegistered,
		PreferredAccountType: strings.TrimSpace(t.PreferredAccountType),
	}
	if pref.PreferredAccountID != nil {
		p.PreferredAccountID = *pref.PreferredAccountID
	}
	if len(pref.AvoidAccountTypes) > 0 {
		var types []string
		if err := json.Unmarshal(pref.AvoidAccountTypes, &types); err != nil {
			logger.Get().Warnw("ignoring unreadable avoid_account_types",
				"asset_class_id", pref.AssetClassID,
				"error", err,
			)
		} else {
			p.AvoidAccountTypes = types
		}
	}
	return p
}

// totals returns holdings value and cash across all accounts in base currency.
func totals(snap rebalance.Snapshot) (holdings, cash decimal.Decimal) {
	for _, acc := range snap.Accounts {
		holdings = holdings.Add(rebalance.AccountValue(acc, snap.Rates, snap.BaseCurrency))
		cash = cash.Add(snap.Rates.Convert(acc.Cash, acc.Currency, snap.BaseCurrency))
	}
	return holdings, cash
}
