package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "folio/internal/errors"
	"folio/internal/models"
	"folio/internal/rebalance"
	"folio/internal/validator"
)

// exportService moves a user's portfolio in and out as a portable document.
// Records are keyed by ticker, asset class name and account name so that an
// export can be imported into another installation.
type exportService struct {
	db *gorm.DB
}

// NewExportService creates a new ExportServicer.
func NewExportService(db *gorm.DB) ExportServicer {
	return &exportService{db: db}
}

// Export returns the user's accounts, holdings, targets and security preferences.
func (s *exportService) Export(userID string) (*PortfolioExport, error) {
	data, err := loadPortfolio(s.db, userID)
	if err != nil {
		return nil, err
	}

	out := &PortfolioExport{
		ExportedAt:        time.Now().UTC(),
		BaseCurrency:      data.user.BaseCurrency,
		BalancedThreshold: data.user.BalancedThreshold,
		Accounts:          make([]ExportedAccount, 0, len(data.accounts)),
		Targets:           make([]ExportedTarget, 0, len(data.targets)),
		Preferences:       make([]ExportedPreference, 0, len(data.securityPrefs)),
	}

	accountNames := make(map[string]string, len(data.accounts))
	for _, acc := range data.accounts {
		accountNames[acc.ID] = acc.Name
		ea := ExportedAccount{
			Name:         acc.Name,
			AccountType:  acc.AccountType,
			Currency:     acc.Currency,
			IsRegistered: acc.IsRegistered,
			Priority:     acc.Priority,
			CashBalance:  acc.CashBalance,
			Notes:        acc.Notes,
			Holdings:     make([]ExportedHolding, 0, len(acc.Holdings)),
		}
		for _, h := range acc.Holdings {
			ea.Holdings = append(ea.Holdings, ExportedHolding{
				Ticker:   h.Security.Ticker,
				Quantity: h.Quantity,
				Price:    h.Price,
				Notes:    h.Notes,
			})
		}
		out.Accounts = append(out.Accounts, ea)
	}

	if len(data.targets) > 0 {
		var classes []models.AssetClass
		if err := s.db.Find(&classes).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		classNames := make(map[string]string, len(classes))
		for _, c := range classes {
			classNames[c.ID] = c.Name
		}
		for _, t := range data.targets {
			out.Targets = append(out.Targets, ExportedTarget{
				AssetClass:             classNames[t.AssetClassID],
				TargetPercentage:       t.TargetPercentage,
				AllowedInRegistered:    t.AllowedInRegistered,
				AllowedInNonRegistered: t.AllowedInNonRegistered,
				PreferredAccountType:   t.PreferredAccountType,
			})
		}
	}

	if len(data.securityPrefs) > 0 {
		tickers, err := s.tickersFor(data.securityPrefs)
		if err != nil {
			return nil, err
		}
		for _, p := range data.securityPrefs {
			restriction, err := rebalance.ParseRestriction(p.RestrictionType, p.AccountConfig)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			out.Preferences = append(out.Preferences, ExportedPreference{
				Ticker:          tickers[p.SecurityID],
				RestrictionType: string(restriction.Type()),
				AccountConfig:   mapConfig(rebalance.ConfigOf(restriction), accountNames),
				Notes:           p.Notes,
			})
		}
	}

	return out, nil
}

func (s *exportService) tickersFor(prefs []models.SecurityPreference) (map[string]string, error) {
	ids := make([]string, len(prefs))
	for i, p := range prefs {
		ids[i] = p.SecurityID
	}
	var securities []models.Security
	if err := s.db.Where("id IN ?", ids).Find(&securities).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	out := make(map[string]string, len(securities))
	for _, sec := range securities {
		out[sec.ID] = sec.Ticker
	}
	return out, nil
}

// mapConfig rewrites every account reference in cfg through names,
// dropping references names does not know.
func mapConfig(cfg *rebalance.AccountConfig, names map[string]string) *rebalance.AccountConfig {
	if cfg == nil {
		return nil
	}
	conv := func(in []string) []string {
		if len(in) == 0 {
			return nil
		}
		out := make([]string, 0, len(in))
		for _, v := range in {
			if n, ok := names[v]; ok {
				out = append(out, n)
			}
		}
		return out
	}
	return &rebalance.AccountConfig{
		Allowed:   conv(cfg.Allowed),
		Priority1: conv(cfg.Priority1),
		Priority2: conv(cfg.Priority2),
		Priority3: conv(cfg.Priority3),
	}
}

// Import replaces the user's accounts, holdings, targets and preferences
// with the document's. Securities and asset classes must already exist in
// the catalog. Nothing is written unless the whole document applies.
func (s *exportService) Import(userID string, doc PortfolioExport) (*ImportSummary, error) {
	if err := validateExport(&doc); err != nil {
		return nil, err
	}

	var summary ImportSummary
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrUserNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		securities, err := securitiesByTicker(tx, doc)
		if err != nil {
			return err
		}
		classes, err := classesByName(tx, doc)
		if err != nil {
			return err
		}

		if err := clearPortfolio(tx, userID); err != nil {
			return err
		}

		settings := map[string]interface{}{}
		if doc.BaseCurrency != "" {
			settings["base_currency"] = doc.BaseCurrency
		}
		if doc.BalancedThreshold.IsPositive() {
			settings["balanced_threshold"] = doc.BalancedThreshold
		}
		if len(settings) > 0 {
			if err := tx.Model(&user).Updates(settings).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		accountIDs := make(map[string]string, len(doc.Accounts))
		for _, ea := range doc.Accounts {
			account := models.Account{
				UserID:       userID,
				Name:         ea.Name,
				AccountType:  ea.AccountType,
				Currency:     ea.Currency,
				IsRegistered: ea.IsRegistered,
				Priority:     ea.Priority,
				CashBalance:  ea.CashBalance,
				Notes:        ea.Notes,
			}
			if err := tx.Omit(clause.Associations).Create(&account).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			accountIDs[ea.Name] = account.ID
			summary.Accounts++

			merged := make(map[string]*models.Holding)
			var order []string
			for _, eh := range ea.Holdings {
				sec := securities[eh.Ticker]
				if h, ok := merged[sec.ID]; ok {
					h.Quantity = h.Quantity.Add(eh.Quantity)
					continue
				}
				price := eh.Price
				if !price.IsPositive() {
					price = sec.LastPrice
				}
				merged[sec.ID] = &models.Holding{
					AccountID:  account.ID,
					SecurityID: sec.ID,
					Quantity:   eh.Quantity,
					Price:      price,
					Notes:      eh.Notes,
				}
				order = append(order, sec.ID)
			}
			for _, id := range order {
				if err := tx.Omit(clause.Associations).Create(merged[id]).Error; err != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
				summary.Holdings++
			}
		}

		for _, et := range doc.Targets {
			target := models.Target{
				UserID:                 userID,
				AssetClassID:           classes[et.AssetClass].ID,
				TargetPercentage:       et.TargetPercentage,
				AllowedInRegistered:    et.AllowedInRegistered,
				AllowedInNonRegistered: et.AllowedInNonRegistered,
				PreferredAccountType:   et.PreferredAccountType,
			}
			if err := tx.Omit(clause.Associations).Create(&target).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			summary.Targets++
		}

		for _, ep := range doc.Preferences {
			pref, err := importPreference(userID, securities[ep.Ticker].ID, ep, accountIDs)
			if err != nil {
				return err
			}
			if err := tx.Omit(clause.Associations).Create(pref).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			summary.Preferences++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// validateExport checks the document before anything is looked up.
func validateExport(doc *PortfolioExport) error {
	if doc.BaseCurrency != "" {
		doc.BaseCurrency = strings.ToUpper(doc.BaseCurrency)
		if !validator.ValidCurrency(doc.BaseCurrency) {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "base_currency must be an ISO 4217 code")
		}
	}
	if doc.BalancedThreshold.IsNegative() || doc.BalancedThreshold.GreaterThan(maxBalancedThreshold) {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "balanced_threshold must be between 0 and 100")
	}

	names := make(map[string]bool, len(doc.Accounts))
	for i := range doc.Accounts {
		ea := &doc.Accounts[i]
		in := AccountInput{Name: ea.Name, Currency: ea.Currency, CashBalance: ea.CashBalance}
		if err := validateAccountInput(&in); err != nil {
			return err
		}
		ea.Name, ea.Currency = in.Name, in.Currency
		if names[ea.Name] {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("duplicate account name %q", ea.Name))
		}
		names[ea.Name] = true
		for j := range ea.Holdings {
			h := &ea.Holdings[j]
			h.Ticker = strings.ToUpper(strings.TrimSpace(h.Ticker))
			if !h.Quantity.IsPositive() || h.Price.IsNegative() {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("invalid holding %s in account %q", h.Ticker, ea.Name))
			}
		}
	}

	classes := make(map[string]bool, len(doc.Targets))
	for i := range doc.Targets {
		t := &doc.Targets[i]
		t.AssetClass = strings.TrimSpace(t.AssetClass)
		if classes[t.AssetClass] {
			return apperrors.WithMessage(apperrors.ErrInvalidTargets, fmt.Sprintf("duplicate target for %q", t.AssetClass))
		}
		classes[t.AssetClass] = true
		if t.TargetPercentage.IsNegative() || t.TargetPercentage.GreaterThan(maxTargetPercentage) {
			return apperrors.WithMessage(apperrors.ErrInvalidTargets, "target_percentage must be between 0 and 100")
		}
	}

	tickers := make(map[string]bool, len(doc.Preferences))
	for i := range doc.Preferences {
		p := &doc.Preferences[i]
		p.Ticker = strings.ToUpper(strings.TrimSpace(p.Ticker))
		if tickers[p.Ticker] {
			return apperrors.WithMessage(apperrors.ErrInvalidRestriction, fmt.Sprintf("duplicate preference for %s", p.Ticker))
		}
		tickers[p.Ticker] = true
		if p.RestrictionType != "" && !rebalance.ValidRestrictionType(p.RestrictionType) {
			return apperrors.WithMessage(apperrors.ErrInvalidRestriction, fmt.Sprintf("unknown restriction type %q", p.RestrictionType))
		}
	}
	return nil
}

func securitiesByTicker(tx *gorm.DB, doc PortfolioExport) (map[string]models.Security, error) {
	var tickers []string
	for _, ea := range doc.Accounts {
		for _, h := range ea.Holdings {
			tickers = append(tickers, h.Ticker)
		}
	}
	for _, p := range doc.Preferences {
		tickers = append(tickers, p.Ticker)
	}
	out := make(map[string]models.Security)
	if len(tickers) == 0 {
		return out, nil
	}

	var securities []models.Security
	if err := tx.Where("ticker IN ?", tickers).Find(&securities).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for _, sec := range securities {
		out[sec.Ticker] = sec
	}
	for _, t := range tickers {
		if _, ok := out[t]; !ok {
			return nil, apperrors.WithMessage(apperrors.ErrSecurityNotFound, fmt.Sprintf("security %s not found", t))
		}
	}
	return out, nil
}

func classesByName(tx *gorm.DB, doc PortfolioExport) (map[string]models.AssetClass, error) {
	out := make(map[string]models.AssetClass)
	if len(doc.Targets) == 0 {
		return out, nil
	}
	names := make([]string, len(doc.Targets))
	for i, t := range doc.Targets {
		names[i] = t.AssetClass
	}

	var classes []models.AssetClass
	if err := tx.Where("name IN ?", names).Find(&classes).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for _, c := range classes {
		out[c.Name] = c
	}
	for _, n := range names {
		if _, ok := out[n]; !ok {
			return nil, apperrors.WithMessage(apperrors.ErrAssetClassNotFound, fmt.Sprintf("asset class %q not found", n))
		}
	}
	return out, nil
}

// clearPortfolio deletes everything Import recreates. Snapshots are history
// and stay.
func clearPortfolio(tx *gorm.DB, userID string) error {
	accounts := tx.Model(&models.Account{}).Select("id").Where("user_id = ?", userID)
	steps := []func() error{
		func() error {
			return tx.Unscoped().Where("user_id = ?", userID).Delete(&models.RebalanceTransaction{}).Error
		},
		func() error {
			return tx.Unscoped().Where("account_id IN (?)", accounts).Delete(&models.Holding{}).Error
		},
		func() error {
			return tx.Unscoped().Where("user_id = ?", userID).Delete(&models.SecurityPreference{}).Error
		},
		func() error {
			return tx.Unscoped().Where("user_id = ?", userID).Delete(&models.AssetClassPreference{}).Error
		},
		func() error {
			return tx.Unscoped().Where("user_id = ?", userID).Delete(&models.Target{}).Error
		},
		func() error {
			return tx.Unscoped().Where("user_id = ?", userID).Delete(&models.Account{}).Error
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return nil
}

// importPreference rebuilds a preference, translating account names to ids.
func importPreference(userID, securityID string, ep ExportedPreference, accountIDs map[string]string) (*models.SecurityPreference, error) {
	var cfg rebalance.AccountConfig
	if ep.AccountConfig != nil {
		for _, list := range [][]string{ep.AccountConfig.Allowed, ep.AccountConfig.Priority1, ep.AccountConfig.Priority2, ep.AccountConfig.Priority3} {
			for _, name := range list {
				if _, ok := accountIDs[name]; !ok {
					return nil, apperrors.WithMessage(apperrors.ErrInvalidRestriction, fmt.Sprintf("preference for %s references unknown account %q", ep.Ticker, name))
				}
			}
		}
		cfg = *mapConfig(ep.AccountConfig, accountIDs)
	}

	restriction, err := rebalance.NewRestriction(ep.RestrictionType, cfg)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidRestriction, err.Error())
	}

	pref := &models.SecurityPreference{
		UserID:          userID,
		SecurityID:      securityID,
		RestrictionType: string(restriction.Type()),
		Notes:           ep.Notes,
	}
	if stored := rebalance.ConfigOf(restriction); stored != nil {
		raw, err := json.Marshal(stored)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		pref.AccountConfig = datatypes.JSON(raw)
	}
	return pref, nil
}
