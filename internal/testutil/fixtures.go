package testutil

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"folio/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// D parses a decimal literal, panicking on malformed input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email, base currency
// CAD and the default balanced threshold.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:             email,
		Password:          string(hash),
		IsActive:          true,
		BaseCurrency:      models.DefaultBaseCurrency,
		BalancedThreshold: models.DefaultBalancedThreshold,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// AccountOpts customizes CreateTestAccount.
type AccountOpts struct {
	Name         string
	Type         string
	Currency     string
	IsRegistered bool
	Priority     int
	Cash         string
}

// CreateTestAccount creates an account. Empty options default to a CAD
// non-registered account with no cash.
func CreateTestAccount(t *testing.T, db *gorm.DB, userID string, opts AccountOpts) *models.Account {
	t.Helper()

	if opts.Name == "" {
		opts.Name = fmt.Sprintf("Test Account %d", nextID())
	}
	if opts.Type == "" {
		opts.Type = "Non-registered"
	}
	if opts.Currency == "" {
		opts.Currency = "CAD"
	}
	if opts.Cash == "" {
		opts.Cash = "0"
	}

	account := &models.Account{
		UserID:       userID,
		Name:         opts.Name,
		AccountType:  opts.Type,
		Currency:     opts.Currency,
		IsRegistered: opts.IsRegistered,
		Priority:     opts.Priority,
		CashBalance:  D(opts.Cash),
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestAssetClass creates an asset class with a unique name built from prefix.
func CreateTestAssetClass(t *testing.T, db *gorm.DB, prefix string) *models.AssetClass {
	t.Helper()

	class := &models.AssetClass{Name: fmt.Sprintf("%s %d", prefix, nextID())}
	if err := db.Create(class).Error; err != nil {
		t.Fatalf("failed to create test asset class: %v", err)
	}
	return class
}

// CreateTestSecurity creates a manually priced security with a unique ticker
// built from prefix.
func CreateTestSecurity(t *testing.T, db *gorm.DB, prefix, assetClassID, currency, price string) *models.Security {
	t.Helper()

	now := time.Now().UTC()
	sec := &models.Security{
		Ticker:       fmt.Sprintf("%s%d", prefix, nextID()),
		Name:         prefix + " fund",
		AssetClassID: assetClassID,
		Currency:     currency,
		LastPrice:    D(price),
		LastPriceAt:  &now,
	}
	if err := db.Create(sec).Error; err != nil {
		t.Fatalf("failed to create test security: %v", err)
	}
	return sec
}

// CreateTestHolding creates a holding of quantity units at price.
func CreateTestHolding(t *testing.T, db *gorm.DB, accountID, securityID, quantity, price string) *models.Holding {
	t.Helper()

	h := &models.Holding{
		AccountID:  accountID,
		SecurityID: securityID,
		Quantity:   D(quantity),
		Price:      D(price),
	}
	if err := db.Create(h).Error; err != nil {
		t.Fatalf("failed to create test holding: %v", err)
	}
	return h
}

// CreateTestTarget creates a target allowed in every kind of account.
func CreateTestTarget(t *testing.T, db *gorm.DB, userID, assetClassID, pct string) *models.Target {
	t.Helper()

	target := &models.Target{
		UserID:                 userID,
		AssetClassID:           assetClassID,
		TargetPercentage:       D(pct),
		AllowedInRegistered:    true,
		AllowedInNonRegistered: true,
	}
	if err := db.Create(target).Error; err != nil {
		t.Fatalf("failed to create test target: %v", err)
	}
	return target
}

// CreateTestSecurityPreference stores a restriction for a security.
func CreateTestSecurityPreference(t *testing.T, db *gorm.DB, userID, securityID, restrictionType string, config any) *models.SecurityPreference {
	t.Helper()

	pref := &models.SecurityPreference{
		UserID:          userID,
		SecurityID:      securityID,
		RestrictionType: restrictionType,
	}
	if config != nil {
		raw, err := json.Marshal(config)
		if err != nil {
			t.Fatalf("failed to encode account config: %v", err)
		}
		pref.AccountConfig = datatypes.JSON(raw)
	}
	if err := db.Create(pref).Error; err != nil {
		t.Fatalf("failed to create test security preference: %v", err)
	}
	return pref
}

// CreateTestExchangeRate records a rate observed now.
func CreateTestExchangeRate(t *testing.T, db *gorm.DB, from, to, rate string) *models.ExchangeRate {
	t.Helper()

	er := &models.ExchangeRate{
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         D(rate),
		Source:       models.RateSourceManual,
		RecordedAt:   time.Now().UTC(),
	}
	if err := db.Create(er).Error; err != nil {
		t.Fatalf("failed to create test exchange rate: %v", err)
	}
	return er
}
