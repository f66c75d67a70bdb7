package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBaseCurrency is assigned to new users.
const DefaultBaseCurrency = "CAD"

// DefaultBalancedThreshold is the percentage-point deviation tolerated before
// an asset class is rebalanced.
var DefaultBalancedThreshold = decimal.RequireFromString("0.5")

// User represents the user model in the database
type User struct {
	Base
	Email               string          `gorm:"uniqueIndex;not null" json:"email"`
	Password            string          `gorm:"not null" json:"-"`
	FirstName           string          `json:"first_name"`
	LastName            string          `json:"last_name"`
	IsActive            bool            `gorm:"default:true" json:"is_active"`
	RefreshTokenHash    string          `gorm:"size:64" json:"-"`
	FailedLoginAttempts int             `gorm:"default:0" json:"-"`
	LockedUntil         *time.Time      `json:"-"`
	LastLoginAt         *time.Time      `json:"last_login_at,omitempty"`
	BaseCurrency        string          `gorm:"size:3;not null" json:"base_currency"`
	BalancedThreshold   decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"balanced_threshold"`
	TradingCostsEnabled bool            `gorm:"not null" json:"trading_costs_enabled"`
	Accounts            []Account       `gorm:"foreignKey:UserID" json:"accounts,omitempty"`
}
