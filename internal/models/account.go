package models

import (
	"github.com/shopspring/decimal"
)

// Account represents a brokerage account holding securities and cash.
type Account struct {
	Base
	UserID       string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name         string          `gorm:"not null" json:"name"`
	AccountType  string          `json:"account_type"` // e.g. RRSP, TFSA, Non-registered
	Currency     string          `gorm:"size:3;not null" json:"currency"`
	IsRegistered bool            `gorm:"not null" json:"is_registered"`
	Priority     int             `gorm:"not null" json:"priority"`
	CashBalance  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"cash_balance"`
	Notes        string          `json:"notes,omitempty"`
	Holdings     []Holding       `gorm:"foreignKey:AccountID" json:"holdings,omitempty"`
}
