package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RebalanceAction is the direction of a planned trade.
type RebalanceAction string

const (
	RebalanceActionBuy  RebalanceAction = "BUY"
	RebalanceActionSell RebalanceAction = "SELL"
)

// RebalanceTransaction is one trade of a user's rebalancing plan. Unexecuted
// rows are replaced wholesale whenever the plan is regenerated; executed rows
// are kept as history.
type RebalanceTransaction struct {
	Base
	UserID                string          `gorm:"type:uuid;not null;index" json:"user_id"`
	AccountID             string          `gorm:"type:uuid;not null" json:"account_id"`
	SecurityID            *string         `gorm:"type:uuid" json:"security_id"`
	AssetClassID          string          `gorm:"type:uuid" json:"asset_class_id,omitempty"`
	Action                RebalanceAction `gorm:"size:10;not null" json:"action"`
	Quantity              decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"quantity"`
	Price                 decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"price"`
	Amount                decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	Currency              string          `gorm:"size:3" json:"currency"`
	IsFinalTrade          bool            `gorm:"not null" json:"is_final_trade"`
	RequiresUserSelection bool            `gorm:"not null" json:"requires_user_selection"`
	AvailableSecurities   datatypes.JSON  `json:"available_securities,omitempty"`
	ExecutionOrder        int             `gorm:"not null" json:"execution_order"`
	Executed              bool            `gorm:"not null;index" json:"executed"`
	ExecutedAt            *time.Time      `json:"executed_at,omitempty"`

	// Relationships
	Account  *Account  `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Security *Security `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
}
