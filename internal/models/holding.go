package models

import (
	"github.com/shopspring/decimal"
)

// Holding is a position in one security inside one account. Price is per
// unit in the security's currency.
type Holding struct {
	Base
	AccountID  string          `gorm:"type:uuid;not null;index" json:"account_id"`
	SecurityID string          `gorm:"type:uuid;not null;index" json:"security_id"`
	Quantity   decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"quantity"`
	Price      decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"price"`
	Notes      string          `json:"notes,omitempty"`

	// Relationships
	Security Security `gorm:"foreignKey:SecurityID" json:"security"`
	Account  *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`
}

// MarketValue returns quantity × price in the security's currency.
func (h *Holding) MarketValue() decimal.Decimal {
	return h.Quantity.Mul(h.Price)
}
