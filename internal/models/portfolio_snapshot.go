package models

import (
	"time"

	"folio/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PortfolioSnapshot records a user's portfolio value in base currency each
// time a plan is generated.
// Rows are immutable time-series data, so there is no Base embed and no soft delete.
type PortfolioSnapshot struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string          `gorm:"type:uuid;not null;index" json:"user_id"`
	RecordedAt    time.Time       `gorm:"not null" json:"recorded_at"`
	BaseCurrency  string          `gorm:"size:3;not null" json:"base_currency"`
	HoldingsValue decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"holdings_value"`
	CashBalance   decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"cash_balance"`
	TotalValue    decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"total_value"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *PortfolioSnapshot) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}
