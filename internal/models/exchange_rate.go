package models

import (
	"time"

	"folio/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Rate sources.
const (
	RateSourceManual = "manual"
	RateSourceYahoo  = "yahoo"
)

// ExchangeRate is an observed conversion rate: one unit of FromCurrency buys
// Rate units of ToCurrency. Rows are append-only.
type ExchangeRate struct {
	ID           string          `gorm:"type:uuid;primaryKey" json:"id"`
	FromCurrency string          `gorm:"size:3;not null;index:idx_exchange_rates_pair" json:"from_currency"`
	ToCurrency   string          `gorm:"size:3;not null;index:idx_exchange_rates_pair" json:"to_currency"`
	Rate         decimal.Decimal `gorm:"type:numeric(20,10);not null" json:"rate"`
	Source       string          `gorm:"size:50" json:"source"`
	RecordedAt   time.Time       `gorm:"not null;index" json:"recorded_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (e *ExchangeRate) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New()
	}
	return nil
}
