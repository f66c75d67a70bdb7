package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Security represents a tradable instrument in the shared catalog.
type Security struct {
	Base
	Ticker          string          `gorm:"not null;uniqueIndex" json:"ticker"`
	Name            string          `json:"name"`
	Exchange        string          `json:"exchange,omitempty"`
	AssetClassID    string          `gorm:"type:uuid;not null;index" json:"asset_class_id"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	IsPublic        bool            `gorm:"not null" json:"is_public"`
	AutoUpdatePrice bool            `gorm:"not null" json:"auto_update_price"`
	LastPrice       decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"last_price"`
	LastPriceAt     *time.Time      `json:"last_price_at,omitempty"`
	AssetClass      *AssetClass     `gorm:"foreignKey:AssetClassID" json:"asset_class,omitempty"`
}

// Refreshable reports whether the security's price is fetched automatically.
func (s *Security) Refreshable() bool {
	return s.IsPublic && s.AutoUpdatePrice
}
