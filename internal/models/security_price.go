package models

import (
	"time"

	"folio/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SecurityPrice represents a historical price entry for a security.
// Rows are immutable time-series data, so there is no Base embed and no soft delete.
type SecurityPrice struct {
	ID         string          `gorm:"type:uuid;primaryKey" json:"id"`
	SecurityID string          `gorm:"type:uuid;not null;index" json:"security_id"`
	Price      decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"price"`
	Source     string          `gorm:"size:50" json:"source,omitempty"`
	RecordedAt time.Time       `gorm:"not null" json:"recorded_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (s *SecurityPrice) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New()
	}
	return nil
}
