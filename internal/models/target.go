package models

import (
	"github.com/shopspring/decimal"
)

// Target is a user's desired percentage for one asset class, with rules on
// which kinds of account may hold it.
type Target struct {
	Base
	UserID                 string          `gorm:"type:uuid;not null;uniqueIndex:uq_targets_user_class" json:"user_id"`
	AssetClassID           string          `gorm:"type:uuid;not null;uniqueIndex:uq_targets_user_class" json:"asset_class_id"`
	TargetPercentage       decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"target_percentage"`
	AllowedInRegistered    bool            `gorm:"not null" json:"allowed_in_registered"`
	AllowedInNonRegistered bool            `gorm:"not null" json:"allowed_in_nonregistered"`
	PreferredAccountType   string          `json:"preferred_account_type,omitempty"`
	AssetClass             *AssetClass     `gorm:"foreignKey:AssetClassID" json:"asset_class,omitempty"`
}
