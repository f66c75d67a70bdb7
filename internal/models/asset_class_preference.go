package models

import (
	"gorm.io/datatypes"
)

// AssetClassPreference narrows where a user's asset class may be held.
// AvoidAccountTypes is a JSON array of account type names.
type AssetClassPreference struct {
	Base
	UserID              string         `gorm:"type:uuid;not null;uniqueIndex:uq_class_prefs_user_class" json:"user_id"`
	AssetClassID        string         `gorm:"type:uuid;not null;uniqueIndex:uq_class_prefs_user_class" json:"asset_class_id"`
	OnlyInRegistered    bool           `gorm:"not null" json:"only_in_registered"`
	OnlyInNonRegistered bool           `gorm:"not null" json:"only_in_nonregistered"`
	AvoidAccountTypes   datatypes.JSON `json:"avoid_account_types,omitempty"`
	PreferredAccountID  *string        `gorm:"type:uuid" json:"preferred_account_id,omitempty"`
}
