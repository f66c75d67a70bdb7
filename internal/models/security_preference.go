package models

import (
	"gorm.io/datatypes"
)

// SecurityPreference restricts or prioritizes the accounts a user buys a
// security in. AccountConfig's shape depends on RestrictionType:
// {"allowed": [...]} or {"priority_1": [...], "priority_2": [...], "priority_3": [...]}.
type SecurityPreference struct {
	Base
	UserID          string         `gorm:"type:uuid;not null;uniqueIndex:uq_security_prefs_user_security" json:"user_id"`
	SecurityID      string         `gorm:"type:uuid;not null;uniqueIndex:uq_security_prefs_user_security" json:"security_id"`
	RestrictionType string         `gorm:"size:30;not null" json:"restriction_type"`
	AccountConfig   datatypes.JSON `json:"account_config,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	Security        *Security      `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
}
