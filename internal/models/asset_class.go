package models

// AssetClass is a category such as "Equity" or "Bonds" that securities and
// targets are classified under.
type AssetClass struct {
	Base
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}
