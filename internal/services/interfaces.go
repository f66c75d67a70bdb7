package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"folio/internal/models"
	"folio/internal/pagination"
	"folio/internal/pricing"
	"folio/internal/rebalance"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID string, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
	UpdateSettings(userID string, settings SettingsUpdate) (*models.User, error)
}

// SettingsUpdate holds the optional user settings to change. Nil fields are left as is.
type SettingsUpdate struct {
	BaseCurrency        *string
	BalancedThreshold   *decimal.Decimal
	TradingCostsEnabled *bool
}

// AccountInput holds the editable fields of an account.
type AccountInput struct {
	Name         string
	AccountType  string
	Currency     string
	IsRegistered bool
	Priority     int
	CashBalance  decimal.Decimal
	Notes        string
}

// AccountServicer defines the contract for account-related business logic.
type AccountServicer interface {
	CreateAccount(userID string, in AccountInput) (*models.Account, error)
	GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	GetAccountByID(userID, accountID string) (*models.Account, error)
	UpdateAccount(userID, accountID string, in AccountInput) (*models.Account, error)
	DeleteAccount(userID, accountID string) error
}

// AssetClassServicer defines the contract for the shared asset class catalog.
type AssetClassServicer interface {
	CreateAssetClass(name string) (*models.AssetClass, error)
	ListAssetClasses() ([]models.AssetClass, error)
	GetAssetClassByID(id string) (*models.AssetClass, error)
	UpdateAssetClass(id, name string) (*models.AssetClass, error)
	DeleteAssetClass(id string) error
}

// SecurityInput holds the editable fields of a security.
type SecurityInput struct {
	Ticker          string
	Name            string
	Exchange        string
	AssetClassID    string
	Currency        string
	IsPublic        bool
	AutoUpdatePrice bool
	LastPrice       decimal.Decimal
}

// SecurityPriceInput holds a single price observation to record.
type SecurityPriceInput struct {
	SecurityID string
	Price      decimal.Decimal
	Source     string
	RecordedAt time.Time
}

// SecurityServicer defines the contract for the shared security catalog and
// its price history. It also serves as the store behind manual pricing.
type SecurityServicer interface {
	CreateSecurity(in SecurityInput) (*models.Security, error)
	GetSecurityByID(id string) (*models.Security, error)
	ListSecurities(page pagination.PageRequest) (*pagination.PageResponse[models.Security], error)
	UpdateSecurity(id string, in SecurityInput) (*models.Security, error)
	DeleteSecurity(id string) error
	ListRefreshable() ([]models.Security, error)
	RecordPrices(prices []SecurityPriceInput) (int, error)
	GetPriceHistory(securityID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.SecurityPrice], error)
	LatestPrices(ctx context.Context, securityIDs []string) (map[string]decimal.Decimal, error)
	LookupTicker(ctx context.Context, ticker string) (*pricing.TickerInfo, error)
}

// TickerLookup describes a symbol from a market-data provider.
type TickerLookup interface {
	Lookup(ctx context.Context, symbol string) (*pricing.TickerInfo, error)
}

// HoldingInput holds the fields of a new holding. A zero Price means the
// security's last known price.
type HoldingInput struct {
	AccountID  string
	SecurityID string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Notes      string
}

// HoldingServicer defines the contract for holdings inside a user's accounts.
type HoldingServicer interface {
	CreateHolding(userID string, in HoldingInput) (*models.Holding, error)
	ListHoldings(userID, accountID string, page pagination.PageRequest) (*pagination.PageResponse[models.Holding], error)
	GetHoldingByID(userID, holdingID string) (*models.Holding, error)
	UpdateHolding(userID, holdingID string, quantity, price decimal.Decimal, notes string) (*models.Holding, error)
	DeleteHolding(userID, holdingID string) error
}

// TargetInput is one row of a user's target allocation. Nil placement flags
// default to allowed.
type TargetInput struct {
	AssetClassID           string
	TargetPercentage       decimal.Decimal
	AllowedInRegistered    *bool
	AllowedInNonRegistered *bool
	PreferredAccountType   string
}

// TargetServicer defines the contract for a user's target allocation.
type TargetServicer interface {
	ListTargets(userID string) ([]models.Target, error)
	ReplaceTargets(userID string, targets []TargetInput) ([]models.Target, error)
}

// AssetClassPreferenceInput is one row of a user's asset class placement rules.
type AssetClassPreferenceInput struct {
	AssetClassID        string
	OnlyInRegistered    bool
	OnlyInNonRegistered bool
	AvoidAccountTypes   []string
	PreferredAccountID  *string
}

// PreferenceServicer defines the contract for security restrictions and
// asset class placement preferences.
type PreferenceServicer interface {
	GetSecurityPreference(userID, securityID string) (*models.SecurityPreference, error)
	SetSecurityPreference(userID, securityID string, restriction rebalance.Restriction, notes string) (*models.SecurityPreference, error)
	ListAssetClassPreferences(userID string) ([]models.AssetClassPreference, error)
	ReplaceAssetClassPreferences(userID string, prefs []AssetClassPreferenceInput) ([]models.AssetClassPreference, error)
}

// RateFetcher obtains a live exchange rate for a currency pair.
type RateFetcher interface {
	Source() string
	FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// ExchangeRateServicer defines the contract for stored and fetched exchange rates.
type ExchangeRateServicer interface {
	RateTable(ctx context.Context, base string, currencies []string) (rebalance.RateTable, error)
	ListRates(limit int) ([]models.ExchangeRate, error)
	AddRate(from, to string, rate decimal.Decimal) (*models.ExchangeRate, error)
	RefreshRates(ctx context.Context, base string, currencies []string) ([]models.ExchangeRate, error)
}

// ClassSummary is one asset class row of a portfolio summary.
type ClassSummary struct {
	AssetClassID   string          `json:"asset_class_id"`
	AssetClassName string          `json:"asset_class_name"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	CurrentPct     decimal.Decimal `json:"current_pct"`
	TargetPct      decimal.Decimal `json:"target_pct"`
	TargetValue    decimal.Decimal `json:"target_value"`
	DollarDiff     decimal.Decimal `json:"dollar_diff"`
	PercentageDiff decimal.Decimal `json:"percentage_diff"`
	Balanced       bool            `json:"balanced"`
}

// AccountSummary is one account row of a portfolio summary, in base currency.
type AccountSummary struct {
	AccountID     string          `json:"account_id"`
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// PortfolioSummary describes a user's portfolio against their targets.
type PortfolioSummary struct {
	BaseCurrency string           `json:"base_currency"`
	TotalValue   decimal.Decimal  `json:"total_value"`
	TotalCash    decimal.Decimal  `json:"total_cash"`
	Classes      []ClassSummary   `json:"classes"`
	Accounts     []AccountSummary `json:"accounts"`
}

// PortfolioServicer defines the contract for read-only portfolio views.
type PortfolioServicer interface {
	GetSummary(ctx context.Context, userID string) (*PortfolioSummary, error)
	ComputeAndRecordSnapshots(ctx context.Context, recordedAt time.Time) (int, error)
	GetSnapshots(userID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.PortfolioSnapshot], error)
}

// Plan is a freshly generated rebalancing plan.
type Plan struct {
	Transactions []models.RebalanceTransaction `json:"transactions"`
	Deltas       []rebalance.Delta             `json:"deltas"`
	GeneratedAt  time.Time                     `json:"generated_at"`
}

// ExecuteRequest carries the user's input when executing a planned trade.
// Price overrides the planned price when positive.
type ExecuteRequest struct {
	SecurityID string
	Price      decimal.Decimal
}

// ExecutionResult is the state after executing one planned trade.
type ExecutionResult struct {
	Transaction models.RebalanceTransaction `json:"transaction"`
	Holding     *models.Holding             `json:"holding"`
	Account     models.Account              `json:"account"`
	Plan        *Plan                       `json:"plan"`
}

// RebalanceServicer defines the contract for planning and executing trades.
type RebalanceServicer interface {
	GeneratePlan(ctx context.Context, userID string) (*Plan, error)
	ListTransactions(userID string, executed bool, page pagination.PageRequest) (*pagination.PageResponse[models.RebalanceTransaction], error)
	ExecuteTransaction(ctx context.Context, userID, transactionID string, req ExecuteRequest) (*ExecutionResult, error)
}

// ExportedHolding is a holding keyed by ticker so it survives re-import.
type ExportedHolding struct {
	Ticker   string          `json:"ticker"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Notes    string          `json:"notes,omitempty"`
}

// ExportedAccount is an account with its holdings.
type ExportedAccount struct {
	Name         string            `json:"name"`
	AccountType  string            `json:"account_type"`
	Currency     string            `json:"currency"`
	IsRegistered bool              `json:"is_registered"`
	Priority     int               `json:"priority"`
	CashBalance  decimal.Decimal   `json:"cash_balance"`
	Notes        string            `json:"notes,omitempty"`
	Holdings     []ExportedHolding `json:"holdings"`
}

// ExportedTarget is a target keyed by asset class name.
type ExportedTarget struct {
	AssetClass             string          `json:"asset_class"`
	TargetPercentage       decimal.Decimal `json:"target_percentage"`
	AllowedInRegistered    bool            `json:"allowed_in_registered"`
	AllowedInNonRegistered bool            `json:"allowed_in_nonregistered"`
	PreferredAccountType   string          `json:"preferred_account_type,omitempty"`
}

// ExportedPreference is a security restriction keyed by ticker. Account
// references use account names.
type ExportedPreference struct {
	Ticker          string                   `json:"ticker"`
	RestrictionType string                   `json:"restriction_type"`
	AccountConfig   *rebalance.AccountConfig `json:"account_config,omitempty"`
	Notes           string                   `json:"notes,omitempty"`
}

// PortfolioExport is the portable form of a user's portfolio.
type PortfolioExport struct {
	ExportedAt        time.Time            `json:"exported_at"`
	BaseCurrency      string               `json:"base_currency"`
	BalancedThreshold decimal.Decimal      `json:"balanced_threshold"`
	Accounts          []ExportedAccount    `json:"accounts"`
	Targets           []ExportedTarget     `json:"targets"`
	Preferences       []ExportedPreference `json:"preferences"`
}

// ImportSummary counts the records created by an import.
type ImportSummary struct {
	Accounts    int `json:"accounts"`
	Holdings    int `json:"holdings"`
	Targets     int `json:"targets"`
	Preferences int `json:"preferences"`
}

// ExportServicer defines the contract for portfolio export and import.
type ExportServicer interface {
	Export(userID string) (*PortfolioExport, error)
	Import(userID string, data PortfolioExport) (*ImportSummary, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
