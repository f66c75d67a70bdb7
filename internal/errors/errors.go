// Package errors provides custom error types for the Folio API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrAccountLocked      = &AppError{Code: "ACCOUNT_LOCKED", Message: "Account is temporarily locked", StatusCode: http.StatusLocked}
	ErrInvalidToken       = &AppError{Code: "UNAUTHORIZED", Message: "Invalid or expired token", StatusCode: http.StatusUnauthorized}
)

// Price pipeline errors.
var (
	ErrPipelineNotConfigured = &AppError{Code: "PIPELINE_NOT_CONFIGURED", Message: "Pipeline endpoints are not configured", StatusCode: http.StatusServiceUnavailable}
	ErrInvalidAPIKey         = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
)

// Account errors.
var (
	ErrAccountNotFound = &AppError{Code: "ACCOUNT_NOT_FOUND", Message: "Account not found", StatusCode: http.StatusNotFound}
	ErrAccountInUse    = &AppError{Code: "ACCOUNT_IN_USE", Message: "Account still has holdings", StatusCode: http.StatusConflict}
)

// Catalog errors.
var (
	ErrAssetClassNotFound  = &AppError{Code: "ASSET_CLASS_NOT_FOUND", Message: "Asset class not found", StatusCode: http.StatusNotFound}
	ErrAssetClassInUse     = &AppError{Code: "ASSET_CLASS_IN_USE", Message: "Asset class is used by securities or targets", StatusCode: http.StatusConflict}
	ErrDuplicateAssetClass = &AppError{Code: "DUPLICATE_ASSET_CLASS", Message: "An asset class with this name already exists", StatusCode: http.StatusConflict}
	ErrSecurityNotFound    = &AppError{Code: "SECURITY_NOT_FOUND", Message: "Security not found", StatusCode: http.StatusNotFound}
	ErrDuplicateSecurity   = &AppError{Code: "DUPLICATE_SECURITY", Message: "A security with this ticker already exists", StatusCode: http.StatusConflict}
	ErrSecurityInUse       = &AppError{Code: "SECURITY_IN_USE", Message: "Security is held in an account", StatusCode: http.StatusConflict}
)

// Ticker lookup errors.
var (
	ErrTickerNotFound          = &AppError{Code: "TICKER_NOT_FOUND", Message: "Ticker not found", StatusCode: http.StatusNotFound}
	ErrTickerLookupFailed      = &AppError{Code: "TICKER_LOOKUP_FAILED", Message: "Ticker lookup failed", StatusCode: http.StatusBadGateway}
	ErrTickerLookupUnavailable = &AppError{Code: "TICKER_LOOKUP_UNAVAILABLE", Message: "Ticker lookup is not configured", StatusCode: http.StatusServiceUnavailable}
)

// Holding and target errors.
var (
	ErrHoldingNotFound    = &AppError{Code: "HOLDING_NOT_FOUND", Message: "Holding not found", StatusCode: http.StatusNotFound}
	ErrTargetNotFound     = &AppError{Code: "TARGET_NOT_FOUND", Message: "Target not found", StatusCode: http.StatusNotFound}
	ErrInvalidTargets     = &AppError{Code: "INVALID_TARGETS", Message: "Invalid target allocation", StatusCode: http.StatusBadRequest}
	ErrInvalidRestriction = &AppError{Code: "INVALID_RESTRICTION", Message: "Invalid account restriction", StatusCode: http.StatusBadRequest}
)

// Rebalance errors.
var (
	ErrRebalanceTransactionNotFound = &AppError{Code: "REBALANCE_TRANSACTION_NOT_FOUND", Message: "Rebalance transaction not found", StatusCode: http.StatusNotFound}
	ErrSelectionRequired            = &AppError{Code: "SELECTION_REQUIRED", Message: "A security must be selected for this trade", StatusCode: http.StatusBadRequest}
	ErrTransactionAlreadyExecuted   = &AppError{Code: "TRANSACTION_ALREADY_EXECUTED", Message: "Transaction has already been executed", StatusCode: http.StatusConflict}
	ErrInvalidPrice                 = &AppError{Code: "INVALID_PRICE", Message: "A positive price is required", StatusCode: http.StatusBadRequest}
	ErrInsufficientShares           = &AppError{Code: "INSUFFICIENT_SHARES", Message: "Insufficient shares for this sale", StatusCode: http.StatusBadRequest}
	ErrInsufficientCash             = &AppError{Code: "INSUFFICIENT_CASH", Message: "Insufficient cash for this purchase", StatusCode: http.StatusBadRequest}
)

// Exchange rate errors.
var (
	ErrExchangeRateUnavailable = &AppError{Code: "EXCHANGE_RATE_UNAVAILABLE", Message: "Exchange rate could not be fetched", StatusCode: http.StatusBadGateway}
)
