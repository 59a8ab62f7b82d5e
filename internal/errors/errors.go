// Package errors provides custom error types for the Lotkeeper API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
// Retryable marks transient failures (lock contention) the caller may retry.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Retryable  bool   `json:"retryable,omitempty"`
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
		Retryable:  sentinel.Retryable,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Retryable:  sentinel.Retryable,
		Internal:   sentinel.Internal,
	}
}

// Authentication errors.
var (
	ErrUnauthorized     = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidAccessKey = &AppError{Code: "INVALID_ACCESS_KEY", Message: "Invalid access key", StatusCode: http.StatusUnauthorized}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Account and security errors.
var (
	ErrAccountNotFound  = &AppError{Code: "ACCOUNT_NOT_FOUND", Message: "Account not found", StatusCode: http.StatusNotFound}
	ErrSecurityNotFound = &AppError{Code: "SECURITY_NOT_FOUND", Message: "Security not found", StatusCode: http.StatusNotFound}
	ErrDuplicateSymbol  = &AppError{Code: "DUPLICATE_SYMBOL", Message: "A security with this symbol and exchange already exists", StatusCode: http.StatusConflict}
)

// Lot errors.
var (
	ErrLotNotFound     = &AppError{Code: "LOT_NOT_FOUND", Message: "Lot not found", StatusCode: http.StatusNotFound}
	ErrImmutableSource = &AppError{Code: "IMMUTABLE_SOURCE", Message: "Lots from activity ingestion cannot be edited or deleted", StatusCode: http.StatusConflict}
	ErrLotHasDisposals = &AppError{Code: "LOT_HAS_DISPOSALS", Message: "Lot has disposal history; reassign or remove its disposals first", StatusCode: http.StatusConflict}
	ErrExceedsHolding  = &AppError{Code: "EXCEEDS_HOLDING", Message: "Lot quantities would exceed the holding's total quantity", StatusCode: http.StatusBadRequest}
)

// Disposal errors.
var (
	ErrDisposalNotFound        = &AppError{Code: "DISPOSAL_NOT_FOUND", Message: "Disposal not found", StatusCode: http.StatusNotFound}
	ErrQuantityMismatch        = &AppError{Code: "QUANTITY_MISMATCH", Message: "Assigned quantities do not sum to the disposal total", StatusCode: http.StatusBadRequest}
	ErrInsufficientLotQuantity = &AppError{Code: "INSUFFICIENT_LOT_QUANTITY", Message: "Assignment exceeds the lot's available quantity", StatusCode: http.StatusBadRequest}
)

// Concurrency errors.
var (
	ErrContention = &AppError{Code: "CONTENTION", Message: "The holding is locked by another operation; retry shortly", StatusCode: http.StatusServiceUnavailable, Retryable: true}
)
