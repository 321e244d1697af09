package common

import (
	"errors"
	"net/http"
)

// Error codes shared by every bundle operation.
const (
	CodeBundleNotFound      = "BUNDLE_NOT_FOUND"
	CodeComponentOutOfStock = "COMPONENT_OUT_OF_STOCK"
	CodeInvalidSelection    = "INVALID_SELECTION"
	CodeSelectionIncomplete = "SELECTION_INCOMPLETE"
	CodeCartError           = "CART_ERROR"
	CodeNetworkError        = "NETWORK_ERROR"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeProviderMissing     = "PROVIDER_MISSING"
	CodeUnknownError        = "UNKNOWN_ERROR"
	CodeBadRequest          = "BAD_REQUEST"
)

var defaultMessages = map[string]string{
	CodeBundleNotFound:      "Bundle not found",
	CodeComponentOutOfStock: "One or more bundle components are out of stock",
	CodeInvalidSelection:    "Invalid bundle selection",
	CodeSelectionIncomplete: "Please complete your bundle selection",
	CodeCartError:           "Unable to add bundle to cart",
	CodeNetworkError:        "Network error. Please try again.",
	CodeRateLimited:         "Too many requests. Please wait a moment.",
	CodeInvalidConfig:       "Invalid bundle configuration",
	CodeProviderMissing:     "Bundle provider is not configured",
	CodeUnknownError:        "An unexpected error occurred",
	CodeBadRequest:          "Bad request",
}

var defaultStatuses = map[string]int{
	CodeBundleNotFound:      http.StatusNotFound,
	CodeComponentOutOfStock: http.StatusConflict,
	CodeInvalidSelection:    http.StatusUnprocessableEntity,
	CodeSelectionIncomplete: http.StatusUnprocessableEntity,
	CodeCartError:           http.StatusUnprocessableEntity,
	CodeNetworkError:        http.StatusBadGateway,
	CodeRateLimited:         http.StatusTooManyRequests,
	CodeInvalidConfig:       http.StatusInternalServerError,
	CodeProviderMissing:     http.StatusInternalServerError,
	CodeUnknownError:        http.StatusInternalServerError,
	CodeBadRequest:          http.StatusBadRequest,
}

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// ComponentDetail identifies the bundle component implicated by an error.
type ComponentDetail struct {
	ProductID string `json:"productId,omitempty"`
	VariantID string `json:"variantId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = DefaultMessage(e.Code)
	}
	if e.Err != nil {
		return e.Code + ": " + msg + ": " + e.Err.Error()
	}
	return e.Code + ": " + msg
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// NewError constructs an AppError whose status is derived from the code. An
// empty message keeps the code's default user-facing text.
func NewError(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: StatusFor(code), Err: err}
}

// WithDetails attaches structured detail and returns the same error.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// DefaultMessage returns the user-facing default for a code.
func DefaultMessage(code string) string {
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return defaultMessages[CodeUnknownError]
}

// StatusFor maps a code to the HTTP status used when rendering it.
func StatusFor(code string) int {
	if status, ok := defaultStatuses[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the taxonomy code carried by err, or UNKNOWN_ERROR.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	return CodeUnknownError
}

// UserMessage resolves err to the single string shown to shoppers.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Message != "" {
			return appErr.Message
		}
		return DefaultMessage(appErr.Code)
	}
	return DefaultMessage(CodeUnknownError)
}

// Recoverable reports whether retrying the same call may succeed.
func Recoverable(err error) bool {
	switch CodeOf(err) {
	case CodeNetworkError, CodeRateLimited, CodeCartError, CodeComponentOutOfStock:
		return true
	default:
		return false
	}
}

// KnownCode reports whether code belongs to the taxonomy.
func KnownCode(code string) bool {
	_, ok := defaultMessages[code]
	return ok
}
