package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger business rules ----

func ErrWalletNotFound() *AppError {
	return New("WALLET_NOT_FOUND", "Wallet not found", http.StatusNotFound)
}

func ErrMerchantNotFound() *AppError {
	return New("MERCHANT_NOT_FOUND", "Merchant not found", http.StatusNotFound)
}

func ErrInsufficientNova() *AppError {
	return New("INSUFFICIENT_NOVA", "Insufficient Nova balance", http.StatusPaymentRequired)
}

func ErrNoDiscountAvailable() *AppError {
	return New("NO_DISCOUNT_AVAILABLE", "No discount available for this merchant", http.StatusUnprocessableEntity)
}

func ErrOrderAlreadyRedeemed() *AppError {
	return New("ORDER_ALREADY_REDEEMED", "Order has already been redeemed", http.StatusConflict)
}

func ErrInvalidOrderTotal() *AppError {
	return New("INVALID_ORDER_TOTAL", "Order total must be a positive amount", http.StatusBadRequest)
}

// ---- Pass protocol ----

func ErrAuthSecretMismatch() *AppError {
	return New("AUTH_SECRET_MISMATCH", "Pass authentication token mismatch", http.StatusUnauthorized)
}

// ---- Upstream dependencies (retryable class) ----

func ErrUpstreamOrderLookup(err error) *AppError {
	return Wrap("UPSTREAM_ORDER_LOOKUP_FAILED", "Order lookup at payment processor failed, try again", http.StatusBadGateway, err)
}

func ErrEncryptionKeyUnavailable(err error) *AppError {
	return Wrap("ENCRYPTION_KEY_UNAVAILABLE", "Encryption key unavailable", http.StatusInternalServerError, err)
}

// ---- Authentication (merchant API) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate limiting ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & infrastructure ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a generic request-validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
