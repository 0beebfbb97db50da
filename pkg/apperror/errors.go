package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"pin-ledger/internal/core/domain"
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

// ---- Accounts (ACC) ----

func ErrAccountExists() *AppError {
	return New("ACC_001", "Account already exists", http.StatusConflict)
}

func ErrAccountNotFound() *AppError {
	return New("ACC_002", "Account not found", http.StatusNotFound)
}

func ErrInvalidPin() *AppError {
	return New("ACC_003", "PIN does not satisfy the PIN policy", http.StatusBadRequest)
}

func ErrInvalidAccountID() *AppError {
	return New("ACC_004", "Invalid account id", http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrWrongPin() *AppError {
	return New("AUTH_002", "Incorrect PIN", http.StatusForbidden)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Ledger (LED) ----

func ErrInvalidAmount() *AppError {
	return New("LED_001", "Invalid amount", http.StatusBadRequest)
}

func ErrInsufficientFunds() *AppError {
	return New("LED_002", "Insufficient funds", http.StatusPaymentRequired)
}

func ErrSameAccount() *AppError {
	return New("LED_003", "Cannot transfer to the same account", http.StatusUnprocessableEntity)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Idempotency (IDEM) ----

func ErrRequestInFlight() *AppError {
	return New("IDEM_001", "A request with this Idempotency-Key is still in progress", http.StatusConflict)
}

func ErrIdempotencyKeyReused() *AppError {
	return New("IDEM_002", "Idempotency-Key was already used with a different request", http.StatusUnprocessableEntity)
}

// ---- System & Infrastructure (SYS) ----

func ErrStorageFailure(err error) *AppError {
	return Wrap("SYS_001", "Internal storage error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// FromDomain maps a ledger error kind to its AppError. It returns nil when
// err carries no ledger kind.
func FromDomain(err error) *AppError {
	var e *AppError
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		e = ErrAccountExists()
	case errors.Is(err, domain.ErrNotFound):
		e = ErrAccountNotFound()
	case errors.Is(err, domain.ErrInvalidPin):
		e = ErrInvalidPin()
	case errors.Is(err, domain.ErrInvalidAccountID):
		e = ErrInvalidAccountID()
	case errors.Is(err, domain.ErrWrongPin):
		e = ErrWrongPin()
	case errors.Is(err, domain.ErrInvalidAmount):
		e = ErrInvalidAmount()
	case errors.Is(err, domain.ErrInsufficientFunds):
		e = ErrInsufficientFunds()
	case errors.Is(err, domain.ErrSameAccount):
		e = ErrSameAccount()
	case errors.Is(err, domain.ErrStorageFailure):
		return ErrStorageFailure(err)
	default:
		return nil
	}
	e.Err = err
	return e
}
