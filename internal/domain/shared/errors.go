// Package shared holds the error taxonomy and status types used across the ledger.
package shared

import "errors"

// Error kinds. Domain errors unwrap to exactly one of these so transports can
// map them to responses with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnknownPayee        = errors.New("unknown payee")
	ErrInvalidCallback     = errors.New("invalid callback")
	ErrContention          = errors.New("contention")
	ErrAllocationExhausted = errors.New("account number allocation exhausted")
)

// ValidationError describes a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func (e ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for field
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsRetryable reports whether err is worth retrying as a whole operation
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}
