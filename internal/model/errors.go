package model

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrAbstractNotFound     = errors.New("abstract not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrQuotaNotFound        = errors.New("quota not found")
	ErrRecordNotFound       = errors.New("record not found")
	ErrItemNotFound         = errors.New("line item not found")
	ErrDiscountNotFound     = errors.New("discount code not found")

	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrAlreadyPaid           = errors.New("record already paid")

	// ErrPaymentPending means the record already has an open gateway order.
	ErrPaymentPending = errors.New("payment already in progress")

	// ErrConflict marks a unique-index collision or a failed precondition on a
	// concurrent update. Callers retry it a bounded number of times.
	ErrConflict = errors.New("conflict")

	ErrNoActivePricing     = errors.New("no active pricing")
	ErrSignatureMismatch   = errors.New("signature mismatch")
	ErrQuotaExhausted      = errors.New("quota exhausted")
	ErrIdentifierExhausted = errors.New("identifier allocation exhausted")
)

// ValidationError is malformed or missing input. It never changes state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// GatewayError wraps a failure talking to the payment provider. The payment
// it concerns stays initiated.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Retryable is always true; the caller may try again with a new request.
func (e *GatewayError) Retryable() bool { return true }

// DiscountRejected is returned when a code cannot be applied.
type DiscountRejected struct {
	Code   string
	Reason string
}

func (e *DiscountRejected) Error() string {
	return fmt.Sprintf("discount code %q rejected: %s", e.Code, e.Reason)
}
