package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential means the gateway secret is absent from the
	// process configuration. Checked before any request body is read.
	ErrMissingCredential = errors.New("payment gateway credential not configured")

	// ErrGatewayTimeout marks a submission that exceeded the hard timeout.
	// Kept distinct from other network failures so the boundary can answer
	// 408 instead of a generic 500.
	ErrGatewayTimeout = errors.New("payment gateway request timed out")

	// ErrGatewayUnavailable is returned when the circuit breaker refuses a
	// call without reaching the gateway.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// ValidationError rejects a checkout request before it reaches the gateway.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// MissingField builds the validation error for an absent required field.
// The message names the field so the storefront can focus it.
func MissingField(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("missing required field: %s", field),
	}
}

// GatewayError is a non-success answer from the payment gateway. Message is
// derived from the response with fixed precedence (field errors, then the
// top-level error string, then a generic fallback); Details keeps the raw
// payload for diagnostics.
type GatewayError struct {
	StatusCode int
	Message    string
	Details    json.RawMessage
}

func (e *GatewayError) Error() string {
	return e.Message
}
