package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrOrderFinalized is returned when a mutation targets an order in a terminal status.
	ErrOrderFinalized = errors.New("order already finalized")

	ErrConflict = errors.New("conflicts with existing data")
)

// ValidationError carries field-level detail for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a field message and returns the receiver so checks can be chained.
func (e *ValidationError) Add(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
	return e
}

// OrNil returns nil when no field failed, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// PaymentGatewayError reports a failed call to the external payment gateway.
type PaymentGatewayError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *PaymentGatewayError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("payment gateway returned status %d: %s %s", e.StatusCode, e.Code, e.Message)
	case e.Err != nil:
		return "payment gateway: " + e.Err.Error()
	default:
		return "payment gateway: " + e.Message
	}
}

func (e *PaymentGatewayError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a storage or transaction failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
