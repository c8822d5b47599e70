// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrQuoteUnavailable  = errors.New("quote unavailable")
	ErrRateUnavailable   = errors.New("exchange rate unavailable")
	ErrSymbolNotFound    = errors.New("symbol not found")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidAlert      = errors.New("invalid alert")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDatabaseError     = errors.New("database error")
	ErrSchedulerDisposed = errors.New("scheduler disposed")
	ErrInputValidation   = errors.New("input validation failed")
)

// FetchError represents a failed call to the quote source.
type FetchError struct {
	Kind   string // quote, rate
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error [%s] %s: %v", e.Kind, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(kind, symbol string, err error) *FetchError {
	return &FetchError{
		Kind:   kind,
		Symbol: symbol,
		Err:    err,
	}
}

// RateError reports that a fresh rate could not be obtained.
// Stale is set when an expired cached rate exists; the caller decides
// whether to use it.
type RateError struct {
	From  string
	To    string
	Stale bool
	Err   error
}

func (e *RateError) Error() string {
	if e.Stale {
		return fmt.Sprintf("rate %s/%s unavailable (stale value cached): %v", e.From, e.To, e.Err)
	}
	return fmt.Sprintf("rate %s/%s unavailable: %v", e.From, e.To, e.Err)
}

func (e *RateError) Unwrap() []error {
	return []error{ErrRateUnavailable, e.Err}
}

// NewRateError creates a new RateError.
func NewRateError(from, to string, stale bool, err error) *RateError {
	return &RateError{
		From:  from,
		To:    to,
		Stale: stale,
		Err:   err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
