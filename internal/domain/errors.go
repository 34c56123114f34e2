package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrProviderTransient  = errors.New("provider transient failure")
	ErrProviderPermanent  = errors.New("provider permanent failure")
	ErrAllProvidersFailed = errors.New("all providers failed")
	ErrConfiguration      = errors.New("internal configuration error")
	ErrDuplicateNativeID  = errors.New("native job id already bound to another job")
)

// Validationf builds an ErrValidation with a field-level message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ErrorClass classifies provider failures.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
)

// ProviderError is returned by adapters. It unwraps to the class sentinel and
// to the underlying cause.
type ProviderError struct {
	Provider   Provider
	Class      ErrorClass
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (http %d): %v", e.Provider, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	sentinel := ErrProviderTransient
	if e.Class == ClassPermanent {
		sentinel = ErrProviderPermanent
	}
	return []error{sentinel, e.Err}
}

// AllProvidersFailedError aggregates every attempt of one dispatch.
type AllProvidersFailedError struct {
	JobID    string
	Attempts []error
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		parts = append(parts, err.Error())
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

func (e *AllProvidersFailedError) Unwrap() error {
	return ErrAllProvidersFailed
}
