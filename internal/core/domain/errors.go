package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrTemporary         = errors.New("temporary failure")
	ErrStateConflict     = errors.New("processing state conflict")
	ErrInvalidTransition = errors.New("invalid processing state transition")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrUnsupportedMIME   = errors.New("unsupported mime type")
	ErrProvider          = errors.New("ai provider error")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type ProviderErrorKind string

const (
	ProviderAuth            ProviderErrorKind = "auth"
	ProviderRateLimit       ProviderErrorKind = "rate-limit"
	ProviderQuota           ProviderErrorKind = "quota"
	ProviderPayloadTooLarge ProviderErrorKind = "payload-too-large"
	ProviderUnavailable     ProviderErrorKind = "unavailable"
	ProviderInvalidResponse ProviderErrorKind = "invalid-response"
)

type ProviderError struct {
	Kind       ProviderErrorKind
	Provider   string
	Operation  string
	StatusCode int
	// RetryAfter is the provider's own back-off hint, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func NewProviderError(kind ProviderErrorKind, provider, operation string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Operation: operation, Err: err}
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Operation != "" {
		b.WriteString(" ")
		b.WriteString(e.Operation)
	}
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	if target == ErrProvider {
		return true
	}
	return target == ErrTemporary && e.Retryable()
}

// Retryable reports whether a caller may retry with backoff.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ProviderRateLimit || e.Kind == ProviderUnavailable
}

func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

type DimensionMismatchError struct {
	Model    string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch for model %q: expected %d, got %d", e.Model, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// CheckDimensions returns a DimensionMismatchError unless vector has exactly want elements.
func CheckDimensions(model string, want int, vector []float32) error {
	if len(vector) != want {
		return &DimensionMismatchError{Model: model, Expected: want, Actual: len(vector)}
	}
	return nil
}
