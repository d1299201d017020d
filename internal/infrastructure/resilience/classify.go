package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// ClassifyProviderError retries only rate-limit and unavailable provider
// errors. Auth, quota and payload errors are configuration problems and do
// not trip the breaker.
func ClassifyProviderError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if pe, ok := domain.AsProviderError(err); ok {
		if pe.Retryable() {
			return ErrorClassification{Retryable: true, RecordFailure: true, RetryAfter: pe.RetryAfter}
		}
		return ErrorClassification{Retryable: false, RecordFailure: pe.Kind == domain.ProviderInvalidResponse}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if domain.IsKind(err, domain.ErrValidation) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return ErrorClassification{Retryable: false, RecordFailure: true}
}
