package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if pe, ok := domain.AsProviderError(err); ok {
		switch pe.Kind {
		case domain.ProviderRateLimit:
			return http.StatusTooManyRequests
		case domain.ProviderPayloadTooLarge:
			return http.StatusRequestEntityTooLarge
		case domain.ProviderUnavailable:
			return http.StatusServiceUnavailable
		default:
			// Misconfigured or misbehaving upstream, not the caller's fault.
			return http.StatusBadGateway
		}
	}
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrStateConflict), domain.IsKind(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrUnsupportedMIME):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal details of 5xx errors other than provider ones.
func publicMessage(status int, err error) string {
	if _, ok := domain.AsProviderError(err); ok {
		return err.Error()
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		return http.StatusText(status)
	}
	return err.Error()
}
