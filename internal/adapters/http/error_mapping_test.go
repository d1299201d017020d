package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ValidationError("bad"), http.StatusBadRequest},
		{"unauthorized", domain.WrapError(domain.ErrUnauthorized, "op", errors.New("x")), http.StatusUnauthorized},
		{"forbidden", domain.WrapError(domain.ErrForbidden, "op", errors.New("x")), http.StatusForbidden},
		{"not found", fmt.Errorf("load: %w", domain.ErrDocumentNotFound), http.StatusNotFound},
		{"state conflict", domain.ErrStateConflict, http.StatusConflict},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusConflict},
		{"unsupported mime", domain.WrapError(domain.ErrUnsupportedMIME, "extract", errors.New("image/png")), http.StatusUnsupportedMediaType},
		{"temporary", domain.WrapError(domain.ErrTemporary, "search", errors.New("db down")), http.StatusServiceUnavailable},
		{"payload too large", domain.NewProviderError(domain.ProviderPayloadTooLarge, "openai", "embed", errors.New("x")), http.StatusRequestEntityTooLarge},
		{"quota", domain.NewProviderError(domain.ProviderQuota, "openai", "chat", errors.New("x")), http.StatusBadGateway},
		{"invalid response", domain.NewProviderError(domain.ProviderInvalidResponse, "ollama", "chat", errors.New("x")), http.StatusBadGateway},
		{"max bytes", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestPublicMessageHidesInternalErrors(t *testing.T) {
	if got := publicMessage(http.StatusInternalServerError, errors.New("pq: password authentication failed")); got != "Internal Server Error" {
		t.Fatalf("unexpected message %q", got)
	}
	err := domain.ValidationError("question is empty")
	if got := publicMessage(http.StatusBadRequest, err); got != err.Error() {
		t.Fatalf("expected validation message, got %q", got)
	}
}
