package llmhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const maxErrorBody = 2048

// Client posts JSON to one provider and classifies every failure into a
// domain.ProviderError.
type Client struct {
	Provider   string
	BaseURL    string
	HTTPClient *http.Client
	Headers    map[string]string
}

func (c *Client) PostJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return c.transportError(ctx, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.statusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewProviderError(domain.ProviderInvalidResponse, c.Provider, operation, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, operation string, err error) error {
	// Caller cancellation is not a provider failure.
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return domain.NewProviderError(domain.ProviderUnavailable, c.Provider, operation, err)
}

func (c *Client) statusError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(raw)),
	}
	pe := domain.NewProviderError(ClassifyStatus(resp.StatusCode, statusErr.Body), c.Provider, operation, statusErr)
	pe.StatusCode = resp.StatusCode
	pe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	return pe
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "status: " + e.Status
	}
	return "status: " + e.Status + ": " + e.Body
}

// ClassifyStatus maps an HTTP status (and, for 429, the body) onto a provider error kind.
func ClassifyStatus(statusCode int, body string) domain.ProviderErrorKind {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ProviderAuth
	case http.StatusPaymentRequired:
		return domain.ProviderQuota
	case http.StatusRequestEntityTooLarge:
		return domain.ProviderPayloadTooLarge
	case http.StatusTooManyRequests:
		lower := strings.ToLower(body)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			return domain.ProviderQuota
		}
		return domain.ProviderRateLimit
	case http.StatusBadRequest:
		lower := strings.ToLower(body)
		if strings.Contains(lower, "maximum context length") || strings.Contains(lower, "too long") || strings.Contains(lower, "too large") {
			return domain.ProviderPayloadTooLarge
		}
		return domain.ProviderInvalidResponse
	}
	if statusCode == http.StatusRequestTimeout || statusCode >= 500 {
		return domain.ProviderUnavailable
	}
	return domain.ProviderInvalidResponse
}
