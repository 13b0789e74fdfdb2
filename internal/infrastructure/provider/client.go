package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

const defaultBaseURL = "https://api.connect.fastenhealth.com/v1"

// APIError is a non-2xx response from the provider API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure class is transient: request timeout,
// rate limiting, or a server-side error.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable is the retry predicate for provider calls.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Config carries the provider API endpoint and credential pair.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client is the HTTP adapter for the provider's bridge API. It implements
// ports.ProviderClient and ports.Downloader, authenticating every call with
// the credential pair and funneling requests through the rate limiter and
// the retry policy.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	logger      zerolog.Logger
}

// NewClient creates a provider client. Credentials may be absent; calls then
// return ports.ErrProviderNotConfigured so callers can skip gracefully.
func NewClient(cfg Config, rateLimiter *RateLimiter, retryConfig RetryConfig, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rateLimiter,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

func (c *Client) configured() bool {
	return c.cfg.APIKey != "" && c.cfg.APISecret != ""
}

// RequestExport asks the provider to start a bulk export for the connection.
func (c *Client) RequestExport(ctx context.Context, connectionID string) (*domain.ExportTask, error) {
	if !c.configured() {
		return nil, ports.ErrProviderNotConfigured
	}

	url := fmt.Sprintf("%s/bridge/connection/%s/export", strings.TrimSuffix(c.cfg.BaseURL, "/"), connectionID)

	var task domain.ExportTask
	err := Do(ctx, c.retryConfig, c.logger, func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		return c.doJSON(ctx, http.MethodPost, url, &task)
	}, IsRetryable)
	if err != nil {
		return nil, fmt.Errorf("failed to request export for connection %s: %w", connectionID, err)
	}

	c.logger.Info().
		Str("connectionId", connectionID).
		Str("taskId", task.TaskID).
		Str("status", task.Status).
		Msg("Provider accepted export request")
	return &task, nil
}

// ConnectionStatus is a read-only probe of the provider-side connection
// state. It is a single attempt; diagnostics tolerate probe failure.
func (c *Client) ConnectionStatus(ctx context.Context, connectionID string) (string, error) {
	if !c.configured() {
		return "", ports.ErrProviderNotConfigured
	}

	url := fmt.Sprintf("%s/bridge/connection/%s", strings.TrimSuffix(c.cfg.BaseURL, "/"), connectionID)

	var status struct {
		Status string `json:"status"`
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}
	if err := c.doJSON(ctx, http.MethodGet, url, &status); err != nil {
		return "", fmt.Errorf("failed to probe connection %s: %w", connectionID, err)
	}
	return status.Status, nil
}

// Download fetches a bulk-export payload by its opaque download reference.
// The caller owns the returned stream.
func (c *Client) Download(ctx context.Context, downloadRef string) (io.ReadCloser, error) {
	if !c.configured() {
		return nil, ports.ErrProviderNotConfigured
	}

	var body io.ReadCloser
	err := Do(ctx, c.retryConfig, c.logger, func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadRef, nil)
		if err != nil {
			return fmt.Errorf("failed to create download request: %w", err)
		}
		req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &APIError{StatusCode: resp.StatusCode, Body: string(payload)}
		}
		body = resp.Body
		return nil
	}, IsRetryable)
	if err != nil {
		return nil, fmt.Errorf("failed to download export payload: %w", err)
	}
	return body, nil
}

// doJSON performs one authenticated request and decodes a JSON response.
func (c *Client) doJSON(ctx context.Context, method, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
