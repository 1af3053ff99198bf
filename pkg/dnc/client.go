// Package dnc provides a client for the do-not-call compliance registry.
// Checks are read-only and idempotent, safe to repeat for the same number.
package dnc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/linkpellow/brainscraper.io-sub002/internal/resilience"
)

// Status is a registry lookup result for one phone number.
type Status struct {
	Registered bool   `json:"registered"`
	Reason     string `json:"reason,omitempty"`
}

// Client defines the compliance registry operations.
type Client interface {
	Check(ctx context.Context, accountID, number string) (*Status, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing). An empty value keeps the
// production default.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryConfig overrides the transient-failure retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a compliance registry client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.dncregistry.io/v1",
		http:    &http.Client{Timeout: 15 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 1 * time.Second,
			Multiplier:     2.0,
			OnRetry:        resilience.RetryLogger("dnc", "check"),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check looks up one number in the registry. Transient provider failures
// retry under the shared backoff policy; a 429 returns immediately as a
// RateLimitError for the governor to handle.
func (c *httpClient) Check(ctx context.Context, accountID, number string) (*Status, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Status, error) {
		return c.checkOnce(ctx, accountID, number)
	})
}

func (c *httpClient) checkOnce(ctx context.Context, accountID, number string) (*Status, error) {
	query := url.Values{}
	query.Set("account", accountID)
	query.Set("number", number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/check?"+query.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "dnc: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "dnc: request failed"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "dnc: read response body")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resilience.NewRateLimitError("dnc", eris.Errorf("status 429: %s", string(body)))
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("dnc: status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("dnc: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result Status
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "dnc: unmarshal response")
	}
	return &result, nil
}
