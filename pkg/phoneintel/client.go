// Package phoneintel provides a client for the phone-intelligence provider
// (line type and carrier classification).
package phoneintel

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

// Line types reported by the provider. VoIP and junk numbers are treated as
// non-human-reachable downstream.
const (
	LineTypeMobile   = "mobile"
	LineTypeLandline = "landline"
	LineTypeVoIP     = "voip"
	LineTypePrepaid  = "prepaid"
	LineTypeJunk     = "junk"
)

// Validation is the line classification for one phone number.
type Validation struct {
	LineType  string `json:"lineType"`
	Carrier   string `json:"carrier,omitempty"`
	Reachable bool   `json:"reachable"`
}

// HumanReachable reports whether the classified line can plausibly reach a
// person. VoIP, prepaid, and junk lines are excluded from further
// enrichment.
func (v Validation) HumanReachable() bool {
	switch v.LineType {
	case LineTypeVoIP, LineTypePrepaid, LineTypeJunk:
		return false
	}
	return v.Reachable
}

// Client defines the phone-intelligence operations.
type Client interface {
	Validate(ctx context.Context, number string) (*Validation, error)
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

// NewClient creates a phone-intelligence client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.phonetrust.io/v1",
		http:    &http.Client{Timeout: 15 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 1 * time.Second,
			Multiplier:     2.0,
			OnRetry:        resilience.RetryLogger("phoneintel", "validate"),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate classifies one phone number. Transient provider failures retry
// under the shared backoff policy; a 429 returns immediately as a
// RateLimitError for the governor to handle.
func (c *httpClient) Validate(ctx context.Context, number string) (*Validation, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Validation, error) {
		return c.validateOnce(ctx, number)
	})
}

func (c *httpClient) validateOnce(ctx context.Context, number string) (*Validation, error) {
	reqURL := c.baseURL + "/validate?number=" + url.QueryEscape(number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "phoneintel: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "phoneintel: request failed"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "phoneintel: read response body")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resilience.NewRateLimitError("phoneintel", eris.Errorf("status 429: %s", string(body)))
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("phoneintel: status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("phoneintel: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result Validation
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "phoneintel: unmarshal response")
	}
	return &result, nil
}
