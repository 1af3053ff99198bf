// Package suggest provides the live location discovery sources: a typeahead
// suggestion API and an autocomplete variant with a different response
// shape. Both satisfy resolve.Source.
package suggest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/linkpellow/brainscraper.io-sub002/internal/resilience"
	"github.com/linkpellow/brainscraper.io-sub002/internal/resolve"
)

// Option configures a discovery source.
type Option func(*source)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *source) {
		s.http = hc
	}
}

// WithRetryConfig overrides the transient-failure retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(s *source) {
		s.retry = cfg
	}
}

type source struct {
	name    string
	baseURL string
	http    *http.Client
	decode  func([]byte) ([]resolve.Candidate, error)
	retry   resilience.RetryConfig
}

// NewSuggestSource builds the primary typeahead source. Response shape:
// {"suggestions":[{"id":"...","displayText":"..."}]}.
func NewSuggestSource(baseURL string, opts ...Option) resolve.Source {
	return newSource("suggest", baseURL, decodeSuggest, opts...)
}

// NewAutocompleteSource builds the fallback autocomplete source. Response
// shape: {"items":[{"value":"...","label":"..."}]}.
func NewAutocompleteSource(baseURL string, opts ...Option) resolve.Source {
	return newSource("autocomplete", baseURL, decodeAutocomplete, opts...)
}

func newSource(name, baseURL string, decode func([]byte) ([]resolve.Candidate, error), opts ...Option) *source {
	s := &source{
		name:    name,
		baseURL: baseURL,
		decode:  decode,
		http:    &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			Multiplier:     2.0,
			OnRetry:        resilience.RetryLogger(name, "suggest"),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *source) Name() string { return s.name }

// Suggest queries the discovery endpoint. Transient provider failures retry
// under the shared backoff policy; a 429 returns immediately as a
// RateLimitError for the governor to handle.
func (s *source) Suggest(ctx context.Context, query string) ([]resolve.Candidate, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]resolve.Candidate, error) {
		return s.suggestOnce(ctx, query)
	})
}

func (s *source) suggestOnce(ctx context.Context, query string) ([]resolve.Candidate, error) {
	reqURL := s.baseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: create request", s.name)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "%s: request failed", s.name), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: read response", s.name)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resilience.NewRateLimitError(s.name, eris.Errorf("status 429: %s", string(body)))
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("%s: status %d: %s", s.name, resp.StatusCode, string(body)), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("%s: unexpected status %d: %s", s.name, resp.StatusCode, string(body))
	}

	candidates, err := s.decode(body)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: decode response", s.name)
	}
	return candidates, nil
}

func decodeSuggest(body []byte) ([]resolve.Candidate, error) {
	var result struct {
		Suggestions []struct {
			ID          string `json:"id"`
			DisplayText string `json:"displayText"`
		} `json:"suggestions"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	candidates := make([]resolve.Candidate, 0, len(result.Suggestions))
	for _, s := range result.Suggestions {
		candidates = append(candidates, resolve.Candidate{ID: s.ID, DisplayText: s.DisplayText})
	}
	return candidates, nil
}

func decodeAutocomplete(body []byte) ([]resolve.Candidate, error) {
	var result struct {
		Items []struct {
			Value string `json:"value"`
			Label string `json:"label"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	candidates := make([]resolve.Candidate, 0, len(result.Items))
	for _, item := range result.Items {
		candidates = append(candidates, resolve.Candidate{ID: item.Value, DisplayText: item.Label})
	}
	return candidates, nil
}
