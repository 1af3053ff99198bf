// Package peoplesearch provides a client for the people-data search
// provider: lead search plus person lookup, contact detail, and demographic
// enrichment.
package peoplesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
	"github.com/linkpellow/brainscraper.io-sub002/internal/resilience"
	"github.com/linkpellow/brainscraper.io-sub002/internal/search"
)

// Client defines the people-data provider operations.
type Client interface {
	// Search runs a structured lead search and returns one page of results.
	Search(ctx context.Context, req search.SearchRequest) ([]model.LeadRecord, search.Pagination, error)
	// LookupPerson finds a person record by identifying fields.
	LookupPerson(ctx context.Context, query PersonQuery) (*Person, error)
	// ContactDetails fetches direct contact data for a previously-returned
	// person identifier.
	ContactDetails(ctx context.Context, personID string) (*ContactInfo, error)
	// Demographics fetches demographic fields for a person identifier.
	Demographics(ctx context.Context, personID string) (*DemographicInfo, error)
}

// PersonQuery identifies a person for lookup.
type PersonQuery struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Zip     string `json:"zip,omitempty"`
}

// Person is a provider person record. Any field may be absent; callers treat
// a thin record as a partial success, not a failure.
type Person struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Phones      []string `json:"phones,omitempty"`
	Emails      []string `json:"emails,omitempty"`
	DateOfBirth string   `json:"dateOfBirth,omitempty"`
	Age         int      `json:"age,omitempty"`
	Income      string   `json:"income,omitempty"`
	Zip         string   `json:"zip,omitempty"`
}

// ContactInfo is the direct contact detail payload.
type ContactInfo struct {
	Phones []string `json:"phones,omitempty"`
	Emails []string `json:"emails,omitempty"`
}

// DemographicInfo is the demographic detail payload.
type DemographicInfo struct {
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Age         int    `json:"age,omitempty"`
	Income      string `json:"income,omitempty"`
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

// WithTokens configures the credential chain: an explicit token wins, then a
// cached token file, then a refresh-token exchange.
func WithTokens(token, tokenFile, refreshToken string) Option {
	return func(c *httpClient) {
		c.tokens = newTokenSource(token, tokenFile, refreshToken, &c.baseURL, c.http)
	}
}

// WithRetryConfig overrides the transient-failure retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	tokens  *tokenSource
	retry   resilience.RetryConfig
}

// NewClient creates a people-data provider client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://api.peopledatasearch.io/v2",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 1 * time.Second,
			Multiplier:     2.0,
			OnRetry:        resilience.RetryLogger("peoplesearch", "request"),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens = newTokenSource("", "", "", &c.baseURL, c.http)
	}
	return c
}

type apiResponse struct {
	body   []byte
	status int
}

// do executes one authenticated API call with backoff retries on transient
// failures. A 401 invalidates the cached token and retries once after a
// refresh; a 429 surfaces as a RateLimitError without any local retry.
func (c *httpClient) do(ctx context.Context, method, path string, payload, out any) error {
	resp, err := c.call(ctx, method, path, payload)
	if resp.status == http.StatusUnauthorized {
		if refreshErr := c.tokens.invalidate(ctx); refreshErr != nil {
			return eris.Wrap(refreshErr, "peoplesearch: token refresh")
		}
		resp, err = c.call(ctx, method, path, payload)
	}
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound {
		return nil // absent record, not an error; out stays zero
	}
	if resp.status != http.StatusOK {
		return eris.Errorf("peoplesearch: unexpected status %d: %s", resp.status, string(resp.body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return eris.Wrap(err, "peoplesearch: unmarshal response")
	}
	return nil
}

// call runs one authenticated request under the shared retry policy.
// Transient statuses and network failures are retried with backoff; a 429
// short-circuits the policy so rate limits route to the governor's cooldown
// rather than a local retry loop.
func (c *httpClient) call(ctx context.Context, method, path string, payload any) (apiResponse, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (apiResponse, error) {
		return c.attempt(ctx, method, path, payload)
	})
}

func (c *httpClient) attempt(ctx context.Context, method, path string, payload any) (apiResponse, error) {
	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return apiResponse{}, eris.Wrap(err, "peoplesearch: marshal request")
		}
		bodyReader = bytes.NewReader(b)
	}

	token, err := c.tokens.token(ctx)
	if err != nil {
		return apiResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return apiResponse{}, eris.Wrap(err, "peoplesearch: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, resilience.NewTransientError(eris.Wrap(err, "peoplesearch: request failed"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiResponse{}, eris.Wrap(err, "peoplesearch: read response body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return apiResponse{}, resilience.NewRateLimitError("peoplesearch",
			eris.Errorf("status 429: %s", string(body)))
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return apiResponse{}, resilience.NewTransientError(
			eris.Errorf("peoplesearch: status %d: %s", resp.StatusCode, string(body)), resp.StatusCode)
	}
	return apiResponse{body: body, status: resp.StatusCode}, nil
}

func (c *httpClient) Search(ctx context.Context, req search.SearchRequest) ([]model.LeadRecord, search.Pagination, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/leads/search", req, &raw); err != nil {
		return nil, search.Pagination{}, err
	}
	leads, page, err := search.ParseLeadEnvelope(raw)
	if err != nil {
		return nil, page, eris.Wrap(err, "peoplesearch: parse search response")
	}
	return leads, page, nil
}

func (c *httpClient) LookupPerson(ctx context.Context, query PersonQuery) (*Person, error) {
	var result struct {
		Person *Person `json:"person"`
	}
	if err := c.do(ctx, http.MethodPost, "/persons/find", query, &result); err != nil {
		return nil, err
	}
	return result.Person, nil
}

func (c *httpClient) ContactDetails(ctx context.Context, personID string) (*ContactInfo, error) {
	var result struct {
		Contact *ContactInfo `json:"contact"`
	}
	if err := c.do(ctx, http.MethodGet, "/persons/"+personID+"/contact", nil, &result); err != nil {
		return nil, err
	}
	return result.Contact, nil
}

func (c *httpClient) Demographics(ctx context.Context, personID string) (*DemographicInfo, error) {
	var result struct {
		Demographics *DemographicInfo `json:"demographics"`
	}
	if err := c.do(ctx, http.MethodGet, "/persons/"+personID+"/demographics", nil, &result); err != nil {
		return nil, err
	}
	return result.Demographics, nil
}
