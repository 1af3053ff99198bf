package peoplesearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkpellow/brainscraper.io-sub002/internal/resilience"
	"github.com/linkpellow/brainscraper.io-sub002/internal/search"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/leads/search", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req search.SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 1, req.Page)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"name":"Jane Smith","geoLocationName":"Austin, Texas"}],"pagination":{"total":40,"count":1,"start":0}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("test-token", "", ""))
	leads, page, err := client.Search(context.Background(), search.SearchRequest{Page: 1})

	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Jane Smith", leads[0].Name)
	assert.Equal(t, 40, page.Total)
}

func TestSearch_RateLimitNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("test-token", "", ""))
	_, _, err := client.Search(context.Background(), search.SearchRequest{})

	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	assert.False(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load()) // a 429 never re-enters the retry loop
}

func TestSearch_TransientRetriedThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":[{"name":"Retry Rita"}]}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("test-token", "", ""),
		WithRetryConfig(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}))
	leads, _, err := client.Search(context.Background(), search.SearchRequest{})

	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_TransientExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("test-token", "", ""),
		WithRetryConfig(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}))
	_, _, err := client.Search(context.Background(), search.SearchRequest{})

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWithBaseURL_EmptyKeepsDefault(t *testing.T) {
	t.Parallel()

	c := NewClient(WithBaseURL("")).(*httpClient)
	assert.Equal(t, "https://api.peopledatasearch.io/v2", c.baseURL)
}

func TestLookupPerson_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("test-token", "", ""))
	person, err := client.LookupPerson(context.Background(), PersonQuery{Name: "Nobody"})

	require.NoError(t, err)
	assert.Nil(t, person)
}

func TestLookupPerson_PartialRecord(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/persons/find", r.URL.Path)
		w.Write([]byte(`{"person":{"id":"p-99","name":"Thin Record"}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("test-token", "", ""))
	person, err := client.LookupPerson(context.Background(), PersonQuery{Name: "Thin Record"})

	require.NoError(t, err)
	require.NotNil(t, person)
	assert.Equal(t, "p-99", person.ID)
	assert.Empty(t, person.Phones) // partial success, missing fields stay empty
}

func TestContactDetails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/persons/p-7/contact", r.URL.Path)
		w.Write([]byte(`{"contact":{"phones":["+15125550100"],"emails":["a@b.example"]}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("test-token", "", ""))
	contact, err := client.ContactDetails(context.Background(), "p-7")

	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, []string{"+15125550100"}, contact.Phones)
}

func TestDemographics(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/persons/p-7/demographics", r.URL.Path)
		w.Write([]byte(`{"demographics":{"dateOfBirth":"1984-02-11","age":41,"income":"75k-100k"}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("test-token", "", ""))
	demo, err := client.Demographics(context.Background(), "p-7")

	require.NoError(t, err)
	require.NotNil(t, demo)
	assert.Equal(t, 41, demo.Age)
	assert.Equal(t, "75k-100k", demo.Income)
}

// --- Token chain ---

func TestTokenChain_CachedFileUsed(t *testing.T) {
	t.Parallel()

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("file-token\n"), 0600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer file-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"person":{"id":"p-1","name":"A"}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("", tokenFile, ""))
	_, err := client.LookupPerson(context.Background(), PersonQuery{Name: "A"})
	require.NoError(t, err)
}

func TestTokenChain_RefreshExchangeAndCacheWrite(t *testing.T) {
	t.Parallel()

	tokenFile := filepath.Join(t.TempDir(), "token")

	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			exchanges.Add(1)
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "refresh_token", req["grant_type"])
			assert.Equal(t, "my-refresh", req["refresh_token"])
			w.Write([]byte(`{"access_token":"fresh-token"}`))
			return
		}
		assert.Equal(t, "Bearer fresh-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"person":{"id":"p-1","name":"A"}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("", tokenFile, "my-refresh"))

	_, err := client.LookupPerson(context.Background(), PersonQuery{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), exchanges.Load())

	// The exchanged token was cached to disk for the next process.
	data, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", string(data))

	// Second call reuses the in-memory token, no second exchange.
	_, err = client.LookupPerson(context.Background(), PersonQuery{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestTokenChain_StaleTokenRefreshedOn401(t *testing.T) {
	t.Parallel()

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("stale-token"), 0600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			w.Write([]byte(`{"access_token":"fresh-token"}`))
			return
		}
		if r.Header.Get("Authorization") == "Bearer stale-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"person":{"id":"p-1","name":"A"}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithTokens("", tokenFile, "my-refresh"))
	person, err := client.LookupPerson(context.Background(), PersonQuery{Name: "A"})

	require.NoError(t, err)
	require.NotNil(t, person)
}

func TestTokenChain_NoCredentials(t *testing.T) {
	t.Parallel()

	client := NewClient(WithBaseURL("http://127.0.0.1:0"))
	_, err := client.LookupPerson(context.Background(), PersonQuery{Name: "A"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredentials)
}
