package suggest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/brainscraper.io-sub002/internal/resilience"
)

func fastRetry() Option {
	return WithRetryConfig(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond})
}

func TestSuggestSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "north carolina", r.URL.Query().Get("q"))
		w.Write([]byte(`{"suggestions":[{"id":"loc:nc","displayText":"North Carolina, United States"},{"id":"loc:nc2","displayText":"North Carolina A&T"}]}`))
	}))
	defer srv.Close()

	src := NewSuggestSource(srv.URL)
	assert.Equal(t, "suggest", src.Name())

	candidates, err := src.Suggest(context.Background(), "north carolina")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "loc:nc", candidates[0].ID)
	assert.Equal(t, "North Carolina, United States", candidates[0].DisplayText)
}

func TestAutocompleteSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"value":"loc:tx","label":"Texas"}]}`))
	}))
	defer srv.Close()

	src := NewAutocompleteSource(srv.URL)
	assert.Equal(t, "autocomplete", src.Name())

	candidates, err := src.Suggest(context.Background(), "texas")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "loc:tx", candidates[0].ID)
	assert.Equal(t, "Texas", candidates[0].DisplayText)
}

func TestSuggest_Empty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"suggestions":[]}`))
	}))
	defer srv.Close()

	candidates, err := NewSuggestSource(srv.URL).Suggest(context.Background(), "atlantis")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSuggest_ServerErrorExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewSuggestSource(srv.URL, fastRetry()).Suggest(context.Background(), "texas")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSuggest_TransientRetriedThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"suggestions":[{"id":"loc:tx","displayText":"Texas"}]}`))
	}))
	defer srv.Close()

	candidates, err := NewSuggestSource(srv.URL, fastRetry()).Suggest(context.Background(), "texas")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSuggest_RateLimitNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewSuggestSource(srv.URL, fastRetry()).Suggest(context.Background(), "texas")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	assert.Equal(t, int32(1), calls.Load()) // a 429 never re-enters the retry loop
}

func TestSuggest_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewSuggestSource(srv.URL).Suggest(context.Background(), "texas")
	assert.Error(t, err)
}
