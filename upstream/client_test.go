package upstream_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keksclan/zoraprofiles/upstream"
)

func newFakeUpstream(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFetchProfile(t *testing.T) {
	srv, _ := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/profile", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("identifier"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"profile":{"handle":"alice","displayName":"Alice"}}`))
	})

	c := upstream.New(upstream.Config{BaseURL: srv.URL, APIKey: "secret"})
	got, err := c.FetchProfile(t.Context(), "alice")
	require.NoError(t, err)
	assert.JSONEq(t, `{"handle":"alice","displayName":"Alice"}`, string(got))
}

func TestFetchProfile_Unknown(t *testing.T) {
	srv, _ := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	c := upstream.New(upstream.Config{BaseURL: srv.URL, APIKey: "secret"})
	got, err := c.FetchProfile(t.Context(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "null", string(got))
}

func TestFetchCoins(t *testing.T) {
	srv, _ := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/profileCoins", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`{"profile":{"createdCoins":{"edges":[{"node":{"name":"A"}},{"node":{"name":"B"}}]}}}`))
	})

	c := upstream.New(upstream.Config{BaseURL: srv.URL + "/", APIKey: "secret"})
	got, err := c.FetchCoins(t.Context(), "alice", 3)
	require.NoError(t, err)

	var edges []json.RawMessage
	require.NoError(t, json.Unmarshal(got, &edges))
	assert.Len(t, edges, 2)
}

func TestFetchCoins_MissingPathIsEmpty(t *testing.T) {
	for _, body := range []string{`{}`, `{"profile":null}`, `{"profile":{}}`, `{"profile":{"createdCoins":{"edges":null}}}`} {
		srv, _ := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		c := upstream.New(upstream.Config{BaseURL: srv.URL, APIKey: "secret"})
		got, err := c.FetchCoins(t.Context(), "alice", 3)
		require.NoError(t, err, body)
		assert.Equal(t, "[]", string(got), body)
	}
}

func TestFetch_StatusError(t *testing.T) {
	srv, _ := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	c := upstream.New(upstream.Config{BaseURL: srv.URL, APIKey: "secret"})
	_, err := c.FetchProfile(t.Context(), "alice")

	var se *upstream.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, "profile", se.Endpoint)
	assert.Equal(t, "rate limited", se.Body)
}

func TestFetch_InvalidJSON(t *testing.T) {
	srv, _ := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	c := upstream.New(upstream.Config{BaseURL: srv.URL, APIKey: "secret"})
	_, err := c.FetchProfile(t.Context(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode profile response")
}

func TestFetch_MissingAPIKey(t *testing.T) {
	srv, calls := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {})

	c := upstream.New(upstream.Config{BaseURL: srv.URL})
	require.ErrorIs(t, c.Ready(), upstream.ErrMissingAPIKey)

	_, err := c.FetchProfile(t.Context(), "alice")
	require.ErrorIs(t, err, upstream.ErrMissingAPIKey)
	assert.Zero(t, calls.Load())
}

func TestFetch_BreakerOpenSkipsUpstream(t *testing.T) {
	srv, calls := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	b := upstream.NewBreaker(upstream.BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute})
	c := upstream.New(upstream.Config{BaseURL: srv.URL, APIKey: "secret", Breaker: b})

	for range 2 {
		_, err := c.FetchProfile(t.Context(), "alice")
		require.Error(t, err)
	}
	require.Equal(t, upstream.BreakerOpen, b.State())

	_, err := c.FetchProfile(t.Context(), "alice")
	assert.True(t, errors.Is(err, upstream.ErrCircuitOpen), "got %v", err)
	assert.EqualValues(t, 2, calls.Load())
}
