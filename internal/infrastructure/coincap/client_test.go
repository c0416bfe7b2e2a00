package coincap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsnap/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "secret"})
}

func TestListAssets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data":[
			{"id":"bitcoin","rank":"1","symbol":"BTC","priceUsd":"60000.5"},
			{"id":"ethereum","rank":2,"symbol":"ETH","priceUsd":null}
		],"timestamp":1700000000000}`))
	})

	records, err := c.ListAssets(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "bitcoin", records[0].ID())
	assert.Equal(t, "1", records[0]["rank"])
	assert.Equal(t, json.Number("2"), records[1]["rank"], "numbers keep their textual form")
	assert.Nil(t, records[1]["priceUsd"])
}

func TestListAssetsWithoutData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	})

	records, err := c.ListAssets(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListAssetsErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantText   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"bad key"}`, wantStatus: 401, wantText: "check the API key"},
		{name: "rate_limited", status: http.StatusTooManyRequests, wantStatus: 429, wantText: "rate limit"},
		{name: "server_error", status: http.StatusBadGateway, body: "upstream", wantStatus: 502, wantText: "upstream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			records, err := c.ListAssets(context.Background(), 10)
			require.Error(t, err)
			assert.Nil(t, records)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Contains(t, err.Error(), tt.wantText)
			assert.NotContains(t, err.Error(), "secret")
		})
	}
}

func TestListAssetsMalformedPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := c.ListAssets(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestTransportErrorDoesNotLeakKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"})

	_, err := c.ListAssets(context.Background(), 1)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestGetAsset(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/assets/bitcoin":
			w.Write([]byte(`{"data":{"id":"bitcoin","name":"Bitcoin","symbol":"BTC","priceUsd":"60000"}}`))
		case "/assets/empty":
			w.Write([]byte(`{"data":null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
		}
	})
	ctx := context.Background()

	asset, err := c.GetAsset(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin", asset["name"])

	_, err = c.GetAsset(ctx, "empty")
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)

	_, err = c.GetAsset(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		_, err := c.ListAssets(context.Background(), 1)
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load(), "requests stop once the breaker is open")
}

func TestUnknownAssetsDoNotOpenBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/assets" {
			w.Write([]byte(`{"data":[{"id":"bitcoin","rank":"1"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.GetAsset(ctx, "no-such-coin")
		require.ErrorIs(t, err, domain.ErrAssetNotFound)
	}

	records, err := c.ListAssets(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
