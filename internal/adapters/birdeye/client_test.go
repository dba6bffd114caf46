package birdeye

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const solMint = "So11111111111111111111111111111111111111112"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}, zap.NewNop())
}

func TestClient_MultiPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, multiPriceEndpoint, r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "solana", r.Header.Get("x-chain"))
		assert.Equal(t, solMint+",missing", r.URL.Query().Get("list_address"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"` + solMint + `":{"value":150,"priceChange24h":2.5},"missing":null}}`))
	})

	prices, err := client.MultiPrice(context.Background(), []string{solMint, "missing"})
	require.NoError(t, err)
	require.NotNil(t, prices[solMint])
	assert.Equal(t, 150.0, prices[solMint].Value)
	assert.Equal(t, 2.5, prices[solMint].PriceChange24h)
	assert.Nil(t, prices["missing"])
}

func TestClient_MultiPrice_NoRetryOnServerError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.MultiPrice(context.Background(), []string{solMint})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var serverErr *ServerError
	assert.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusBadGateway, serverErr.StatusCode())
}

func TestClient_Price_RetriesServerError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, solMint, r.URL.Query().Get("address"))
		w.Write([]byte(`{"success":true,"data":{"value":151.2,"priceChange24h":-1.1}}`))
	})

	price, err := client.Price(context.Background(), solMint)
	require.NoError(t, err)
	assert.Equal(t, 151.2, price.Value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Price_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"message":"invalid address"}`))
	})

	_, err := client.Price(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_TokenOverview(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, tokenOverviewEndpoint, r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{"address":"` + solMint + `","symbol":"SOL","supply":600000000,"v24hUSD":1234.5}}`))
	})

	overview, err := client.TokenOverview(context.Background(), solMint)
	require.NoError(t, err)
	assert.Equal(t, 600000000.0, overview.Supply)
	assert.Equal(t, 1234.5, overview.Volume24hUSD)
}

func TestClient_UnsuccessfulResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"quota"}`))
	})

	_, err := client.MultiPrice(context.Background(), []string{solMint})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "success=false"))
}

func TestParseBirdeyeError(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "7")

	err := parseBirdeyeError(http.StatusTooManyRequests, header, nil)
	rl, ok := err.(*RateLimitError)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, rl.RetryAfter())
	assert.True(t, rl.IsRetryable())

	assert.IsType(t, &ServerError{}, parseBirdeyeError(http.StatusInternalServerError, nil, nil))
	assert.IsType(t, &ClientError{}, parseBirdeyeError(http.StatusForbidden, nil, []byte(`{"message":"no key"}`)))
}
