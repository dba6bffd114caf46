package jupiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_Prices(t *testing.T) {
	payload := `{"So11111111111111111111111111111111111111112":{"usdPrice":150.1,"priceChange24h":1.2}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, priceEndpoint, r.URL.Path)
		assert.Equal(t, "So11111111111111111111111111111111111111112", r.URL.Query().Get("ids"))
		assert.Equal(t, "jup-key", r.Header.Get("x-api-key"))
		w.Write([]byte(payload))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "jup-key"}, zap.NewNop())

	body, err := client.Prices(context.Background(), "So11111111111111111111111111111111111111112")
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestClient_Prices_NonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())

	_, err := client.Prices(context.Background(), "x")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Status)
	assert.Equal(t, "slow down", statusErr.Body)
}
