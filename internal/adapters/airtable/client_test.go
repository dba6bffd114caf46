package airtable

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{APIKey: "pat-test", BaseID: "appBase", BaseURL: server.URL}, zap.NewNop())
}

func TestClient_CreateRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/appBase/Purchases", r.URL.Path)
		assert.Equal(t, "Bearer pat-test", r.Header.Get("Authorization"))

		var body struct {
			Fields   map[string]interface{} `json:"fields"`
			Typecast bool                   `json:"typecast"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Typecast)
		assert.Equal(t, "AAPLx", body.Fields["Stock Symbol"])

		w.Write([]byte(`{"id":"rec123","createdTime":"2025-01-02T03:04:05.000Z","fields":{"Stock Symbol":"AAPLx"}}`))
	})

	record, err := client.CreateRecord(context.Background(), "Purchases", map[string]interface{}{"Stock Symbol": "AAPLx"})
	require.NoError(t, err)
	assert.Equal(t, "rec123", record.ID)
	assert.Equal(t, 2025, record.CreatedTime.Year())
}

func TestClient_UpdateRecord_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/appBase/Cashouts/recMissing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"NOT_FOUND"}`))
	})

	_, err := client.UpdateRecord(context.Background(), "Cashouts", "recMissing", map[string]interface{}{"Status": "Completed"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "NOT_FOUND", apiErr.Type)
}

func TestClient_ListRecords_SingleRequest(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "{Wallet Address} = 'abc'", r.URL.Query().Get("filterByFormula"))
		assert.Equal(t, "Created", r.URL.Query().Get("sort[0][field]"))
		assert.Equal(t, "100", r.URL.Query().Get("pageSize"))
		assert.Empty(t, r.URL.Query().Get("offset"))
		w.Write([]byte(`{"records":[{"id":"rec1","fields":{}}],"offset":"itr2"}`))
	})

	records, err := client.ListRecords(context.Background(), "Purchases", ListOptions{
		Formula:   "{Wallet Address} = 'abc'",
		SortField: "Created",
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec1", records[0].ID)
	assert.Equal(t, 1, calls)
}

func TestParseAirtableError_Detailed(t *testing.T) {
	err := parseAirtableError(http.StatusUnprocessableEntity, []byte(`{"error":{"type":"INVALID_VALUE_FOR_COLUMN","message":"Field \"Amount\" cannot accept the provided value"}}`))
	assert.Equal(t, "INVALID_VALUE_FOR_COLUMN", err.Type)
	assert.Contains(t, err.Message, "Amount")
	assert.False(t, err.IsRetryable())
}

func TestEscapeFormulaString(t *testing.T) {
	assert.Equal(t, `'it\'s'`, EscapeFormulaString("it's"))
}
