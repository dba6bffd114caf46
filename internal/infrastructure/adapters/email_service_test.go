package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
)

func testAlert() entities.TicketAlert {
	return entities.TicketAlert{
		Kind:      "purchase",
		RecordID:  "rec123",
		Reference: "PUR-ABC",
		Email:     "user@example.com",
		Summary:   map[string]string{"Stock": "AAPLx", "Amount USD": "<b>250</b>"},
	}
}

func TestSendTicketAlert_Disabled(t *testing.T) {
	svc := NewEmailService(zap.NewNop(), EmailServiceConfig{AdminEmail: "ops@example.com"})
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.SendTicketAlert(context.Background(), testAlert()))
}

func TestSendTicketAlert_PostsToSendGrid(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendGridMailPath, r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	svc := NewEmailService(zap.NewNop(), EmailServiceConfig{
		APIKey:     "sg-key",
		FromEmail:  "no-reply@stockline.app",
		FromName:   "Stockline",
		AdminEmail: "ops@example.com",
		Host:       server.URL,
	})

	require.NoError(t, svc.SendTicketAlert(context.Background(), testAlert()))
	assert.Equal(t, "New purchase request PUR-ABC", payload["subject"])
}

func TestSendTicketAlert_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer server.Close()

	svc := NewEmailService(zap.NewNop(), EmailServiceConfig{APIKey: "x", AdminEmail: "ops@example.com", Host: server.URL})
	assert.Error(t, svc.SendTicketAlert(context.Background(), testAlert()))
}

func TestBuildAlertHTML_EscapesValues(t *testing.T) {
	body := buildAlertHTML(testAlert())
	assert.Contains(t, body, "&lt;b&gt;250&lt;/b&gt;")
	assert.NotContains(t, body, "<b>250</b>")
}

func TestBuildAlertText_SortedSummary(t *testing.T) {
	text := buildAlertText(testAlert())
	assert.Contains(t, text, "Amount USD: <b>250</b>\nStock: AAPLx\n")
}
