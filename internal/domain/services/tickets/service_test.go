package tickets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/adapters/airtable"
	"github.com/stockline/stockline_service/internal/domain/entities"
	domainerrors "github.com/stockline/stockline_service/internal/domain/errors"
)

const wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

var testTables = Tables{
	Purchases:     "Purchases",
	Cashouts:      "Cashouts",
	Notifications: "Notifications",
	Holdings:      "Holdings",
}

type fakeStore struct {
	configured bool
	created    map[string][]map[string]interface{}
	updated    map[string]map[string]interface{}
	listed     []airtable.ListOptions
	records    []airtable.Record
	err        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		configured: true,
		created:    make(map[string][]map[string]interface{}),
		updated:    make(map[string]map[string]interface{}),
	}
}

func (f *fakeStore) Configured() bool { return f.configured }

func (f *fakeStore) CreateRecord(_ context.Context, table string, fields map[string]interface{}) (*airtable.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created[table] = append(f.created[table], fields)
	return &airtable.Record{ID: "recNEW", Fields: fields}, nil
}

func (f *fakeStore) UpdateRecord(_ context.Context, _ string, recordID string, fields map[string]interface{}) (*airtable.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updated[recordID] = fields
	return &airtable.Record{ID: recordID, Fields: fields}, nil
}

func (f *fakeStore) ListRecords(_ context.Context, _ string, opts airtable.ListOptions) ([]airtable.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.listed = append(f.listed, opts)
	return f.records, nil
}

type fakeNotifier struct {
	alerts []entities.TicketAlert
	err    error
}

func (f *fakeNotifier) SendTicketAlert(_ context.Context, alert entities.TicketAlert) error {
	f.alerts = append(f.alerts, alert)
	return f.err
}

func newTestService(store RecordStore, notifier Notifier) *Service {
	svc := NewService(store, notifier, testTables, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func validPurchase() entities.PurchaseRequest {
	return entities.PurchaseRequest{
		WalletAddress: wallet,
		Email:         "user@example.com",
		StockSymbol:   "AAPLx",
		AmountUSD:     decimal.RequireFromString("250.50"),
		PaymentMethod: "bank_transfer",
	}
}

func TestSubmitStockPurchase(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	resp, err := svc.SubmitStockPurchase(context.Background(), validPurchase())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "recNEW", resp.RecordID)
	assert.True(t, strings.HasPrefix(resp.Reference, "PUR-"))

	require.Len(t, store.created["Purchases"], 1)
	fields := store.created["Purchases"][0]
	assert.Equal(t, 250.5, fields[fieldAmountUSD])
	assert.Equal(t, "Pending", fields[fieldStatus])
	assert.Equal(t, "2025-06-01T12:00:00Z", fields[fieldSubmittedAt])
	assert.NotContains(t, fields, fieldNotes)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "250.50", notifier.alerts[0].Summary["Amount USD"])
}

func TestSubmitStockPurchase_Validation(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)

	tests := []struct {
		name   string
		mutate func(*entities.PurchaseRequest)
		field  string
	}{
		{"bad wallet", func(r *entities.PurchaseRequest) { r.WalletAddress = "nope" }, "walletAddress"},
		{"bad email", func(r *entities.PurchaseRequest) { r.Email = "x" }, "email"},
		{"missing symbol", func(r *entities.PurchaseRequest) { r.StockSymbol = "" }, "stockSymbol"},
		{"zero amount", func(r *entities.PurchaseRequest) { r.AmountUSD = decimal.Zero }, "amountUsd"},
		{"negative amount", func(r *entities.PurchaseRequest) { r.AmountUSD = decimal.NewFromInt(-5) }, "amountUsd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validPurchase()
			tt.mutate(&req)

			_, err := svc.SubmitStockPurchase(context.Background(), req)
			require.Error(t, err)
			assert.True(t, domainerrors.IsInvalidInput(err))
			assert.Equal(t, tt.field, domainerrors.GetErrorDetails(err)["field"])
		})
	}
}

func TestSubmitStockPurchase_NotifierFailureIgnored(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeNotifier{err: errors.New("smtp down")})

	resp, err := svc.SubmitStockPurchase(context.Background(), validPurchase())
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestSubmitCashout(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)

	resp, err := svc.SubmitCashout(context.Background(), entities.CashoutRequest{
		WalletAddress: wallet,
		Email:         "user@example.com",
		StockSymbol:   "TSLAx",
		TokenAmount:   decimal.RequireFromString("1.25"),
		PayoutMethod:  "paypal",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Reference, "CSH-"))
	assert.Equal(t, 1.25, store.created["Cashouts"][0][fieldTokenAmount])

	_, err = svc.SubmitCashout(context.Background(), entities.CashoutRequest{
		WalletAddress: wallet,
		Email:         "user@example.com",
		StockSymbol:   "TSLAx",
		PayoutMethod:  "paypal",
	})
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestUpdateCashout(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)

	resp, err := svc.UpdateCashout(context.Background(), entities.CashoutUpdate{
		RecordID: "recABC",
		Status:   entities.TicketStatusCompleted,
		Notes:    "paid",
	})
	require.NoError(t, err)
	assert.Equal(t, "recABC", resp.RecordID)
	assert.Equal(t, "Completed", store.updated["recABC"][fieldStatus])
	assert.Equal(t, "paid", store.updated["recABC"][fieldNotes])

	_, err = svc.UpdateCashout(context.Background(), entities.CashoutUpdate{RecordID: "recABC", Status: "Lost"})
	assert.True(t, domainerrors.IsInvalidInput(err))

	_, err = svc.UpdateCashout(context.Background(), entities.CashoutUpdate{RecordID: "abc", Status: entities.TicketStatusPending})
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestSubmitNotification(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)

	_, err := svc.SubmitNotification(context.Background(), entities.NotificationRequest{
		Email:       "user@example.com",
		StockSymbol: "NVDAx",
	})
	require.NoError(t, err)
	fields := store.created["Notifications"][0]
	assert.Equal(t, "NVDAx", fields[fieldStockSymbol])
	assert.NotContains(t, fields, fieldWalletAddress)
}

func TestHistory(t *testing.T) {
	store := newFakeStore()
	store.records = []airtable.Record{
		{ID: "rec1", Fields: map[string]interface{}{fieldStockSymbol: "AAPLx"}},
		{ID: "rec2", Fields: map[string]interface{}{fieldStockSymbol: "SPYx"}},
	}
	svc := newTestService(store, nil)

	resp, err := svc.CheckPurchaseHistory(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "rec1", resp.Records[0].ID)
	require.Len(t, store.listed, 1)
	assert.Equal(t, "{Wallet Address} = '"+wallet+"'", store.listed[0].Formula)
	assert.True(t, store.listed[0].SortDesc)

	_, err = svc.GetHoldingsHistory(context.Background(), "bad")
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestNotConfigured(t *testing.T) {
	store := newFakeStore()
	store.configured = false
	svc := newTestService(store, nil)

	_, err := svc.SubmitStockPurchase(context.Background(), validPurchase())
	assert.True(t, domainerrors.IsServiceUnavailable(err))
}

func TestAirtableErrorsMapped(t *testing.T) {
	status := http.StatusNotFound
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusNotFound {
			w.Write([]byte(`{"error":"NOT_FOUND"}`))
			return
		}
		w.Write([]byte(`{"error":{"type":"INVALID_REQUEST_UNKNOWN","message":"bad"}}`))
	}))
	defer server.Close()

	client := airtable.NewClient(airtable.Config{APIKey: "key", BaseID: "appX", BaseURL: server.URL}, zap.NewNop())
	svc := newTestService(client, nil)

	_, err := svc.UpdateCashout(context.Background(), entities.CashoutUpdate{RecordID: "recMISSING", Status: entities.TicketStatusRejected})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, domainerrors.HTTPStatus(err))

	status = http.StatusUnprocessableEntity
	_, err = svc.SubmitStockPurchase(context.Background(), validPurchase())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, domainerrors.HTTPStatus(err))
	assert.True(t, domainerrors.IsUpstream(err))
}

func TestNewReference(t *testing.T) {
	ref := newReference("PUR")
	assert.Len(t, ref, 14)
	assert.NotEqual(t, ref, newReference("PUR"))
}
