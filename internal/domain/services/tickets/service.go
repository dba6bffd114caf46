package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/adapters/airtable"
	"github.com/stockline/stockline_service/internal/domain/entities"
	domainerrors "github.com/stockline/stockline_service/internal/domain/errors"
	"github.com/stockline/stockline_service/internal/domain/validation"
	"github.com/stockline/stockline_service/pkg/metrics"
	"github.com/stockline/stockline_service/pkg/security"
)

// Airtable column names.
const (
	fieldWalletAddress = "Wallet Address"
	fieldEmail         = "Email"
	fieldStockSymbol   = "Stock Symbol"
	fieldTokenAddress  = "Token Address"
	fieldAmountUSD     = "Amount USD"
	fieldTokenAmount   = "Token Amount"
	fieldPaymentMethod = "Payment Method"
	fieldPayoutMethod  = "Payout Method"
	fieldPayoutDetails = "Payout Details"
	fieldTxSignature   = "Transaction Signature"
	fieldReceiptURL    = "Receipt URL"
	fieldNotes         = "Notes"
	fieldStatus        = "Status"
	fieldReference     = "Reference"
	fieldSubmittedAt   = "Submitted At"
	fieldUpdatedAt     = "Updated At"
	fieldType          = "Type"
	fieldMessage       = "Message"
)

// RecordStore is the Airtable surface the ticket flows use.
type RecordStore interface {
	Configured() bool
	CreateRecord(ctx context.Context, table string, fields map[string]interface{}) (*airtable.Record, error)
	UpdateRecord(ctx context.Context, table, recordID string, fields map[string]interface{}) (*airtable.Record, error)
	ListRecords(ctx context.Context, table string, opts airtable.ListOptions) ([]airtable.Record, error)
}

// Notifier delivers admin alerts. Failures never fail a submission.
type Notifier interface {
	SendTicketAlert(ctx context.Context, alert entities.TicketAlert) error
}

// Tables names the Airtable tables backing each flow.
type Tables struct {
	Purchases     string
	Cashouts      string
	Notifications string
	Holdings      string
}

// Service records manual purchase and cashout tickets in Airtable
type Service struct {
	records  RecordStore
	notifier Notifier
	tables   Tables
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(records RecordStore, notifier Notifier, tables Tables, logger *zap.Logger) *Service {
	return &Service{
		records:  records,
		notifier: notifier,
		tables:   tables,
		validate: validation.NewValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// SubmitStockPurchase creates a pending purchase ticket.
func (s *Service) SubmitStockPurchase(ctx context.Context, req entities.PurchaseRequest) (resp *entities.TicketResponse, err error) {
	defer s.observe("purchase", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}
	if !req.AmountUSD.IsPositive() {
		return nil, domainerrors.ValidationError("amountUsd", "amount must be greater than zero")
	}

	reference := newReference("PUR")
	fields := map[string]interface{}{
		fieldWalletAddress: req.WalletAddress,
		fieldEmail:         req.Email,
		fieldStockSymbol:   req.StockSymbol,
		fieldAmountUSD:     req.AmountUSD.InexactFloat64(),
		fieldStatus:        string(entities.TicketStatusPending),
		fieldReference:     reference,
		fieldSubmittedAt:   s.now().UTC().Format(time.RFC3339),
	}
	setOptional(fields, fieldTokenAddress, req.TokenAddress)
	setOptional(fields, fieldPaymentMethod, req.PaymentMethod)
	setOptional(fields, fieldTxSignature, req.TxSignature)
	setOptional(fields, fieldReceiptURL, req.ReceiptURL)
	setOptional(fields, fieldNotes, req.Notes)

	record, err := s.create(ctx, s.tables.Purchases, fields)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock purchase submitted",
		zap.String("record_id", record.ID),
		zap.String("reference", reference),
		zap.String("symbol", req.StockSymbol),
		zap.String("wallet", security.MaskAddress(req.WalletAddress)),
		zap.String("amount_usd", req.AmountUSD.String()))

	s.alert(ctx, entities.TicketAlert{
		Kind:      "purchase",
		RecordID:  record.ID,
		Reference: reference,
		Email:     req.Email,
		Summary: map[string]string{
			"Wallet":     req.WalletAddress,
			"Stock":      req.StockSymbol,
			"Amount USD": req.AmountUSD.StringFixed(2),
		},
	})

	return &entities.TicketResponse{Success: true, RecordID: record.ID, Reference: reference}, nil
}

// SubmitCashout creates a pending cashout ticket.
func (s *Service) SubmitCashout(ctx context.Context, req entities.CashoutRequest) (resp *entities.TicketResponse, err error) {
	defer s.observe("cashout", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}
	if !req.TokenAmount.IsPositive() {
		return nil, domainerrors.ValidationError("tokenAmount", "token amount must be greater than zero")
	}

	reference := newReference("CSH")
	fields := map[string]interface{}{
		fieldWalletAddress: req.WalletAddress,
		fieldEmail:         req.Email,
		fieldStockSymbol:   req.StockSymbol,
		fieldTokenAmount:   req.TokenAmount.InexactFloat64(),
		fieldPayoutMethod:  req.PayoutMethod,
		fieldStatus:        string(entities.TicketStatusPending),
		fieldReference:     reference,
		fieldSubmittedAt:   s.now().UTC().Format(time.RFC3339),
	}
	setOptional(fields, fieldPayoutDetails, req.PayoutDetails)
	setOptional(fields, fieldTxSignature, req.TxSignature)

	record, err := s.create(ctx, s.tables.Cashouts, fields)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Cashout submitted",
		zap.String("record_id", record.ID),
		zap.String("reference", reference),
		zap.String("symbol", req.StockSymbol),
		zap.String("wallet", security.MaskAddress(req.WalletAddress)),
		zap.String("token_amount", req.TokenAmount.String()))

	s.alert(ctx, entities.TicketAlert{
		Kind:      "cashout",
		RecordID:  record.ID,
		Reference: reference,
		Email:     req.Email,
		Summary: map[string]string{
			"Wallet":        req.WalletAddress,
			"Stock":         req.StockSymbol,
			"Token amount":  req.TokenAmount.String(),
			"Payout method": req.PayoutMethod,
		},
	})

	return &entities.TicketResponse{Success: true, RecordID: record.ID, Reference: reference}, nil
}

// UpdateCashout moves an existing cashout to a new status.
func (s *Service) UpdateCashout(ctx context.Context, req entities.CashoutUpdate) (resp *entities.TicketResponse, err error) {
	defer s.observe("cashout_update", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		fieldStatus:    string(req.Status),
		fieldUpdatedAt: s.now().UTC().Format(time.RFC3339),
	}
	setOptional(fields, fieldTxSignature, req.TxSignature)
	setOptional(fields, fieldNotes, req.Notes)

	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}
	record, err := s.records.UpdateRecord(ctx, s.tables.Cashouts, req.RecordID, fields)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("Cashout updated",
		zap.String("record_id", record.ID),
		zap.String("status", string(req.Status)))

	return &entities.TicketResponse{Success: true, RecordID: record.ID}, nil
}

// SubmitNotification stores a notification signup.
func (s *Service) SubmitNotification(ctx context.Context, req entities.NotificationRequest) (resp *entities.TicketResponse, err error) {
	defer s.observe("notification", &err)

	if err := s.check(req); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		fieldEmail:       req.Email,
		fieldSubmittedAt: s.now().UTC().Format(time.RFC3339),
	}
	setOptional(fields, fieldWalletAddress, req.WalletAddress)
	setOptional(fields, fieldStockSymbol, req.StockSymbol)
	setOptional(fields, fieldType, req.Type)
	setOptional(fields, fieldMessage, req.Message)

	record, err := s.create(ctx, s.tables.Notifications, fields)
	if err != nil {
		return nil, err
	}
	return &entities.TicketResponse{Success: true, RecordID: record.ID}, nil
}

// CheckPurchaseHistory lists purchase tickets submitted by wallet.
func (s *Service) CheckPurchaseHistory(ctx context.Context, wallet string) (resp *entities.HistoryResponse, err error) {
	defer s.observe("purchase_history", &err)
	return s.history(ctx, s.tables.Purchases, wallet)
}

// GetHoldingsHistory lists holdings rows recorded for wallet.
func (s *Service) GetHoldingsHistory(ctx context.Context, wallet string) (resp *entities.HistoryResponse, err error) {
	defer s.observe("holdings_history", &err)
	return s.history(ctx, s.tables.Holdings, wallet)
}

func (s *Service) history(ctx context.Context, table, wallet string) (*entities.HistoryResponse, error) {
	wallet = strings.TrimSpace(wallet)
	if !validation.IsPublicKey(wallet) {
		return nil, domainerrors.ValidationError("walletAddress", "a valid wallet address is required")
	}
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}

	records, err := s.records.ListRecords(ctx, table, airtable.ListOptions{
		Formula:   fmt.Sprintf("{%s} = %s", fieldWalletAddress, airtable.EscapeFormulaString(wallet)),
		SortField: fieldSubmittedAt,
		SortDesc:  true,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	out := make([]entities.TicketRecord, 0, len(records))
	for _, record := range records {
		out = append(out, entities.TicketRecord{
			ID:          record.ID,
			CreatedTime: record.CreatedTime,
			Fields:      record.Fields,
		})
	}
	return &entities.HistoryResponse{Records: out, Count: len(out)}, nil
}

func (s *Service) create(ctx context.Context, table string, fields map[string]interface{}) (*airtable.Record, error) {
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}
	record, err := s.records.CreateRecord(ctx, table, fields)
	if err != nil {
		s.logger.Warn("Airtable create failed",
			zap.String("table", table),
			zap.Any("fields", security.MaskFields(fields)),
			zap.Error(err))
		return nil, mapStoreError(err)
	}
	return record, nil
}

func (s *Service) ensureConfigured() error {
	if s.records == nil || !s.records.Configured() {
		return domainerrors.ServiceUnavailableError("airtable", nil)
	}
	return nil
}

// check runs struct validation and reports every failing field.
func (s *Service) check(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domainerrors.ValidationError("body", err.Error())
	}

	first := fieldErrs[0]
	failures := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		failures[fe.Field()] = fe.Tag()
	}
	return domainerrors.ValidationError(first.Field(), fmt.Sprintf("%s failed on %s", first.Field(), first.Tag())).
		WithDetails(map[string]interface{}{
			"field":  first.Field(),
			"fields": failures,
		})
}

func (s *Service) alert(ctx context.Context, alert entities.TicketAlert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendTicketAlert(context.WithoutCancel(ctx), alert); err != nil {
		s.logger.Warn("Failed to send ticket alert",
			zap.String("kind", alert.Kind),
			zap.String("record_id", alert.RecordID),
			zap.Error(err))
	}
}

func (s *Service) observe(kind string, err *error) {
	metrics.TicketsTotal.WithLabelValues(kind, metrics.Outcome(*err)).Inc()
}

func mapStoreError(err error) error {
	var apiErr *airtable.APIError
	if errors.As(err, &apiErr) {
		return domainerrors.UpstreamError("airtable", apiErr.Status, err)
	}
	return domainerrors.UpstreamError("airtable", 0, err)
}

func setOptional(fields map[string]interface{}, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fields[key] = value
	}
}

func newReference(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + id[:10]
}
