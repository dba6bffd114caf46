package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus is the lifecycle state of a manual purchase or cashout.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "Pending"
	TicketStatusProcessing TicketStatus = "Processing"
	TicketStatusCompleted  TicketStatus = "Completed"
	TicketStatusRejected   TicketStatus = "Rejected"
)

// PurchaseRequest is a user's request to buy an xStock manually.
type PurchaseRequest struct {
	WalletAddress string          `json:"walletAddress" validate:"required,solana_address"`
	Email         string          `json:"email" validate:"required,email"`
	StockSymbol   string          `json:"stockSymbol" validate:"required,max=16"`
	TokenAddress  string          `json:"tokenAddress" validate:"omitempty,solana_address"`
	AmountUSD     decimal.Decimal `json:"amountUsd"`
	PaymentMethod string          `json:"paymentMethod" validate:"omitempty,max=64"`
	TxSignature   string          `json:"txSignature" validate:"omitempty,max=128"`
	ReceiptURL    string          `json:"receiptUrl" validate:"omitempty,url"`
	Notes         string          `json:"notes" validate:"omitempty,max=1000"`
}

// CashoutRequest is a user's request to sell holdings for fiat.
type CashoutRequest struct {
	WalletAddress string          `json:"walletAddress" validate:"required,solana_address"`
	Email         string          `json:"email" validate:"required,email"`
	StockSymbol   string          `json:"stockSymbol" validate:"required,max=16"`
	TokenAmount   decimal.Decimal `json:"tokenAmount"`
	PayoutMethod  string          `json:"payoutMethod" validate:"required,max=64"`
	PayoutDetails string          `json:"payoutDetails" validate:"omitempty,max=1000"`
	TxSignature   string          `json:"txSignature" validate:"omitempty,max=128"`
}

// CashoutUpdate changes the state of an existing cashout record.
type CashoutUpdate struct {
	RecordID    string       `json:"recordId" validate:"required,startswith=rec"`
	Status      TicketStatus `json:"status" validate:"required,oneof=Pending Processing Completed Rejected"`
	TxSignature string       `json:"txSignature" validate:"omitempty,max=128"`
	Notes       string       `json:"notes" validate:"omitempty,max=1000"`
}

// NotificationRequest subscribes an e-mail to news about a symbol.
type NotificationRequest struct {
	Email         string `json:"email" validate:"required,email"`
	WalletAddress string `json:"walletAddress" validate:"omitempty,solana_address"`
	StockSymbol   string `json:"stockSymbol" validate:"omitempty,max=16"`
	Type          string `json:"type" validate:"omitempty,max=64"`
	Message       string `json:"message" validate:"omitempty,max=2000"`
}

// TicketRecord is a stored Airtable row as returned to clients.
type TicketRecord struct {
	ID          string                 `json:"id"`
	CreatedTime time.Time              `json:"createdTime"`
	Fields      map[string]interface{} `json:"fields"`
}

// TicketResponse is returned after a successful create or update.
type TicketResponse struct {
	Success   bool   `json:"success"`
	RecordID  string `json:"recordId"`
	Reference string `json:"reference,omitempty"`
}

// HistoryResponse lists records matching a wallet.
type HistoryResponse struct {
	Records []TicketRecord `json:"records"`
	Count   int            `json:"count"`
}

// ErrorResponse is the error body shape used by every endpoint.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TicketAlert is sent to the operations inbox when a ticket is submitted.
type TicketAlert struct {
	Kind      string
	RecordID  string
	Reference string
	Email     string
	Summary   map[string]string
}
