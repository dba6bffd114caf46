package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stockline/stockline_service/internal/domain/entities"
	domainerrors "github.com/stockline/stockline_service/internal/domain/errors"
	"github.com/stockline/stockline_service/pkg/logger"
)

// TicketService records manual purchase, cashout and notification tickets.
type TicketService interface {
	SubmitStockPurchase(ctx context.Context, req entities.PurchaseRequest) (*entities.TicketResponse, error)
	SubmitCashout(ctx context.Context, req entities.CashoutRequest) (*entities.TicketResponse, error)
	UpdateCashout(ctx context.Context, req entities.CashoutUpdate) (*entities.TicketResponse, error)
	SubmitNotification(ctx context.Context, req entities.NotificationRequest) (*entities.TicketResponse, error)
	CheckPurchaseHistory(ctx context.Context, wallet string) (*entities.HistoryResponse, error)
	GetHoldingsHistory(ctx context.Context, wallet string) (*entities.HistoryResponse, error)
}

// TicketHandlers exposes the Airtable backed ticket endpoints
type TicketHandlers struct {
	tickets TicketService
	logger  *logger.Logger
}

func NewTicketHandlers(tickets TicketService, logger *logger.Logger) *TicketHandlers {
	return &TicketHandlers{tickets: tickets, logger: logger}
}

// SubmitStockPurchase POST /api/submit-stock-purchase
func (h *TicketHandlers) SubmitStockPurchase(c *gin.Context) {
	var req entities.PurchaseRequest
	if !h.bind(c, &req) {
		return
	}
	h.respond(c, http.StatusCreated, "submit-stock-purchase")(h.tickets.SubmitStockPurchase(c.Request.Context(), req))
}

// SubmitCashout POST /api/submit-cashout
func (h *TicketHandlers) SubmitCashout(c *gin.Context) {
	var req entities.CashoutRequest
	if !h.bind(c, &req) {
		return
	}
	h.respond(c, http.StatusCreated, "submit-cashout")(h.tickets.SubmitCashout(c.Request.Context(), req))
}

// UpdateCashout PATCH|POST /api/update-cashout
func (h *TicketHandlers) UpdateCashout(c *gin.Context) {
	var req entities.CashoutUpdate
	if !h.bind(c, &req) {
		return
	}
	h.respond(c, http.StatusOK, "update-cashout")(h.tickets.UpdateCashout(c.Request.Context(), req))
}

// SubmitNotification POST /api/submit-notification
func (h *TicketHandlers) SubmitNotification(c *gin.Context) {
	var req entities.NotificationRequest
	if !h.bind(c, &req) {
		return
	}
	h.respond(c, http.StatusCreated, "submit-notification")(h.tickets.SubmitNotification(c.Request.Context(), req))
}

// CheckPurchaseHistory GET /api/check-purchase-history?walletAddress=...
func (h *TicketHandlers) CheckPurchaseHistory(c *gin.Context) {
	h.respond(c, http.StatusOK, "check-purchase-history")(h.tickets.CheckPurchaseHistory(c.Request.Context(), walletQuery(c)))
}

// GetHoldingsHistory GET /api/get-holdings-history?walletAddress=...
func (h *TicketHandlers) GetHoldingsHistory(c *gin.Context) {
	h.respond(c, http.StatusOK, "get-holdings-history")(h.tickets.GetHoldingsHistory(c.Request.Context(), walletQuery(c)))
}

func (h *TicketHandlers) bind(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		respondBadRequest(c, "Invalid request body", map[string]interface{}{"reason": err.Error()})
		return false
	}
	return true
}

// respond writes either the service result or its mapped error.
func (h *TicketHandlers) respond(c *gin.Context, status int, op string) func(interface{}, error) {
	return func(result interface{}, err error) {
		if err != nil {
			if domainerrors.HTTPStatus(err) >= http.StatusInternalServerError {
				requestLogger(c, h.logger).Error("Ticket operation failed", "operation", op, "error", err)
			}
			respondDomainError(c, err)
			return
		}
		c.JSON(status, result)
	}
}

func walletQuery(c *gin.Context) string {
	if wallet := c.Query("walletAddress"); wallet != "" {
		return wallet
	}
	return c.Query("wallet")
}
