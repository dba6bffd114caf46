package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/pkg/logger"
)

// WalletPrefetcher builds and reads cached wallet snapshots.
type WalletPrefetcher interface {
	Prefetch(ctx context.Context, owner string) (*entities.WalletSnapshot, error)
	Snapshot(ctx context.Context, owner string) (*entities.WalletSnapshot, error)
}

// WalletHandlers handles wallet snapshot endpoints
type WalletHandlers struct {
	wallets WalletPrefetcher
	logger  *logger.Logger
}

func NewWalletHandlers(wallets WalletPrefetcher, logger *logger.Logger) *WalletHandlers {
	return &WalletHandlers{wallets: wallets, logger: logger}
}

// Prefetch warms the wallet snapshot and returns it
// POST /api/v1/wallets/:address/prefetch
func (h *WalletHandlers) Prefetch(c *gin.Context) {
	address, ok := validAddressParam(c)
	if !ok {
		return
	}

	snapshot, err := h.wallets.Prefetch(c.Request.Context(), address)
	if err != nil {
		requestLogger(c, h.logger).Warn("Wallet prefetch failed", "error", err, "wallet", address)
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetSnapshot returns a still-valid cached snapshot
// GET /api/v1/wallets/:address
func (h *WalletHandlers) GetSnapshot(c *gin.Context) {
	address, ok := validAddressParam(c)
	if !ok {
		return
	}

	snapshot, err := h.wallets.Snapshot(c.Request.Context(), address)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
