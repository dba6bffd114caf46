package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/internal/domain/services/priceproxy"
	"github.com/stockline/stockline_service/pkg/logger"
)

// PriceAggregator resolves many Birdeye prices at once.
type PriceAggregator interface {
	Prices(ctx context.Context, addresses []string) map[string]*entities.PriceResult
}

// JupiterPricer returns Jupiter's raw price payload.
type JupiterPricer interface {
	Prices(ctx context.Context, ids string) ([]byte, error)
}

// ProxyHandlers serves the upstream price proxies used by the web client
type ProxyHandlers struct {
	aggregator PriceAggregator
	jupiter    JupiterPricer
	logger     *logger.Logger
}

func NewProxyHandlers(aggregator PriceAggregator, jupiter JupiterPricer, logger *logger.Logger) *ProxyHandlers {
	return &ProxyHandlers{aggregator: aggregator, jupiter: jupiter, logger: logger}
}

type birdeyeRequest struct {
	Addresses json.RawMessage `json:"addresses"`
}

// BirdeyePrices returns address -> {success, data} | null for every valid address.
// POST /api/birdeye   {"addresses": [...] | "a,b,c"}
// GET  /api/birdeye?addresses=a,b,c
func (h *ProxyHandlers) BirdeyePrices(c *gin.Context) {
	addresses, err := birdeyeAddresses(c)
	if err != nil {
		respondBadRequest(c, "Invalid addresses", map[string]interface{}{"reason": err.Error()})
		return
	}
	if len(addresses) == 0 {
		respondError(c, http.StatusBadRequest, ErrCodeMissingField, "addresses is required", nil)
		return
	}

	result := h.aggregator.Prices(c.Request.Context(), addresses)

	requestLogger(c, h.logger).Debug("Birdeye proxy served",
		"requested", len(addresses),
		"returned", len(result),
	)
	c.JSON(http.StatusOK, result)
}

func birdeyeAddresses(c *gin.Context) ([]string, error) {
	if c.Request.Method == http.MethodPost && c.Request.Body != nil {
		var req birdeyeRequest
		err := json.NewDecoder(c.Request.Body).Decode(&req)
		switch {
		case errors.Is(err, io.EOF):
		case err != nil:
			return nil, err
		case len(req.Addresses) > 0:
			return priceproxy.DecodeAddresses(req.Addresses)
		}
	}

	if raw := c.Query("addresses"); raw != "" {
		return splitList(raw), nil
	}
	if raw := c.Query("address"); raw != "" {
		return splitList(raw), nil
	}
	return nil, nil
}

// JupiterPrices forwards the ids query to Jupiter and returns its body as-is.
// GET /api/jupiter?ids=mint1,mint2
func (h *ProxyHandlers) JupiterPrices(c *gin.Context) {
	ids := c.Query("ids")
	if ids == "" {
		respondError(c, http.StatusBadRequest, ErrCodeMissingField, "ids is required", nil)
		return
	}

	body, err := h.jupiter.Prices(c.Request.Context(), ids)
	if err != nil {
		requestLogger(c, h.logger).Error("Jupiter proxy failed", "error", err, "ids", ids)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to fetch prices from Jupiter",
			"details": err.Error(),
		})
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}
