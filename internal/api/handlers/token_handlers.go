package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/internal/domain/services/market"
	"github.com/stockline/stockline_service/internal/domain/services/pricecache"
	"github.com/stockline/stockline_service/internal/domain/validation"
	"github.com/stockline/stockline_service/pkg/logger"
)

const maxBatchAddresses = 200

// QuoteService serves single and batched token figures.
type QuoteService interface {
	GetQuote(ctx context.Context, address string) (*entities.Asset, error)
	GetQuotes(ctx context.Context, addresses []string) map[string]entities.TokenData
	CachedCatalog(source entities.DataSource) []entities.Asset
}

// ProgressiveLoader streams catalog figures as batches complete.
type ProgressiveLoader interface {
	FetchMultipleTokensDataProgressive(ctx context.Context, addresses []string, onProgress pricecache.ProgressFunc, source entities.DataSource) (map[string]entities.TokenData, error)
	ClearCache(ctx context.Context) error
	Stats() entities.CacheStats
}

// Purger drops every short-lived proxy entry.
type Purger interface {
	Purge()
}

// TokenHandlers serves token prices, the asset catalog and cache management
type TokenHandlers struct {
	quotes QuoteService
	loader ProgressiveLoader
	proxy  Purger
	logger *logger.Logger
}

func NewTokenHandlers(quotes QuoteService, loader ProgressiveLoader, proxy Purger, logger *logger.Logger) *TokenHandlers {
	return &TokenHandlers{quotes: quotes, loader: loader, proxy: proxy, logger: logger}
}

// GetToken returns live figures for one token
// GET /api/v1/tokens/:address
func (h *TokenHandlers) GetToken(c *gin.Context) {
	asset, err := h.quotes.GetQuote(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

type batchRequest struct {
	Addresses []string `json:"addresses" binding:"required,min=1"`
}

// GetTokens returns figures for many tokens; invalid addresses are omitted
// POST /api/v1/tokens/batch
func (h *TokenHandlers) GetTokens(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}
	if len(req.Addresses) > maxBatchAddresses {
		respondBadRequest(c, "Too many addresses", map[string]interface{}{"max": maxBatchAddresses})
		return
	}

	data := h.quotes.GetQuotes(c.Request.Context(), req.Addresses)
	c.JSON(http.StatusOK, gin.H{"tokens": data, "count": len(data)})
}

// StreamCatalog pushes the catalog as Server-Sent Events: one "progress"
// event per completed batch, then "done".
// GET /api/v1/tokens/stream?source=stocks|crypto
func (h *TokenHandlers) StreamCatalog(c *gin.Context) {
	source, ok := parseSource(c.DefaultQuery("source", string(entities.DataSourceStocks)))
	if !ok {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidSource, "source must be stocks or crypto", nil)
		return
	}

	log := requestLogger(c, h.logger)
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	batches := 0
	_, err := h.loader.FetchMultipleTokensDataProgressive(c.Request.Context(), market.Addresses(source),
		func(assets []entities.Asset) {
			batches++
			c.SSEvent("progress", gin.H{"batch": batches, "assets": assets})
			c.Writer.Flush()
		}, source)
	if err != nil {
		log.Info("Catalog stream stopped", "error", err, "batches", batches)
		return
	}

	c.SSEvent("done", gin.H{"batches": batches})
	c.Writer.Flush()
}

// GetAssets returns the catalog with whatever figures are cached
// GET /api/v1/assets/:source
func (h *TokenHandlers) GetAssets(c *gin.Context) {
	source, ok := parseSource(c.Param("source"))
	if !ok {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidSource, "source must be stocks or crypto", nil)
		return
	}
	assets := h.quotes.CachedCatalog(source)
	c.JSON(http.StatusOK, gin.H{"source": source, "assets": assets, "count": len(assets)})
}

// ClearCache empties every price tier and the proxy cache
// DELETE /api/v1/tokens/cache
func (h *TokenHandlers) ClearCache(c *gin.Context) {
	if err := h.loader.ClearCache(c.Request.Context()); err != nil {
		requestLogger(c, h.logger).Error("Failed to clear price cache", "error", err)
		respondInternalError(c, "Failed to clear cache")
		return
	}
	h.proxy.Purge()

	requestLogger(c, h.logger).Info("Price cache cleared")
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": h.loader.Stats()})
}

func parseSource(raw string) (entities.DataSource, bool) {
	source := entities.DataSource(raw)
	return source, source.IsValid()
}

// validAddressParam rejects malformed path addresses before they reach a service.
func validAddressParam(c *gin.Context) (string, bool) {
	address := c.Param("address")
	if !validation.IsPublicKey(address) {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidAddress, "Invalid wallet address", map[string]interface{}{"address": address})
		return "", false
	}
	return address, true
}
