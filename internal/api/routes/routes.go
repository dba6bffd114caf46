package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stockline/stockline_service/internal/api/middleware"
	"github.com/stockline/stockline_service/internal/infrastructure/cache"
	"github.com/stockline/stockline_service/internal/infrastructure/di"
	"github.com/stockline/stockline_service/pkg/idempotency"
	"github.com/stockline/stockline_service/pkg/tracing"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	router := gin.New()
	server := container.Config.Server

	// Global middleware - order matters
	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestSizeLimit(server.MaxBodyBytes))
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(server.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())

	healthHandler := container.HealthHandler()
	router.GET("/health", healthHandler.Health)
	router.GET("/live", healthHandler.Liveness)
	router.GET("/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.RateLimit(container.RateLimiter))
	if container.SharedRateLimiter != nil {
		api.Use(middleware.SharedRateLimit(container.SharedRateLimiter, container.Logger))
	}

	proxyHandlers := container.ProxyHandlers()
	api.POST("/birdeye", proxyHandlers.BirdeyePrices)
	api.GET("/birdeye", proxyHandlers.BirdeyePrices)
	api.GET("/jupiter", proxyHandlers.JupiterPrices)

	ticketHandlers := container.TicketHandlers()
	tickets := api.Group("", idempotency.Middleware(container.Store, cache.IsMiss, idempotency.DefaultTTL, container.ZapLog.Named("idempotency")))
	{
		tickets.POST("/submit-stock-purchase", ticketHandlers.SubmitStockPurchase)
		tickets.POST("/submit-cashout", ticketHandlers.SubmitCashout)
		tickets.PATCH("/update-cashout", ticketHandlers.UpdateCashout)
		tickets.POST("/update-cashout", ticketHandlers.UpdateCashout)
		tickets.POST("/submit-notification", ticketHandlers.SubmitNotification)
	}
	api.GET("/check-purchase-history", ticketHandlers.CheckPurchaseHistory)
	api.GET("/get-holdings-history", ticketHandlers.GetHoldingsHistory)

	v1 := api.Group("/v1")
	{
		tokenHandlers := container.TokenHandlers()
		tokens := v1.Group("/tokens")
		{
			tokens.GET("/stream", tokenHandlers.StreamCatalog)
			tokens.POST("/batch", tokenHandlers.GetTokens)
			tokens.DELETE("/cache", tokenHandlers.ClearCache)
			tokens.GET("/:address", tokenHandlers.GetToken)
		}
		v1.GET("/assets/:source", tokenHandlers.GetAssets)

		walletHandlers := container.WalletHandlers()
		wallets := v1.Group("/wallets")
		{
			wallets.GET("/:address", walletHandlers.GetSnapshot)
			wallets.POST("/:address/prefetch", walletHandlers.Prefetch)
		}
	}

	return router
}
