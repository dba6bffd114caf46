package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/adapters/airtable"
	"github.com/stockline/stockline_service/internal/adapters/birdeye"
	"github.com/stockline/stockline_service/internal/adapters/jupiter"
	solanaadapter "github.com/stockline/stockline_service/internal/adapters/solana"
	"github.com/stockline/stockline_service/internal/api/handlers"
	"github.com/stockline/stockline_service/internal/api/middleware"
	"github.com/stockline/stockline_service/internal/domain/services/market"
	"github.com/stockline/stockline_service/internal/domain/services/pricecache"
	"github.com/stockline/stockline_service/internal/domain/services/priceproxy"
	"github.com/stockline/stockline_service/internal/domain/services/tickets"
	"github.com/stockline/stockline_service/internal/domain/services/wallet"
	"github.com/stockline/stockline_service/internal/infrastructure/adapters"
	"github.com/stockline/stockline_service/internal/infrastructure/cache"
	"github.com/stockline/stockline_service/internal/infrastructure/config"
	"github.com/stockline/stockline_service/internal/workers/cache_warmer"
	"github.com/stockline/stockline_service/pkg/logger"
	"github.com/stockline/stockline_service/pkg/ratelimit"
	"github.com/stockline/stockline_service/pkg/retry"
)

// Version is reported by /health; overridden at build time.
var Version = "dev"

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	ZapLog *zap.Logger

	Store       cache.Store
	RedisClient cache.RedisClient // nil when Redis is disabled

	BirdeyeClient  *birdeye.Client
	JupiterClient  *jupiter.Client
	SolanaClient   *solanaadapter.Client
	AirtableClient *airtable.Client
	EmailService   *adapters.EmailService

	PriceCache    *pricecache.Service
	PriceProxy    *priceproxy.Service
	MarketService *market.MarketDataService
	WalletService *wallet.Service
	TicketService *tickets.Service

	RateLimiter       *middleware.RateLimiter
	SharedRateLimiter *ratelimit.SlidingWindowLimiter // nil when Redis is disabled

	CacheWarmer *cache_warmer.Worker
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()
	c := &Container{
		Config: cfg,
		Logger: log,
		ZapLog: zapLog,
	}

	if err := c.initializeStore(); err != nil {
		return nil, err
	}
	c.initializeAdapters()
	c.initializeDomainServices()
	c.initializeRateLimiters()

	if cfg.Workers.CacheWarmerEnabled {
		c.CacheWarmer = cache_warmer.NewWorker(c.PriceCache, c.RateLimiter, market.AllAddresses(), cache_warmer.Config{
			Schedule: cfg.Workers.CacheWarmerSchedule,
		}, zapLog.Named("cache_warmer"))
	}

	return c, nil
}

func (c *Container) initializeStore() error {
	if !c.Config.Redis.Enabled {
		c.ZapLog.Warn("Redis disabled; cache tiers live in process memory only")
		c.Store = cache.NewMemoryStore()
		return nil
	}

	redisClient, err := cache.NewRedisClient(&c.Config.Redis, c.ZapLog)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	c.RedisClient = redisClient
	c.Store = redisClient
	return nil
}

func (c *Container) initializeAdapters() {
	cfg := c.Config

	c.BirdeyeClient = birdeye.NewClient(birdeye.Config{
		APIKey:  cfg.Birdeye.APIKey,
		BaseURL: cfg.Birdeye.BaseURL,
		Timeout: seconds(cfg.Birdeye.Timeout),
	}, c.ZapLog.Named("birdeye"))

	c.JupiterClient = jupiter.NewClient(jupiter.Config{
		APIKey:  cfg.Jupiter.APIKey,
		BaseURL: cfg.Jupiter.BaseURL,
		Timeout: seconds(cfg.Jupiter.Timeout),
	}, c.ZapLog.Named("jupiter"))

	c.SolanaClient = solanaadapter.NewClient(solanaadapter.Config{
		RPCURL:  cfg.Solana.RPCURL,
		Timeout: seconds(cfg.Solana.Timeout),
	}, c.ZapLog.Named("solana"))

	c.AirtableClient = airtable.NewClient(airtable.Config{
		APIKey:  cfg.Airtable.APIKey,
		BaseID:  cfg.Airtable.BaseID,
		BaseURL: cfg.Airtable.BaseURL,
		Timeout: seconds(cfg.Airtable.Timeout),
	}, c.ZapLog.Named("airtable"))

	c.EmailService = adapters.NewEmailService(c.ZapLog.Named("email"), adapters.EmailServiceConfig{
		APIKey:     cfg.Email.SendGridAPIKey,
		FromEmail:  cfg.Email.FromEmail,
		FromName:   cfg.Email.FromName,
		AdminEmail: cfg.Email.AdminEmail,
	})
	if !c.EmailService.Enabled() {
		c.ZapLog.Warn("SendGrid not configured; ticket alerts disabled")
	}
}

func (c *Container) initializeDomainServices() {
	cfg := c.Config.Cache

	priceConfig := pricecache.DefaultConfig()
	priceConfig.Failure = pricecache.FailurePolicy{
		RetryAfter:  time.Duration(cfg.FailedRetrySeconds) * time.Second,
		MaxAttempts: cfg.FailedMaxAttempts,
	}
	priceConfig.SupplyTTL = time.Duration(cfg.SupplyTTLHours) * time.Hour
	priceConfig.AccessFlushEvery = cfg.AccessFlushEvery
	priceConfig.BatchSize = cfg.BatchSize
	priceConfig.BatchDelay = cfg.BatchDelay()
	priceConfig.BatchRetry = retry.LinearPolicy(cfg.BatchMaxRetries, time.Duration(cfg.BatchRetryBaseMillis)*time.Millisecond)
	c.PriceCache = pricecache.NewService(priceConfig, c.BirdeyeClient, c.SolanaClient, c.Store, c.ZapLog.Named("pricecache"))

	c.PriceProxy = priceproxy.NewService(priceproxy.Config{
		TTL:        cfg.ProxyTTL(),
		ChunkSize:  cfg.ProxyChunkSize,
		Workers:    cfg.ProxyWorkers,
		MaxEntries: cfg.ProxyMaxEntries,
	}, c.BirdeyeClient, c.ZapLog.Named("priceproxy"))

	c.MarketService = market.NewMarketDataService(c.PriceCache, c.ZapLog.Named("market"))

	walletConfig := wallet.DefaultConfig()
	walletConfig.PrefetchSkip = time.Duration(cfg.WalletPrefetchMinutes) * time.Minute
	walletConfig.ValidFor = time.Duration(cfg.WalletValidMinutes) * time.Minute
	c.WalletService = wallet.NewService(walletConfig, c.SolanaClient, c.PriceCache, c.Store, c.ZapLog.Named("wallet"))

	at := c.Config.Airtable
	c.TicketService = tickets.NewService(c.AirtableClient, c.EmailService, tickets.Tables{
		Purchases:     at.PurchasesTable,
		Cashouts:      at.CashoutsTable,
		Notifications: at.NotificationsTable,
		Holdings:      at.HoldingsTable,
	}, c.ZapLog.Named("tickets"))
}

func (c *Container) initializeRateLimiters() {
	server := c.Config.Server
	c.RateLimiter = middleware.NewRateLimiter(server.RateLimitPerMin)

	if c.RedisClient == nil {
		return
	}
	proxyLimit := ratelimit.EndpointLimit{Limit: int64(server.ProxyRateLimitPerMin), Window: time.Minute}
	c.SharedRateLimiter = ratelimit.NewSlidingWindowLimiter(c.RedisClient.Client(), ratelimit.Config{
		IPLimit:  int64(server.SharedRateLimitPerMin),
		IPWindow: time.Minute,
		EndpointLimits: map[string]ratelimit.EndpointLimit{
			"/api/birdeye": proxyLimit,
			"/api/jupiter": proxyLimit,
		},
	}, c.ZapLog.Named("ratelimit"))
}

// Handlers

func (c *Container) ProxyHandlers() *handlers.ProxyHandlers {
	return handlers.NewProxyHandlers(c.PriceProxy, c.JupiterClient, c.Logger)
}

func (c *Container) TokenHandlers() *handlers.TokenHandlers {
	return handlers.NewTokenHandlers(c.MarketService, c.PriceCache, c.PriceProxy, c.Logger)
}

func (c *Container) WalletHandlers() *handlers.WalletHandlers {
	return handlers.NewWalletHandlers(c.WalletService, c.Logger)
}

func (c *Container) TicketHandlers() *handlers.TicketHandlers {
	return handlers.NewTicketHandlers(c.TicketService, c.Logger)
}

func (c *Container) HealthHandler() *handlers.HealthHandler {
	checks := map[string]handlers.CheckFunc{}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Ping
	}
	return handlers.NewHealthHandler(checks, c.PriceCache, c.ZapLog.Named("health"), Version)
}

// Start restores persisted cache tiers and starts background workers.
func (c *Container) Start(ctx context.Context) error {
	if err := c.PriceCache.Load(ctx); err != nil {
		c.ZapLog.Warn("Failed to restore price cache; starting empty", zap.Error(err))
	}
	if c.CacheWarmer != nil {
		if err := c.CacheWarmer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cache warmer: %w", err)
		}
	}
	return nil
}

// Shutdown stops workers, persists the cache and closes Redis.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.CacheWarmer != nil {
		if err := c.CacheWarmer.Shutdown(ctx); err != nil {
			c.ZapLog.Warn("Cache warmer did not stop in time", zap.Error(err))
		}
	}
	if err := c.PriceCache.Flush(ctx); err != nil {
		c.ZapLog.Warn("Failed to persist price cache", zap.Error(err))
	}
	if c.RedisClient != nil {
		return c.RedisClient.Close()
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
