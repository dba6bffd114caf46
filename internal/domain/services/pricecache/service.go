// Package pricecache keeps token prices, supplies and access statistics in
// memory, persists them to a Store and refreshes them from Birdeye and
// Solana RPC on demand.
package pricecache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/internal/infrastructure/cache"
	"github.com/stockline/stockline_service/pkg/metrics"
	"github.com/stockline/stockline_service/pkg/retry"
)

// PriceProvider is the upstream price and overview source.
type PriceProvider interface {
	Price(ctx context.Context, address string) (*entities.BirdeyePrice, error)
	TokenOverview(ctx context.Context, address string) (*entities.TokenOverview, error)
}

// SupplyProvider reads on-chain token supply.
type SupplyProvider interface {
	TokenSupply(ctx context.Context, mint string) (float64, error)
}

// Config tunes cache lifetimes and progressive batching.
type Config struct {
	Failure          FailurePolicy
	SupplyTTL        time.Duration
	EstimatedSupply  float64
	AccessFlushEvery int
	BatchSize        int
	BatchDelay       time.Duration
	BatchRetry       retry.Policy
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Failure:          DefaultFailurePolicy(),
		SupplyTTL:        24 * time.Hour,
		EstimatedSupply:  1_000_000_000,
		AccessFlushEvery: 5,
		BatchSize:        5,
		BatchDelay:       4 * time.Second,
		BatchRetry:       retry.LinearPolicy(2, 2*time.Second),
	}
}

// Service is the shared token price cache.
type Service struct {
	config Config
	prices PriceProvider
	supply SupplyProvider
	store  cache.Store
	logger *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu               sync.RWMutex
	entries          map[string]entities.CachedTokenData
	failed           map[string]entities.FailedFetchRecord
	accessCount      map[string]int
	lastAccess       map[string]int64
	supplies         map[string]entities.TokenSupply
	accessSinceFlush int

	// saveMu is held from snapshot to Set so a tier never goes back to an older copy.
	saveMu sync.Mutex
}

// NewService creates an empty cache. Call Load to restore persisted tiers.
func NewService(config Config, prices PriceProvider, supply SupplyProvider, store cache.Store, logger *zap.Logger) *Service {
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if config.AccessFlushEvery <= 0 {
		config.AccessFlushEvery = 5
	}
	if config.EstimatedSupply <= 0 {
		config.EstimatedSupply = 1_000_000_000
	}
	if config.SupplyTTL <= 0 {
		config.SupplyTTL = 24 * time.Hour
	}

	return &Service{
		config:      config,
		prices:      prices,
		supply:      supply,
		store:       store,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
		entries:     make(map[string]entities.CachedTokenData),
		failed:      make(map[string]entities.FailedFetchRecord),
		accessCount: make(map[string]int),
		lastAccess:  make(map[string]int64),
		supplies:    make(map[string]entities.TokenSupply),
	}
}

// Peek returns the cached entry for address without touching access stats.
func (s *Service) Peek(address string) (entities.CachedTokenData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[address]
	return entry, ok
}

// Stats reports how many entries each tier holds.
func (s *Service) Stats() entities.CacheStats {
	s.mu.RLock()
	stats := entities.CacheStats{
		Prices:   len(s.entries),
		Failed:   len(s.failed),
		Supplies: len(s.supplies),
		Tracked:  len(s.accessCount),
	}
	for _, entry := range s.entries {
		if entry.IsAccurate {
			stats.AccuratePrice++
		}
	}
	s.mu.RUnlock()

	metrics.CacheEntries.WithLabelValues("price").Set(float64(stats.Prices))
	metrics.CacheEntries.WithLabelValues("failed").Set(float64(stats.Failed))
	metrics.CacheEntries.WithLabelValues("supply").Set(float64(stats.Supplies))
	return stats
}

// recordAccess bumps the access counters and flushes them every few accesses.
func (s *Service) recordAccess(ctx context.Context, address string) {
	s.mu.Lock()
	s.accessCount[address]++
	s.lastAccess[address] = s.now().UnixMilli()
	s.accessSinceFlush++
	flush := s.accessSinceFlush >= s.config.AccessFlushEvery
	if flush {
		s.accessSinceFlush = 0
	}
	s.mu.Unlock()

	if flush {
		s.persistAccess(ctx)
	}
}
