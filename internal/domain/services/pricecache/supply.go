package pricecache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/pkg/metrics"
)

// supplyLookup is the resolved supply of a token and where it came from.
type supplyLookup struct {
	supply float64
	source entities.SupplySource
}

func (l supplyLookup) accurate() bool {
	return l.source != entities.SupplySourceEstimate
}

// resolveSupply walks cache, RPC, Birdeye overview and finally the fixed
// estimate. Only real figures are cached.
func (s *Service) resolveSupply(ctx context.Context, address string) supplyLookup {
	now := s.now()

	s.mu.RLock()
	cached, ok := s.supplies[address]
	s.mu.RUnlock()
	if ok && cached.Supply > 0 && now.Sub(time.UnixMilli(cached.Timestamp)) < s.config.SupplyTTL {
		metrics.CacheLookupsTotal.WithLabelValues("supply", "hit").Inc()
		return supplyLookup{supply: cached.Supply, source: entities.SupplySourceCache}
	}
	metrics.CacheLookupsTotal.WithLabelValues("supply", "miss").Inc()

	lookup := s.fetchSupply(ctx, address)
	metrics.SupplySourceTotal.WithLabelValues(string(lookup.source)).Inc()

	if lookup.accurate() {
		s.mu.Lock()
		s.supplies[address] = entities.TokenSupply{Supply: lookup.supply, Timestamp: now.UnixMilli()}
		s.mu.Unlock()
		s.persistSupplies(ctx)
	}
	return lookup
}

func (s *Service) fetchSupply(ctx context.Context, address string) supplyLookup {
	if s.supply != nil {
		supply, err := s.supply.TokenSupply(ctx, address)
		if err == nil && validNumber(supply) && supply > 0 {
			return supplyLookup{supply: supply, source: entities.SupplySourceRPC}
		}
		s.logger.Debug("RPC token supply unavailable",
			zap.String("address", address),
			zap.Error(err))
	}

	if s.prices != nil {
		overview, err := s.prices.TokenOverview(ctx, address)
		if err == nil && overview != nil && validNumber(overview.Supply) && overview.Supply > 0 {
			return supplyLookup{supply: overview.Supply, source: entities.SupplySourceBirdeye}
		}
		s.logger.Debug("Birdeye token overview supply unavailable",
			zap.String("address", address),
			zap.Error(err))
	}

	s.logger.Warn("Falling back to estimated token supply",
		zap.String("address", address),
		zap.Float64("estimate", s.config.EstimatedSupply))
	return supplyLookup{supply: s.config.EstimatedSupply, source: entities.SupplySourceEstimate}
}

// MarketCap applies the crypto and xStock market cap rules.
func MarketCap(address string, price, supply float64) float64 {
	if entities.IsCryptoAddress(address) {
		return price * supply
	}
	return price * supply / 1000
}
