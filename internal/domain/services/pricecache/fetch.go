package pricecache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/pkg/metrics"
)

// estimatedVolumeMultiplier derives 24h volume from price when Birdeye omits it.
const estimatedVolumeMultiplier = 10000

var errNoPrice = errors.New("no usable price")

// FetchTokenData returns the current figures for address, serving from cache
// while fresh. On failure it returns the last cached figures or zeros.
func (s *Service) FetchTokenData(ctx context.Context, address string) entities.TokenData {
	s.recordAccess(ctx, address)
	return s.fetchTokenData(ctx, address)
}

func (s *Service) fetchTokenData(ctx context.Context, address string) entities.TokenData {
	stale, hasStale := s.Peek(address)
	if hasStale && !s.ShouldInvalidateCache(address, stale) {
		metrics.CacheLookupsTotal.WithLabelValues("price", "hit").Inc()
		return stale.TokenData
	}

	if hasStale {
		metrics.CacheLookupsTotal.WithLabelValues("price", "stale").Inc()
	} else {
		metrics.CacheLookupsTotal.WithLabelValues("price", "miss").Inc()
	}

	if !s.CanRetryFetch(address) {
		return fallback(stale, hasStale)
	}

	entry, err := s.refresh(ctx, address)
	if err != nil {
		metrics.PriceFetchFailuresTotal.Inc()
		s.logger.Warn("Token price fetch failed, serving fallback",
			zap.String("address", address),
			zap.Bool("has_cached", hasStale),
			zap.Error(err))
		s.MarkFetchAsFailed(ctx, address)
		return fallback(stale, hasStale)
	}
	return entry.TokenData
}

// refresh fetches fresh figures from upstream and stores them. It does not
// touch failure bookkeeping on error.
func (s *Service) refresh(ctx context.Context, address string) (entities.CachedTokenData, error) {
	if s.prices == nil {
		return entities.CachedTokenData{}, errNoPrice
	}

	quote, err := s.prices.Price(ctx, address)
	if err != nil {
		return entities.CachedTokenData{}, fmt.Errorf("price lookup: %w", err)
	}
	if quote == nil || !validNumber(quote.Value) || quote.Value <= 0 {
		return entities.CachedTokenData{}, errNoPrice
	}

	lookup := s.resolveSupply(ctx, address)

	price := quote.Value
	volume := price * estimatedVolumeMultiplier
	if quote.Volume24hUSD != nil && validNumber(*quote.Volume24hUSD) && *quote.Volume24hUSD > 0 {
		volume = *quote.Volume24hUSD
	}

	entry := entities.CachedTokenData{
		TokenData: sanitize(entities.TokenData{
			Price:     price,
			MarketCap: MarketCap(address, price, lookup.supply),
			Volume24h: volume,
			Change24h: quote.PriceChange24h,
		}),
		Timestamp:  s.now().UnixMilli(),
		IsAccurate: lookup.accurate(),
	}

	s.mu.Lock()
	s.entries[address] = entry
	s.mu.Unlock()

	s.clearFailure(ctx, address)
	s.persistPrices(ctx)

	s.logger.Debug("Refreshed token price",
		zap.String("address", address),
		zap.Float64("price", entry.Price),
		zap.String("supply_source", string(lookup.source)))

	return entry, nil
}

// FetchMultipleTokensData fetches every distinct address, a few at a time.
func (s *Service) FetchMultipleTokensData(ctx context.Context, addresses []string) map[string]entities.TokenData {
	return s.fetchMany(ctx, addresses, s.FetchTokenData)
}

// WarmTokens refreshes stale addresses like FetchMultipleTokensData but leaves
// access statistics alone, so background warming never makes a token popular.
func (s *Service) WarmTokens(ctx context.Context, addresses []string) map[string]entities.TokenData {
	return s.fetchMany(ctx, addresses, s.fetchTokenData)
}

func (s *Service) fetchMany(
	ctx context.Context,
	addresses []string,
	fetch func(context.Context, string) entities.TokenData,
) map[string]entities.TokenData {
	unique := dedupe(addresses)
	results := make(map[string]entities.TokenData, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.BatchSize)
	for _, address := range unique {
		g.Go(func() error {
			data := fetch(gctx, address)
			mu.Lock()
			results[address] = data
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results
}

func fallback(entry entities.CachedTokenData, ok bool) entities.TokenData {
	if !ok {
		return entities.TokenData{}
	}
	return sanitize(entry.TokenData)
}

func sanitize(data entities.TokenData) entities.TokenData {
	return entities.TokenData{
		Price:     finiteOrZero(data.Price),
		MarketCap: finiteOrZero(data.MarketCap),
		Volume24h: finiteOrZero(data.Volume24h),
		Change24h: finiteOrZero(data.Change24h),
	}
}

func finiteOrZero(v float64) float64 {
	if !validNumber(v) {
		return 0
	}
	return v
}

func validNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func dedupe(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, address := range addresses {
		if address == "" {
			continue
		}
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		out = append(out, address)
	}
	return out
}
