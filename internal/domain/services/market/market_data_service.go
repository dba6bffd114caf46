package market

import (
	"context"

	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	domainerrors "github.com/stockline/stockline_service/internal/domain/errors"
	"github.com/stockline/stockline_service/internal/domain/validation"
)

// PriceCache is the subset of the token price cache the market service reads.
type PriceCache interface {
	FetchTokenData(ctx context.Context, address string) entities.TokenData
	FetchMultipleTokensData(ctx context.Context, addresses []string) map[string]entities.TokenData
	Peek(address string) (entities.CachedTokenData, bool)
}

// MarketDataService serves catalog listings and single-token quotes
type MarketDataService struct {
	prices PriceCache
	logger *zap.Logger
}

func NewMarketDataService(prices PriceCache, logger *zap.Logger) *MarketDataService {
	return &MarketDataService{
		prices: prices,
		logger: logger,
	}
}

// GetQuote returns the asset for address with live figures. Addresses outside
// the catalog are returned with only the price fields set.
func (s *MarketDataService) GetQuote(ctx context.Context, address string) (*entities.Asset, error) {
	if !validation.IsSolanaAddress(address) {
		return nil, domainerrors.ValidationError("address", "invalid token address")
	}

	data := s.prices.FetchTokenData(ctx, address)

	asset, ok := Lookup(address)
	if !ok {
		asset = entities.Asset{Address: address}
	}
	if data.Price > 0 {
		merged := mergeOne(asset, data)
		return &merged, nil
	}

	s.logger.Debug("No live price, serving catalog fallback", zap.String("address", address))
	return &asset, nil
}

// GetQuotes fetches figures for valid addresses. Invalid addresses are skipped.
func (s *MarketDataService) GetQuotes(ctx context.Context, addresses []string) map[string]entities.TokenData {
	valid := make([]string, 0, len(addresses))
	for _, address := range addresses {
		if validation.IsSolanaAddress(address) {
			valid = append(valid, address)
		}
	}
	return s.prices.FetchMultipleTokensData(ctx, valid)
}

// CachedCatalog merges whatever the cache already holds onto the static list
// without any network access.
func (s *MarketDataService) CachedCatalog(source entities.DataSource) []entities.Asset {
	data := make(map[string]entities.TokenData)
	for _, address := range Addresses(source) {
		if entry, ok := s.prices.Peek(address); ok {
			data[address] = entry.TokenData
		}
	}
	return MergeOntoCatalog(source, data)
}

func mergeOne(asset entities.Asset, data entities.TokenData) entities.Asset {
	asset.Price = data.Price
	if data.MarketCap > 0 {
		asset.MarketCap = data.MarketCap
	}
	if data.Volume24h > 0 {
		asset.Volume24h = data.Volume24h
	}
	asset.Change24h = data.Change24h
	return asset
}
