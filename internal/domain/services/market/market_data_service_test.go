package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	domainerrors "github.com/stockline/stockline_service/internal/domain/errors"
)

type stubPrices struct {
	live    map[string]entities.TokenData
	cached  map[string]entities.CachedTokenData
	batches [][]string
}

func (s *stubPrices) FetchTokenData(_ context.Context, address string) entities.TokenData {
	return s.live[address]
}

func (s *stubPrices) FetchMultipleTokensData(_ context.Context, addresses []string) map[string]entities.TokenData {
	s.batches = append(s.batches, addresses)
	out := make(map[string]entities.TokenData, len(addresses))
	for _, address := range addresses {
		out[address] = s.live[address]
	}
	return out
}

func (s *stubPrices) Peek(address string) (entities.CachedTokenData, bool) {
	entry, ok := s.cached[address]
	return entry, ok
}

func TestGetQuote(t *testing.T) {
	prices := &stubPrices{live: map[string]entities.TokenData{
		entities.SOLMint: {Price: 155, MarketCap: 9e10},
	}}
	svc := NewMarketDataService(prices, zap.NewNop())

	t.Run("live figures merged onto catalog", func(t *testing.T) {
		asset, err := svc.GetQuote(context.Background(), entities.SOLMint)
		require.NoError(t, err)
		assert.Equal(t, "SOL", asset.Symbol)
		assert.Equal(t, 155.0, asset.Price)
		assert.Equal(t, 9e10, asset.MarketCap)
	})

	t.Run("catalog fallback when upstream has nothing", func(t *testing.T) {
		asset, err := svc.GetQuote(context.Background(), entities.USDCMint)
		require.NoError(t, err)
		assert.Equal(t, 1.0, asset.Price)
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := svc.GetQuote(context.Background(), "not-a-mint")
		assert.True(t, domainerrors.IsInvalidInput(err))
	})
}

func TestGetQuotes_SkipsInvalidAddresses(t *testing.T) {
	prices := &stubPrices{live: map[string]entities.TokenData{}}
	svc := NewMarketDataService(prices, zap.NewNop())

	svc.GetQuotes(context.Background(), []string{entities.SOLMint, "0xdeadbeef", entities.JUPMint})

	require.Len(t, prices.batches, 1)
	assert.Equal(t, []string{entities.SOLMint, entities.JUPMint}, prices.batches[0])
}

func TestCachedCatalog(t *testing.T) {
	prices := &stubPrices{cached: map[string]entities.CachedTokenData{
		entities.SOLMint: {TokenData: entities.TokenData{Price: 170}},
	}}
	svc := NewMarketDataService(prices, zap.NewNop())

	assets := svc.CachedCatalog(entities.DataSourceCrypto)
	require.Len(t, assets, len(entities.CryptoAssets))
	assert.Equal(t, 170.0, assets[0].Price)
	assert.Equal(t, 1.0, assets[1].Price)
}
