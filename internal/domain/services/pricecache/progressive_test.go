package pricecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/internal/domain/services/market"
)

func priceOf(assets []entities.Asset, address string) float64 {
	for _, asset := range assets {
		if asset.Address == address {
			return asset.Price
		}
	}
	return -1
}

func TestProgressive_AllFreshCallsOnceWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	addresses := market.Addresses(entities.DataSourceCrypto)
	for i, address := range addresses {
		h.seed(address, entities.TokenData{Price: float64(i + 1)}, true)
	}

	var snapshots [][]entities.Asset
	data, err := h.svc.FetchMultipleTokensDataProgressive(context.Background(), addresses, func(assets []entities.Asset) {
		snapshots = append(snapshots, assets)
	}, entities.DataSourceCrypto)

	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 0, h.birdeye.totalPriceCalls())
	assert.Len(t, data, len(addresses))
	assert.Equal(t, 1.0, priceOf(snapshots[0], addresses[0]))
}

func TestProgressive_BatchesMissesAndMergesOntoCatalog(t *testing.T) {
	h := newHarness(t)
	addresses := market.Addresses(entities.DataSourceStocks)
	require.Len(t, addresses, 6)

	// first stock is cached, the other five are fetched in one batch
	h.seed(addresses[0], entities.TokenData{Price: 999}, true)
	for _, address := range addresses[1:] {
		h.birdeye.prices[address] = &entities.BirdeyePrice{Value: 10}
	}

	var snapshots [][]entities.Asset
	_, err := h.svc.FetchMultipleTokensDataProgressive(context.Background(), addresses, func(assets []entities.Asset) {
		snapshots = append(snapshots, assets)
	}, entities.DataSourceStocks)
	require.NoError(t, err)

	require.Len(t, snapshots, 2)

	first := snapshots[0]
	assert.Equal(t, 999.0, priceOf(first, addresses[0]))
	assert.Equal(t, entities.StockAssets[1].Price, priceOf(first, addresses[1]), "static fallback before fetch")

	last := snapshots[1]
	assert.Equal(t, 999.0, priceOf(last, addresses[0]))
	for _, address := range addresses[1:] {
		assert.Equal(t, 10.0, priceOf(last, address))
	}
}

func TestProgressive_MultipleBatches(t *testing.T) {
	h := newHarness(t)
	addresses := append(market.Addresses(entities.DataSourceStocks), market.Addresses(entities.DataSourceCrypto)...)
	for _, address := range addresses {
		h.birdeye.prices[address] = &entities.BirdeyePrice{Value: 3}
	}

	calls := 0
	data, err := h.svc.FetchMultipleTokensDataProgressive(context.Background(), addresses, func([]entities.Asset) {
		calls++
	}, entities.DataSourceCrypto)
	require.NoError(t, err)

	// one cache snapshot plus ceil(13/5) batches
	assert.Equal(t, 4, calls)
	assert.Len(t, data, 13)
}

func TestProgressive_RetriesOnlyFailedAddresses(t *testing.T) {
	h := newHarness(t)
	addresses := market.Addresses(entities.DataSourceCrypto)[:3]
	for _, address := range addresses {
		h.birdeye.prices[address] = &entities.BirdeyePrice{Value: 5}
	}
	h.birdeye.failFirst[addresses[1]] = 2

	data, err := h.svc.FetchMultipleTokensDataProgressive(context.Background(), addresses, nil, entities.DataSourceCrypto)
	require.NoError(t, err)

	assert.Equal(t, 5.0, data[addresses[1]].Price)
	assert.Equal(t, 1, h.birdeye.priceCalls[addresses[0]])
	assert.Equal(t, 3, h.birdeye.priceCalls[addresses[1]])
}

func TestProgressive_FallsBackToSequentialAfterRetries(t *testing.T) {
	h := newHarness(t)
	addresses := market.Addresses(entities.DataSourceCrypto)[:2]
	h.birdeye.prices[addresses[0]] = &entities.BirdeyePrice{Value: 5}
	h.birdeye.prices[addresses[1]] = &entities.BirdeyePrice{Value: 7}
	// fails the initial attempt and both retries, succeeds on the one-by-one fetch
	h.birdeye.failFirst[addresses[1]] = 3

	data, err := h.svc.FetchMultipleTokensDataProgressive(context.Background(), addresses, nil, entities.DataSourceCrypto)
	require.NoError(t, err)

	assert.Equal(t, 7.0, data[addresses[1]].Price)
	assert.Equal(t, 4, h.birdeye.priceCalls[addresses[1]])
}

func TestProgressive_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	addresses := append(market.Addresses(entities.DataSourceStocks), market.Addresses(entities.DataSourceCrypto)...)
	for _, address := range addresses {
		h.birdeye.prices[address] = &entities.BirdeyePrice{Value: 1}
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := h.svc.FetchMultipleTokensDataProgressive(ctx, addresses, func([]entities.Asset) {
		calls++
		if calls == 2 {
			cancel()
		}
	}, entities.DataSourceStocks)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestProgressive_SkipsAddressesInsideFailureWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.FetchTokenData(ctx, solMint)
	require.False(t, h.svc.CanRetryFetch(solMint))
	h.birdeye.prices[solMint] = &entities.BirdeyePrice{Value: 150}

	data, err := h.svc.FetchMultipleTokensDataProgressive(ctx, []string{solMint}, nil, entities.DataSourceCrypto)
	require.NoError(t, err)

	assert.Equal(t, 1, h.birdeye.priceCalls[solMint])
	assert.Zero(t, data[solMint].Price)
	record, ok := h.svc.FailureRecord(solMint)
	require.True(t, ok)
	assert.Equal(t, 1, record.AttemptCount)

	h.clock.Advance(31 * time.Second)
	data, err = h.svc.FetchMultipleTokensDataProgressive(ctx, []string{solMint}, nil, entities.DataSourceCrypto)
	require.NoError(t, err)
	assert.Equal(t, 150.0, data[solMint].Price)
}

func TestProgressive_MarksFailedAfterSequentialFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	addresses := market.Addresses(entities.DataSourceCrypto)[:2]
	h.birdeye.prices[addresses[0]] = &entities.BirdeyePrice{Value: 5}

	_, err := h.svc.FetchMultipleTokensDataProgressive(ctx, addresses, nil, entities.DataSourceCrypto)
	require.NoError(t, err)

	// initial attempt, two retries, one sequential fetch
	assert.Equal(t, 4, h.birdeye.priceCalls[addresses[1]])
	record, ok := h.svc.FailureRecord(addresses[1])
	require.True(t, ok)
	assert.Equal(t, 1, record.AttemptCount)
	_, ok = h.svc.FailureRecord(addresses[0])
	assert.False(t, ok)

	_, err = h.svc.FetchMultipleTokensDataProgressive(ctx, addresses[1:], nil, entities.DataSourceCrypto)
	require.NoError(t, err)
	assert.Equal(t, 4, h.birdeye.priceCalls[addresses[1]])
}

func TestProgressive_DelaysBetweenBatchesOnly(t *testing.T) {
	h := newHarness(t)
	h.svc.config.BatchDelay = 4 * time.Second
	addresses := append(market.Addresses(entities.DataSourceStocks), market.Addresses(entities.DataSourceCrypto)...)
	for _, address := range addresses {
		h.birdeye.prices[address] = &entities.BirdeyePrice{Value: 2}
	}

	var (
		delays      []time.Duration
		callsBefore []int
	)
	h.svc.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		callsBefore = append(callsBefore, h.birdeye.totalPriceCalls())
		return nil
	}

	_, err := h.svc.FetchMultipleTokensDataProgressive(context.Background(), addresses, nil, entities.DataSourceStocks)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second}, delays)
	assert.Equal(t, []int{5, 10}, callsBefore)
}

func TestSleepContext(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleepContext(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
