package pricecache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/internal/infrastructure/cache"
)

func TestFlushAndLoad_RoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seed(solMint, entities.TokenData{Price: 150, MarketCap: 9e10}, true)
	h.seed(aaplxMint, entities.TokenData{Price: 210}, false)
	h.svc.MarkFetchAsFailed(ctx, "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	h.svc.mu.Lock()
	h.svc.supplies[solMint] = entities.TokenSupply{Supply: 6e8, Timestamp: h.clock.Now().UnixMilli()}
	h.svc.accessCount[solMint] = 7
	h.svc.mu.Unlock()

	require.NoError(t, h.svc.Flush(ctx))

	restored := NewService(DefaultConfig(), nil, nil, h.store, zap.NewNop())
	restored.now = h.clock.Now
	require.NoError(t, restored.Load(ctx))

	entry, ok := restored.Peek(solMint)
	require.True(t, ok)
	assert.Equal(t, 150.0, entry.Price)
	assert.True(t, entry.IsAccurate)

	_, ok = restored.Peek(aaplxMint)
	assert.False(t, ok, "estimates are never persisted")

	stats := restored.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Supplies)
	assert.Equal(t, 1, stats.Tracked)
}

func TestLoad_SkipsOtherVersions(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyPrices, map[string]interface{}{
		"version":  0,
		"saved_at": time.Now().UnixMilli(),
		"entries": map[string]interface{}{
			solMint: map[string]interface{}{"price": 1, "isAccurate": true},
		},
	}, 0))

	svc := NewService(DefaultConfig(), nil, nil, store, zap.NewNop())
	require.NoError(t, svc.Load(ctx))

	_, ok := svc.Peek(solMint)
	assert.False(t, ok)
}

func TestLoad_EmptyStore(t *testing.T) {
	svc := NewService(DefaultConfig(), nil, nil, cache.NewMemoryStore(), zap.NewNop())
	assert.NoError(t, svc.Load(context.Background()))
	assert.Equal(t, entities.CacheStats{}, svc.Stats())
}

func TestClearCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(solMint, entities.TokenData{Price: 150}, true)
	require.NoError(t, h.svc.Flush(ctx))

	require.NoError(t, h.svc.ClearCache(ctx))

	assert.Equal(t, entities.CacheStats{}, h.svc.Stats())
	_, persisted := h.store.Raw(KeyPrices)
	assert.False(t, persisted)
}

func TestRefreshPersistsImmediately(t *testing.T) {
	h := newHarness(t)
	h.birdeye.prices[solMint] = &entities.BirdeyePrice{Value: 150}
	h.rpc.supplies[solMint] = 6e8

	h.svc.FetchTokenData(context.Background(), solMint)

	var prices map[string]entities.CachedTokenData
	require.NoError(t, cache.LoadEnvelope(context.Background(), h.store, KeyPrices, &prices))
	assert.Equal(t, 150.0, prices[solMint].Price)

	var supplies map[string]entities.TokenSupply
	require.NoError(t, cache.LoadEnvelope(context.Background(), h.store, KeySupply, &supplies))
	assert.Equal(t, 6e8, supplies[solMint].Supply)
}

// gatedStore holds the first write of key until release is closed.
type gatedStore struct {
	*cache.MemoryStore
	key     string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if key == g.key {
		first := false
		g.once.Do(func() { first = true })
		if first {
			close(g.entered)
			<-g.release
		}
	}
	return g.MemoryStore.Set(ctx, key, value, expiration)
}

func TestSavePrices_NewerSnapshotWins(t *testing.T) {
	h := newHarness(t)
	store := &gatedStore{
		MemoryStore: h.store,
		key:         KeyPrices,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	h.svc.store = store
	ctx := context.Background()

	h.seed(solMint, entities.TokenData{Price: 150}, true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.svc.savePrices(ctx))
	}()
	<-store.entered

	h.seed(aaplxMint, entities.TokenData{Price: 210}, true)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.svc.savePrices(ctx))
	}()

	// let the second save reach the store before the first one finishes
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	var persisted map[string]entities.CachedTokenData
	require.NoError(t, cache.LoadEnvelope(ctx, h.store, KeyPrices, &persisted))
	assert.Contains(t, persisted, solMint)
	assert.Contains(t, persisted, aaplxMint)
}
