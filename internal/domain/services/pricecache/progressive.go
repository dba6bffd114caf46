package pricecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/internal/domain/services/market"
	"github.com/stockline/stockline_service/pkg/metrics"
	"github.com/stockline/stockline_service/pkg/retry"
)

// ProgressFunc receives the full catalog with every figure known so far.
type ProgressFunc func(assets []entities.Asset)

// FetchMultipleTokensDataProgressive first reports everything the cache
// already holds, then fetches the misses in fixed-size batches and reports
// again after each batch. It returns the figures gathered for addresses.
func (s *Service) FetchMultipleTokensDataProgressive(
	ctx context.Context,
	addresses []string,
	onProgress ProgressFunc,
	source entities.DataSource,
) (map[string]entities.TokenData, error) {
	unique := dedupe(addresses)
	data := make(map[string]entities.TokenData, len(unique))
	var misses []string

	for _, address := range unique {
		s.recordAccess(ctx, address)
		entry, ok := s.Peek(address)
		if ok {
			data[address] = entry.TokenData
		}
		if !ok || s.ShouldInvalidateCache(address, entry) {
			misses = append(misses, address)
		}
	}

	emit(onProgress, source, data)

	if len(misses) == 0 {
		return data, nil
	}

	s.logger.Info("Progressive load fetching uncached tokens",
		zap.Int("cached", len(unique)-len(misses)),
		zap.Int("missing", len(misses)),
		zap.String("source", string(source)))

	for start := 0; start < len(misses); start += s.config.BatchSize {
		if start > 0 {
			if err := s.sleep(ctx, s.config.BatchDelay); err != nil {
				return data, err
			}
		}

		end := min(start+s.config.BatchSize, len(misses))
		batch := misses[start:end]

		for address, fresh := range s.fetchBatch(ctx, batch) {
			if fresh.Price > 0 {
				data[address] = fresh
			}
		}

		if err := ctx.Err(); err != nil {
			return data, err
		}
		emit(onProgress, source, data)
	}

	return data, nil
}

// fetchBatch fetches one batch concurrently, retrying the failed addresses
// with the batch retry policy and finally falling back to one-by-one fetches.
// Addresses still inside their failure window are served from cache.
func (s *Service) fetchBatch(ctx context.Context, batch []string) map[string]entities.TokenData {
	results := make(map[string]entities.TokenData, len(batch))

	var pending []string
	for _, address := range batch {
		if s.CanRetryFetch(address) {
			pending = append(pending, address)
			continue
		}
		stale, ok := s.Peek(address)
		results[address] = fallback(stale, ok)
	}
	if len(pending) == 0 {
		return results
	}

	err := retry.Do(ctx, s.config.BatchRetry, s.logger, func() error {
		fetched, failed := s.refreshConcurrently(ctx, pending)
		for address, entry := range fetched {
			results[address] = entry.TokenData
		}
		pending = failed
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d tokens failed", len(failed), len(batch))
		}
		return nil
	})
	if err == nil {
		metrics.ProgressiveBatchesTotal.WithLabelValues("success").Inc()
		return results
	}

	if ctx.Err() != nil {
		return results
	}

	metrics.ProgressiveBatchesTotal.WithLabelValues("fallback").Inc()
	s.logger.Warn("Batch retries exhausted, fetching individually",
		zap.Strings("addresses", pending),
		zap.Error(err))

	for _, address := range pending {
		if ctx.Err() != nil {
			break
		}
		stale, ok := s.Peek(address)
		entry, err := s.refresh(ctx, address)
		if err != nil {
			metrics.PriceFetchFailuresTotal.Inc()
			s.MarkFetchAsFailed(ctx, address)
			results[address] = fallback(stale, ok)
			continue
		}
		results[address] = entry.TokenData
	}
	return results
}

func (s *Service) refreshConcurrently(ctx context.Context, addresses []string) (map[string]entities.CachedTokenData, []string) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		fetched = make(map[string]entities.CachedTokenData, len(addresses))
		failed  []string
	)

	for _, address := range addresses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := s.refresh(ctx, address)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, address)
				return
			}
			fetched[address] = entry
		}()
	}
	wg.Wait()

	// keep the caller's order so retries and logs are deterministic
	ordered := make([]string, 0, len(failed))
	failedSet := make(map[string]bool, len(failed))
	for _, address := range failed {
		failedSet[address] = true
	}
	for _, address := range addresses {
		if failedSet[address] {
			ordered = append(ordered, address)
		}
	}
	return fetched, ordered
}

func emit(onProgress ProgressFunc, source entities.DataSource, data map[string]entities.TokenData) {
	if onProgress == nil {
		return
	}
	onProgress(market.MergeOntoCatalog(source, data))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
