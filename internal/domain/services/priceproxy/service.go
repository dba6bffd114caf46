package priceproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/internal/domain/validation"
	"github.com/stockline/stockline_service/pkg/metrics"
	"github.com/stockline/stockline_service/pkg/tracing"
)

const tracerName = "github.com/stockline/stockline_service/priceproxy"

// MultiPricer fetches prices for many tokens in one upstream call.
type MultiPricer interface {
	MultiPrice(ctx context.Context, addresses []string) (map[string]*entities.BirdeyePrice, error)
}

type Config struct {
	TTL        time.Duration
	ChunkSize  int
	Workers    int
	MaxEntries int
}

func DefaultConfig() Config {
	return Config{
		TTL:        15 * time.Second,
		ChunkSize:  100,
		Workers:    3,
		MaxEntries: 10000,
	}
}

// Service aggregates price lookups for the public proxy route. Recent prices
// are served from a short-lived cache and the rest are fetched in chunks by a
// fixed pool of workers.
type Service struct {
	config   Config
	upstream MultiPricer
	cache    *expirable.LRU[string, entities.BirdeyePrice]
	logger   *zap.Logger
}

func NewService(config Config, upstream MultiPricer, logger *zap.Logger) *Service {
	defaults := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}

	return &Service{
		config:   config,
		upstream: upstream,
		cache:    expirable.NewLRU[string, entities.BirdeyePrice](config.MaxEntries, nil, config.TTL),
		logger:   logger,
	}
}

// Prices returns one entry per valid distinct address: the price result, or
// nil when upstream could not supply it. Invalid addresses are dropped.
func (s *Service) Prices(ctx context.Context, addresses []string) map[string]*entities.PriceResult {
	valid := Normalize(addresses)
	results := make(map[string]*entities.PriceResult, len(valid))

	var misses []string
	for _, address := range valid {
		if price, ok := s.cache.Get(address); ok {
			metrics.CacheLookupsTotal.WithLabelValues("proxy", "hit").Inc()
			results[address] = &entities.PriceResult{Success: true, Data: price}
			continue
		}
		metrics.CacheLookupsTotal.WithLabelValues("proxy", "miss").Inc()
		misses = append(misses, address)
	}

	if len(misses) == 0 {
		return results
	}

	chunks := Chunk(misses, s.config.ChunkSize)
	queue := make(chan []string, len(chunks))
	for _, chunk := range chunks {
		queue <- chunk
	}
	close(queue)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for worker := 0; worker < s.config.Workers; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range queue {
				fetched := s.fetchChunk(ctx, chunk)
				mu.Lock()
				for address, result := range fetched {
					results[address] = result
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return results
}

// fetchChunk never fails: on any upstream error every address maps to nil.
func (s *Service) fetchChunk(ctx context.Context, chunk []string) map[string]*entities.PriceResult {
	out := make(map[string]*entities.PriceResult, len(chunk))

	ctx, span := tracing.StartSpan(ctx, tracerName, "priceproxy.fetchChunk", attribute.Int("chunk.size", len(chunk)))
	prices, err := s.upstream.MultiPrice(ctx, chunk)
	tracing.EndSpan(span, err)
	if err != nil {
		metrics.ProxyChunkFailuresTotal.Inc()
		s.logger.Warn("Price chunk failed, returning nulls",
			zap.Int("chunk_size", len(chunk)),
			zap.Error(err))
		for _, address := range chunk {
			out[address] = nil
		}
		return out
	}

	for _, address := range chunk {
		price := prices[address]
		if price == nil {
			out[address] = nil
			continue
		}
		s.cache.Add(address, *price)
		out[address] = &entities.PriceResult{Success: true, Data: *price}
	}
	return out
}

// Len reports how many prices are currently cached.
func (s *Service) Len() int {
	return s.cache.Len()
}

// Purge drops every cached price.
func (s *Service) Purge() {
	s.cache.Purge()
}

// Normalize splits comma lists, trims, drops malformed addresses and removes
// duplicates keeping the first occurrence.
func Normalize(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, raw := range addresses {
		for _, part := range strings.Split(raw, ",") {
			address := strings.TrimSpace(part)
			if !validation.IsSolanaAddress(address) || seen[address] {
				continue
			}
			seen[address] = true
			out = append(out, address)
		}
	}
	return out
}

// Chunk splits addresses into slices of at most size entries.
func Chunk(addresses []string, size int) [][]string {
	if size <= 0 {
		size = len(addresses)
	}
	var chunks [][]string
	for start := 0; start < len(addresses); start += size {
		end := min(start+size, len(addresses))
		chunks = append(chunks, addresses[start:end])
	}
	return chunks
}

// DecodeAddresses accepts either a JSON array of strings or a single string.
func DecodeAddresses(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("addresses must be a string or an array of strings")
	}
	return []string{single}, nil
}
