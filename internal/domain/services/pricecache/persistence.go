package pricecache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/internal/infrastructure/cache"
)

// Store keys for each persisted tier.
const (
	KeyPrices     = "solana_token_cache"
	KeyFailed     = "solana_failed_fetch_cache"
	KeyAccess     = "solana_token_access_count"
	KeyLastAccess = "solana_token_last_access"
	KeySupply     = "solana_token_supply_cache"
)

// Load restores every tier from the store. Missing keys and envelopes written
// by another schema version are skipped.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	var (
		prices     map[string]entities.CachedTokenData
		failed     map[string]entities.FailedFetchRecord
		access     map[string]int
		lastAccess map[string]int64
		supplies   map[string]entities.TokenSupply
	)

	var errs []error
	for key, dest := range map[string]interface{}{
		KeyPrices:     &prices,
		KeyFailed:     &failed,
		KeyAccess:     &access,
		KeyLastAccess: &lastAccess,
		KeySupply:     &supplies,
	} {
		err := cache.LoadEnvelope(ctx, s.store, key, dest)
		switch {
		case err == nil, cache.IsMiss(err):
		case errors.Is(err, cache.ErrVersionMismatch):
			s.logger.Warn("Ignoring persisted cache tier", zap.String("key", key), zap.Error(err))
		default:
			errs = append(errs, fmt.Errorf("load %s: %w", key, err))
		}
	}

	s.mu.Lock()
	for address, entry := range prices {
		if entry.IsAccurate {
			s.entries[address] = entry
		}
	}
	for address, record := range failed {
		s.failed[address] = record
	}
	for address, count := range access {
		s.accessCount[address] = count
	}
	for address, ts := range lastAccess {
		s.lastAccess[address] = ts
	}
	for address, supply := range supplies {
		s.supplies[address] = supply
	}
	loaded := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("Token price cache loaded",
		zap.Int("prices", loaded),
		zap.Int("supplies", len(supplies)),
		zap.Int("failed", len(failed)))

	return errors.Join(errs...)
}

// Flush writes every tier to the store.
func (s *Service) Flush(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return errors.Join(
		s.savePrices(ctx),
		s.saveFailures(ctx),
		s.saveAccess(ctx),
		s.saveSupplies(ctx),
	)
}

// ClearCache drops every tier in memory and in the store.
func (s *Service) ClearCache(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]entities.CachedTokenData)
	s.failed = make(map[string]entities.FailedFetchRecord)
	s.accessCount = make(map[string]int)
	s.lastAccess = make(map[string]int64)
	s.supplies = make(map[string]entities.TokenSupply)
	s.accessSinceFlush = 0
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}

	var errs []error
	for _, key := range []string{KeyPrices, KeyFailed, KeyAccess, KeyLastAccess, KeySupply} {
		if err := s.store.Del(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	s.logger.Info("Token price cache cleared")
	return errors.Join(errs...)
}

func (s *Service) persistPrices(ctx context.Context)   { s.logPersist(KeyPrices, s.savePrices(ctx)) }
func (s *Service) persistFailures(ctx context.Context) { s.logPersist(KeyFailed, s.saveFailures(ctx)) }
func (s *Service) persistAccess(ctx context.Context)   { s.logPersist(KeyAccess, s.saveAccess(ctx)) }
func (s *Service) persistSupplies(ctx context.Context) { s.logPersist(KeySupply, s.saveSupplies(ctx)) }

func (s *Service) logPersist(key string, err error) {
	if err != nil {
		s.logger.Warn("Failed to persist cache tier", zap.String("key", key), zap.Error(err))
	}
}

// savePrices writes only accurate entries; estimates are never persisted.
func (s *Service) savePrices(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[string]entities.CachedTokenData, len(s.entries))
	for address, entry := range s.entries {
		if entry.IsAccurate {
			snapshot[address] = entry
		}
	}
	s.mu.RUnlock()
	return cache.SaveEnvelope(context.WithoutCancel(ctx), s.store, KeyPrices, snapshot, s.now())
}

func (s *Service) saveFailures(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[string]entities.FailedFetchRecord, len(s.failed))
	for address, record := range s.failed {
		snapshot[address] = record
	}
	s.mu.RUnlock()
	return cache.SaveEnvelope(context.WithoutCancel(ctx), s.store, KeyFailed, snapshot, s.now())
}

func (s *Service) saveAccess(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	counts := make(map[string]int, len(s.accessCount))
	for address, count := range s.accessCount {
		counts[address] = count
	}
	last := make(map[string]int64, len(s.lastAccess))
	for address, ts := range s.lastAccess {
		last[address] = ts
	}
	s.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	now := s.now()
	return errors.Join(
		cache.SaveEnvelope(ctx, s.store, KeyAccess, counts, now),
		cache.SaveEnvelope(ctx, s.store, KeyLastAccess, last, now),
	)
}

func (s *Service) saveSupplies(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[string]entities.TokenSupply, len(s.supplies))
	for address, supply := range s.supplies {
		snapshot[address] = supply
	}
	s.mu.RUnlock()
	return cache.SaveEnvelope(context.WithoutCancel(ctx), s.store, KeySupply, snapshot, s.now())
}
