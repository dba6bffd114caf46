package pricecache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
)

// FailurePolicy controls when a failed address may be fetched again.
// MaxAttempts of zero means attempts are counted but never capped.
type FailurePolicy struct {
	RetryAfter  time.Duration
	MaxAttempts int
}

// DefaultFailurePolicy waits 30 seconds between attempts with no cap.
func DefaultFailurePolicy() FailurePolicy {
	return FailurePolicy{RetryAfter: 30 * time.Second}
}

// MarkFetchAsFailed records a failed lookup. Non-accurate price entries for
// the address are evicted so the estimate is not served again.
func (s *Service) MarkFetchAsFailed(ctx context.Context, address string) {
	s.mu.Lock()
	record := s.failed[address]
	record.Timestamp = s.now().UnixMilli()
	record.AttemptCount++
	s.failed[address] = record

	evicted := false
	if entry, ok := s.entries[address]; ok && !entry.IsAccurate {
		delete(s.entries, address)
		evicted = true
	}
	s.mu.Unlock()

	s.logger.Debug("Marked token fetch as failed",
		zap.String("address", address),
		zap.Int("attempts", record.AttemptCount),
		zap.Bool("evicted", evicted))

	s.persistFailures(ctx)
	if evicted {
		s.persistPrices(ctx)
	}
}

// CanRetryFetch reports whether enough time has passed since the last failure.
func (s *Service) CanRetryFetch(address string) bool {
	s.mu.RLock()
	record, ok := s.failed[address]
	s.mu.RUnlock()

	if !ok {
		return true
	}
	if s.config.Failure.MaxAttempts > 0 && record.AttemptCount >= s.config.Failure.MaxAttempts {
		return false
	}
	return s.now().Sub(time.UnixMilli(record.Timestamp)) >= s.config.Failure.RetryAfter
}

// FailureRecord returns the failure bookkeeping for address.
func (s *Service) FailureRecord(address string) (entities.FailedFetchRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.failed[address]
	return record, ok
}

func (s *Service) clearFailure(ctx context.Context, address string) {
	s.mu.Lock()
	_, had := s.failed[address]
	delete(s.failed, address)
	s.mu.Unlock()

	if had {
		s.persistFailures(ctx)
	}
}
