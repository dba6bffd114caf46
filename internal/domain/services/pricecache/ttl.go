package pricecache

import (
	"time"

	"github.com/stockline/stockline_service/internal/domain/entities"
)

const (
	// HotTTL applies to tokens read more than HotAccessThreshold times.
	HotTTL = 10 * time.Minute
	// ColdTTL applies to tokens read fewer than ColdAccessThreshold times.
	ColdTTL = 30 * time.Minute
	// DefaultTTL applies to everything in between.
	DefaultTTL = 15 * time.Minute

	HotAccessThreshold  = 10
	ColdAccessThreshold = 3
)

// TTLFor selects the cache lifetime for a token read accessCount times.
func TTLFor(accessCount int) time.Duration {
	switch {
	case accessCount > HotAccessThreshold:
		return HotTTL
	case accessCount < ColdAccessThreshold:
		return ColdTTL
	default:
		return DefaultTTL
	}
}

// ShouldInvalidateCache reports whether entry has outlived the TTL chosen
// from address's current access count.
func (s *Service) ShouldInvalidateCache(address string, entry entities.CachedTokenData) bool {
	s.mu.RLock()
	count := s.accessCount[address]
	s.mu.RUnlock()

	return entry.Age(s.now()) > TTLFor(count)
}
