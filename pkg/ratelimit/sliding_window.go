package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Config defines the shared rate limits enforced across instances
type Config struct {
	IPLimit        int64
	IPWindow       time.Duration
	EndpointLimits map[string]EndpointLimit
}

// EndpointLimit defines rate limit for a specific route
type EndpointLimit struct {
	Limit  int64
	Window time.Duration
}

// CheckResult contains the result of a rate limit check
type CheckResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	LimitedBy  string
}

// SlidingWindowLimiter counts requests in Redis sorted sets so every replica
// sees the same window.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// NewSlidingWindowLimiter creates a new Redis backed limiter
func NewSlidingWindowLimiter(client *redis.Client, config Config, logger *zap.Logger) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:  client,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Check applies the IP tier, then the endpoint tier for route.
func (l *SlidingWindowLimiter) Check(ctx context.Context, ip, route string) (*CheckResult, error) {
	if l.config.IPLimit > 0 && ip != "" {
		allowed, remaining, err := l.checkLimit(ctx, "ip", ip, l.config.IPLimit, l.config.IPWindow)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return &CheckResult{Allowed: false, Remaining: remaining, RetryAfter: l.config.IPWindow, LimitedBy: "ip"}, nil
		}
	}

	if endpointLimit, ok := l.config.EndpointLimits[route]; ok {
		allowed, remaining, err := l.checkLimit(ctx, "endpoint", route+":"+ip, endpointLimit.Limit, endpointLimit.Window)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return &CheckResult{Allowed: false, Remaining: remaining, RetryAfter: endpointLimit.Window, LimitedBy: "endpoint"}, nil
		}
	}

	return &CheckResult{Allowed: true, Remaining: -1}, nil
}

func (l *SlidingWindowLimiter) checkLimit(ctx context.Context, tier, key string, limit int64, window time.Duration) (bool, int64, error) {
	redisKey := windowKey(tier, key)
	now := l.now()
	windowStart := now.Add(-window)

	pipe := l.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCount(ctx, redisKey, fmt.Sprintf("%d", windowStart.UnixNano()), "+inf")
	pipe.ZAdd(ctx, redisKey, &redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, redisKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := countCmd.Val()
	return count < limit, remainingAfter(limit, count), nil
}

func windowKey(tier, key string) string {
	return fmt.Sprintf("stockline:ratelimit:%s:%s", tier, key)
}

func remainingAfter(limit, count int64) int64 {
	remaining := limit - count - 1
	if remaining < 0 {
		return 0
	}
	return remaining
}
