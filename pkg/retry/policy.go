package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrMaxRetriesExceeded is wrapped into the final error once every attempt failed.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Strategy selects how delays grow between attempts.
type Strategy int

const (
	// StrategyExponential doubles the delay on every attempt.
	StrategyExponential Strategy = iota
	// StrategyLinear waits attempt * BaseDelay.
	StrategyLinear
)

// Policy describes how many times and how long to wait between retries.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Strategy      Strategy
	Jitter        float64
	RetryableFunc func(error) bool
}

// DefaultPolicy matches the upstream adapter retry settings.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   16 * time.Second,
		Strategy:   StrategyExponential,
		Jitter:     0.1,
	}
}

// LinearPolicy waits retryCount * step between attempts.
func LinearPolicy(maxRetries int, step time.Duration) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  step,
		Strategy:   StrategyLinear,
	}
}

// Validate rejects nonsensical policies.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", p.MaxRetries)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must be non-negative, got %v", p.BaseDelay)
	}
	if p.MaxDelay != 0 && p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("jitter must be within [0,1], got %v", p.Jitter)
	}
	return nil
}

// Backoff computes the wait before a given attempt.
type Backoff struct {
	policy Policy
}

// NewBackoff creates a backoff calculator for the policy.
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Calculate returns the delay before retry number attempt (1-based).
func (b *Backoff) Calculate(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	var delay float64
	switch b.policy.Strategy {
	case StrategyLinear:
		delay = float64(b.policy.BaseDelay) * float64(attempt)
	default:
		delay = float64(b.policy.BaseDelay) * math.Pow(2, float64(attempt-1))
	}

	if b.policy.MaxDelay > 0 && delay > float64(b.policy.MaxDelay) {
		delay = float64(b.policy.MaxDelay)
	}

	if b.policy.Jitter > 0 {
		delay += delay * b.policy.Jitter * (2*rand.Float64() - 1)
	}

	return time.Duration(delay)
}

// retryable is implemented by adapter errors that know whether a retry helps.
type retryable interface {
	IsRetryable() bool
}

// ShouldRetry is the default classification: context errors stop retries,
// typed errors decide for themselves, anything else is retried.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
