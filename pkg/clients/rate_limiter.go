package clients

import (
	"context"
	"sync"
	"time"
)

// RateLimiter throttles outgoing remote calls.
type RateLimiter interface {
	// Allow reports whether a call may start now, consuming a token if so
	Allow() bool

	// Wait blocks until a call may start
	Wait(ctx context.Context) error

	// Pause holds every caller back for d, as asked by a server's Retry-After
	Pause(d time.Duration)

	GetStats() RateLimiterStats
}

// RateLimiterStats describes the limiter's current state
type RateLimiterStats struct {
	Rate            float64   `json:"rate"`
	Burst           int       `json:"burst"`
	AllowedRequests int64     `json:"allowed_requests"`
	BlockedRequests int64     `json:"blocked_requests"`
	CurrentTokens   float64   `json:"current_tokens"`
	PausedUntil     time.Time `json:"paused_until,omitempty"`
}

// TokenBucketRateLimiter refills rate tokens per second up to burst. Each
// call consumes one token. A server-directed pause empties the bucket and
// blocks refills until it expires.
type TokenBucketRateLimiter struct {
	mu sync.Mutex

	rate        float64
	burst       int
	tokens      float64
	lastRefill  time.Time
	pausedUntil time.Time
	now         func() time.Time

	allowed int64
	blocked int64
}

// NewTokenBucketRateLimiter creates a limiter allowing rate requests per
// second with at most burst requests at once.
func NewTokenBucketRateLimiter(rate float64, burst int) *TokenBucketRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketRateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow consumes a token if one is available
func (tb *TokenBucketRateLimiter) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.reserve() == 0 {
		tb.allowed++
		return true
	}
	tb.blocked++
	return false
}

// Wait blocks until a token is available or ctx is done
func (tb *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		delay := tb.reserve()
		if delay == 0 {
			tb.allowed++
			tb.mu.Unlock()
			return nil
		}
		tb.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			tb.mu.Lock()
			tb.blocked++
			tb.mu.Unlock()
			return ctx.Err()
		}
	}
}

// Pause empties the bucket and blocks callers for d. A shorter pause never
// cuts an existing one short.
func (tb *TokenBucketRateLimiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	until := tb.now().Add(d)
	if until.After(tb.pausedUntil) {
		tb.pausedUntil = until
	}
	tb.tokens = 0
	tb.lastRefill = tb.pausedUntil
}

// reserve takes a token and returns 0, or returns how long to wait for the
// next one. Callers hold mu.
func (tb *TokenBucketRateLimiter) reserve() time.Duration {
	now := tb.now()
	if now.Before(tb.pausedUntil) {
		return tb.pausedUntil.Sub(now)
	}

	if now.After(tb.lastRefill) {
		tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.rate
		if tb.tokens > float64(tb.burst) {
			tb.tokens = float64(tb.burst)
		}
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return 0
	}
	return time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
}

// GetStats returns rate limiter statistics
func (tb *TokenBucketRateLimiter) GetStats() RateLimiterStats {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	stats := RateLimiterStats{
		Rate:            tb.rate,
		Burst:           tb.burst,
		AllowedRequests: tb.allowed,
		BlockedRequests: tb.blocked,
		CurrentTokens:   tb.tokens,
	}
	if tb.now().Before(tb.pausedUntil) {
		stats.PausedUntil = tb.pausedUntil
	}
	return stats
}
