// Package ratelimit throttles the local dashboard per client IP with
// in-memory token buckets.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	PerMinute       int           // sustained requests per minute per IP; 0 disables limiting
	BurstMultiplier int           // burst capacity as a multiple of PerMinute
	IdleTimeout     time.Duration // buckets unused this long are dropped
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		PerMinute:       60,
		BurstMultiplier: 1,
		IdleTimeout:     10 * time.Minute,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Metrics receives block notifications
type Metrics interface {
	IncrementRateLimitIPBlock()
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	config  Config
	metrics Metrics
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a rate limiter; metrics may be nil
func NewRateLimiter(config Config, metrics Metrics) *RateLimiter {
	if config.BurstMultiplier <= 0 {
		config.BurstMultiplier = 1
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 10 * time.Minute
	}
	return &RateLimiter{
		config:  config,
		metrics: metrics,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Enabled reports whether requests are limited at all
func (rl *RateLimiter) Enabled() bool {
	return rl.config.PerMinute > 0
}

// Allow consumes one token for key
func (rl *RateLimiter) Allow(key string) Result {
	if !rl.Enabled() {
		return Result{Allowed: true}
	}

	now := rl.now()
	burst := rl.config.PerMinute * rl.config.BurstMultiplier

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(rl.config.PerMinute)/60), burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	res := Result{Limit: rl.config.PerMinute}

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitIPBlock()
		}
		return res
	}

	res.Allowed = true
	if remaining := int(b.limiter.TokensAt(now)); remaining > 0 {
		res.Remaining = remaining
	}
	return res
}

// Cleanup drops buckets idle longer than the configured timeout
func (rl *RateLimiter) Cleanup() int {
	cutoff := rl.now().Add(-rl.config.IdleTimeout)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Cleanup(); n > 0 {
				slog.Debug("Dropped idle rate limit buckets", "count", n)
			}
		}
	}
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"enabled":        rl.Enabled(),
		"per_minute":     rl.config.PerMinute,
		"active_buckets": len(rl.buckets),
	}
}
