package digitalocean

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket limiter for inference API requests. It keeps
// parallel pipeline workers from triggering 429 responses.
type RateLimiter struct {
	mu sync.Mutex

	tokens         float64
	maxTokens      float64
	refillRate     float64 // Tokens added per second
	lastRefillTime time.Time
	minInterval    time.Duration
}

// RateLimiterConfig holds configuration for the rate limiter
type RateLimiterConfig struct {
	MaxTokens   float64       // Max burst capacity (default: 5)
	RefillRate  float64       // Tokens per second (default: 0.5)
	MinInterval time.Duration // Minimum time between requests (default: 500ms)
}

// DefaultRateLimiterConfig returns conservative defaults for the inference API
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxTokens:   5,
		RefillRate:  0.5,
		MinInterval: 500 * time.Millisecond,
	}
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 5
	}
	if config.RefillRate <= 0 {
		config.RefillRate = 0.5
	}
	return &RateLimiter{
		tokens:         config.MaxTokens,
		maxTokens:      config.MaxTokens,
		refillRate:     config.RefillRate,
		lastRefillTime: time.Now(),
		minInterval:    config.MinInterval,
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refillTokens()

		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.minInterval):
				return nil
			}
		}

		waitTime := time.Duration(float64(time.Second) / r.refillRate)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// TryAcquire acquires a token without blocking. Returns false when the bucket
// is empty.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refillTokens()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// SlowDown temporarily reduces the refill rate after a 429 response.
func (r *RateLimiter) SlowDown(multiplier float64) {
	if multiplier <= 1 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refillRate = r.refillRate / multiplier
}

// Reset restores the default refill rate.
func (r *RateLimiter) Reset() {
	config := DefaultRateLimiterConfig()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refillRate = config.RefillRate
	r.minInterval = config.MinInterval
}

// refillTokens adds tokens based on elapsed time (lock must be held)
func (r *RateLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefillTime).Seconds()
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefillTime = now
}
