package digitalocean

import (
	"context"
	"errors"
	"testing"
)

func TestRateLimiterBurstThenEmpty(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxTokens:  2,
		RefillRate: 0.001,
	})

	if !limiter.TryAcquire() {
		t.Error("first acquire should succeed")
	}
	if !limiter.TryAcquire() {
		t.Error("second acquire should succeed")
	}
	if limiter.TryAcquire() {
		t.Error("third acquire should fail, burst capacity is exhausted")
	}
}

func TestRateLimiterWaitHonorsCancelledContext(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxTokens:  1,
		RefillRate: 0.001,
	})
	limiter.TryAcquire()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestRateLimiterSlowDownReducesRefill(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxTokens:  1,
		RefillRate: 2,
	})

	limiter.SlowDown(4)
	if limiter.refillRate != 0.5 {
		t.Errorf("refill rate = %v after slowdown, want 0.5", limiter.refillRate)
	}

	limiter.Reset()
	if limiter.refillRate != DefaultRateLimiterConfig().RefillRate {
		t.Errorf("refill rate = %v after reset, want default", limiter.refillRate)
	}
}
