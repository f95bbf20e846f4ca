package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransientProviderError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrProviderOverloaded, true},
		{fmt.Errorf("call failed: %w", ErrProviderOverloaded), true},
		{errors.New("inference request failed with status 429"), true},
		{errors.New("inference request failed with status 500"), true},
		{errors.New("inference request failed with status 503"), true},
		{errors.New("Rate limit exceeded for model"), true},
		{errors.New("the model is currently overloaded"), true},
		{errors.New("service temporarily unavailable"), true},
		{errors.New("Too Many Requests"), true},
		{errors.New("inference request failed with status 401"), false},
		{errors.New("invalid api key"), false},
		{errors.New("context deadline exceeded"), false},
	}

	for _, tc := range cases {
		if got := IsTransientProviderError(tc.err); got != tc.want {
			t.Errorf("IsTransientProviderError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestWithProviderRetryNonTransientFailsImmediately(t *testing.T) {
	calls := 0
	err := withProviderRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("invalid api key")
	}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestWithProviderRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := withProviderRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestWithProviderRetryHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withProviderRetry(ctx, func(ctx context.Context) error {
		return ErrProviderOverloaded
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
