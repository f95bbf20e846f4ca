package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sahilchouksey/studymill/services/digitalocean"
)

// ExtractionClient is the abstract extraction capability: given prompts,
// return loosely structured text. The DigitalOcean inference client satisfies
// it; tests supply fakes.
type ExtractionClient interface {
	SimpleCompletion(ctx context.Context, systemPrompt, userPrompt string, options ...digitalocean.InferenceOption) (string, error)
}

// ErrProviderOverloaded marks an extraction failure as transient. Callers may
// retry; anything else fails immediately.
var ErrProviderOverloaded = errors.New("extraction provider overloaded")

const (
	// ProviderMaxAttempts caps retry attempts for one extraction call
	ProviderMaxAttempts = 3
	// providerBaseBackoff doubles each attempt: 10s, 20s, 40s
	providerBaseBackoff = 10 * time.Second
)

// IsTransientProviderError classifies an extraction error as transient
// (overload or unavailability signals) and therefore retry-eligible.
func IsTransientProviderError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProviderOverloaded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "status 429") ||
		strings.Contains(errStr, "status 500") ||
		strings.Contains(errStr, "status 502") ||
		strings.Contains(errStr, "status 503") ||
		strings.Contains(errStr, "status 504") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "unavailable") ||
		strings.Contains(errStr, "too many requests")
}

// withProviderRetry runs fn up to ProviderMaxAttempts times with exponential
// backoff (10s, 20s, 40s), retrying only on transient provider errors. Other
// error classes fail on the first attempt. onRetry, if set, is notified
// before each wait.
func withProviderRetry(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	var lastErr error

	for attempt := 1; attempt <= ProviderMaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !IsTransientProviderError(lastErr) {
			return lastErr
		}
		if attempt == ProviderMaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		backoff := providerBaseBackoff * time.Duration(1<<(attempt-1))
		log.Printf("Extraction: attempt %d/%d failed, retrying in %v: %v",
			attempt, ProviderMaxAttempts, backoff, lastErr)
		if onRetry != nil {
			onRetry(attempt, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("extraction failed after %d attempts: %w", ProviderMaxAttempts, lastErr)
}
