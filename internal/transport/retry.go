// Package transport sends batches of media envelopes to the Causality
// ingestion endpoint with retry, exponential backoff and client-side rate
// limiting.
package transport

import (
	"math"
	"math/rand"
	"time"
)

// RetryStrategy defines how retries are scheduled after transient failures.
type RetryStrategy interface {
	// NextDelay returns the delay before retry number attempt (0-indexed).
	// Zero means no more retries.
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the maximum number of retries.
	MaxAttempts() int
}

// ExponentialBackoff implements RetryStrategy with exponential delays, a cap
// and random jitter.
type ExponentialBackoff struct {
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay is the upper bound on a single delay.
	MaxDelay time.Duration

	// MaxRetries is the maximum number of retries.
	MaxRetries int

	// Jitter is the proportion of randomness applied to the delay (0.0 to 1.0).
	// A jitter of 0.2 varies the delay by +/- 20%.
	Jitter float64
}

// NextDelay implements RetryStrategy.
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt >= e.MaxRetries {
		return 0
	}

	delay := float64(e.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(e.MaxDelay) {
		delay = float64(e.MaxDelay)
	}

	if e.Jitter > 0 {
		jitterRange := delay * e.Jitter
		//nolint:gosec // math/rand is fine for jitter; no security requirement
		delay += jitterRange * (rand.Float64()*2 - 1)
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// MaxAttempts implements RetryStrategy.
func (e *ExponentialBackoff) MaxAttempts() int {
	return e.MaxRetries
}

// NoRetry never retries.
var NoRetry RetryStrategy = &ExponentialBackoff{}

// DefaultRetry retries up to 5 times with exponential backoff from 500ms to
// 30s and 20% jitter. Batches that still fail stay queued for the next flush.
var DefaultRetry RetryStrategy = &ExponentialBackoff{
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   30 * time.Second,
	MaxRetries: 5,
	Jitter:     0.2,
}
