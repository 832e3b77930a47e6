// Package retrypolicy provides retry scheduling for sinks that need to
// re-attempt a delivery (webhook, HTTP bulk) before giving up.
package retrypolicy

import (
	"math"
	"math/rand"
	"time"
)

// Strategy defines how retries are scheduled after transient failures.
type Strategy interface {
	// NextDelay returns the delay before the next retry attempt.
	// Returns 0 if no more retries should be attempted.
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the maximum number of retry attempts.
	MaxAttempts() int
}

// ExponentialBackoff implements Strategy with exponential delays, a maximum
// delay cap, and random jitter to prevent thundering herd.
type ExponentialBackoff struct {
	// BaseDelay is the initial delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay is the upper bound on retry delay.
	MaxDelay time.Duration

	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int

	// Jitter is the proportion of randomness applied to the delay (0.0 to 1.0).
	// A jitter of 0.2 means the delay varies by +/- 20%.
	Jitter float64
}

// NextDelay returns the delay for the given attempt number (0-indexed).
// Returns 0 when attempt >= MaxRetries, signaling no more retries.
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

// MaxAttempts returns the configured maximum number of retry attempts.
func (e *ExponentialBackoff) MaxAttempts() int {
	return e.MaxRetries
}

// DefaultRetry is a sensible default retry strategy for outbound sinks: up
// to 10 attempts with exponential backoff from 1s to 5m and 20% jitter.
var DefaultRetry = &ExponentialBackoff{
	BaseDelay:  1 * time.Second,
	MaxDelay:   5 * time.Minute,
	MaxRetries: 10,
	Jitter:     0.2,
}
