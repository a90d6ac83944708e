package workflow

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy configures automatic retries of a failed role invocation.
//
// A failed turn is retried until MaxAttempts is reached or Retryable rejects
// the error. Between attempts the coordinator sleeps for an exponentially
// growing delay with jitter:
//
//	delay = min(BaseDelay * 2^retry, MaxDelay) + jitter(0, BaseDelay)
type RetryPolicy struct {
	// MaxAttempts is the number of invocations including the first.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base of the exponential backoff. Zero retries
	// immediately.
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. Zero means no cap.
	MaxDelay time.Duration

	// Retryable reports whether an error is worth another attempt.
	// If nil, every error except cancellation of the run is retried.
	Retryable func(error) bool
}

// DefaultRetryPolicy performs a single attempt and surfaces the error.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// Validate checks the policy's constraints:
//   - MaxAttempts must be >= 1
//   - when both delays are set, MaxDelay must be >= BaseDelay
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.BaseDelay < 0 || rp.MaxDelay < 0 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (rp RetryPolicy) retryable(err error) bool {
	if rp.Retryable == nil {
		return true
	}
	return rp.Retryable(err)
}

// computeBackoff returns the delay before retry number attempt (0-based).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}

	delay := base * (1 << attempt)
	if maxDelay > 0 && (delay > maxDelay || delay <= 0) {
		delay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	return delay + jitter
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
