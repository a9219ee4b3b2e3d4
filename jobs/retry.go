package jobs

import (
	"context"
	"time"
)

// RetryPolicy defines retry behavior for store writes.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retry, 1 = one retry)
	MaxRetries int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// BackoffRatio multiplies the delay after each retry.
	BackoffRatio float64
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		BackoffRatio: 2.0,
	}
}

// NoRetry returns a retry policy with no retries
func NoRetry() RetryPolicy {
	return RetryPolicy{BackoffRatio: 1.0}
}

// delay returns the wait before retry number attempt (0-indexed).
func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.InitialDelay == 0 {
		return 0
	}
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.BackoffRatio
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// do runs fn until it succeeds, the retries are exhausted or ctx ends, and
// returns the last error.
func (p RetryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == p.MaxRetries {
			break
		}
		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
	return err
}
