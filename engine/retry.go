/*
retry.go - Bounded exponential backoff

Used only around long operator-triggered bulk loads; the recurring jobs
rely on the next tick instead of retrying in place.
*/
package engine

import (
	"context"
	"log"
	"time"
)

// RetryWithBackoff runs fn up to attempts times, sleeping
// baseDelay * 2^n between tries. Returns the last error when all
// attempts fail, or the context error when cancelled mid-wait.
func RetryWithBackoff(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		delay := baseDelay << uint(i)
		log.Printf("[Engine] Attempt %d/%d failed (%v), retrying in %s", i+1, attempts, lastErr, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
