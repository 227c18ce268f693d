package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Backoff returns the delay to wait after the given zero-based attempt.
type Backoff func(attempt int) time.Duration

// ExponentialBackoff waits 2^attempt seconds.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// retry calls fn up to attempts times, sleeping between failures. It gives
// up early when ctx is done.
func retry(ctx context.Context, attempts int, backoff Backoff, logger *zap.Logger, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(lastErr, context.Canceled) {
			return lastErr
		}

		logger.Warn("llm request failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr))

		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
