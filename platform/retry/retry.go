// Package retry runs an operation with quadratic backoff between attempts.
// This is part of the platform layer and contains no business logic.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"broker_portal_backend/platform/logger"
)

// Policy controls how Do retries.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool
}

// Do calls fn until it succeeds, returns a non-retryable error, or attempts run out.
// The delay before attempt n+1 is n*n*BaseDelay. The last error is wrapped so
// callers can still inspect it with errors.As.
func Do(ctx context.Context, log *logger.Logger, name string, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if log != nil {
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < p.Attempts {
			delay := time.Duration(attempt*attempt) * p.BaseDelay
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}
