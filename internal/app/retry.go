package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"singbirds-quiz-service/internal/domain"
)

// RetryPolicy bounds the detail fetch for a single question. Failures are
// treated as data-quality problems, so retries are immediate.
type RetryPolicy struct {
	// MaxRetries is the number of attempts allowed after the first one.
	MaxRetries int
	// AttemptTimeout caps each attempt so a hung request still spends budget. Zero disables it.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy allows two retries with an eight second cap per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, AttemptTimeout: 8 * time.Second}
}

func (p RetryPolicy) attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// WithRetry runs op until it succeeds or the policy's attempts are used up, in
// which case the returned error wraps domain.ErrRetriesExhausted and the last
// failure. Cancellation of ctx and domain.ErrStaleFetch stop the loop early and
// are returned as-is.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	total := policy.attempts()
	for attempt := range total {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := runAttempt(ctx, policy.AttemptTimeout, attempt, op)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrStaleFetch) {
			return zero, err
		}
		// A canceled parent is not exhaustion; only attempt-level deadlines count.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, total, lastErr)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, attempt int, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx, attempt)
}
