package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"singbirds-quiz-service/internal/app"
	"singbirds-quiz-service/internal/domain"
)

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := app.WithRetry(context.Background(), app.RetryPolicy{MaxRetries: 2}, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", domain.ErrNetwork
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("expected ok after 3 calls, got %q after %d", got, calls)
	}
}

func TestWithRetryExhausts(t *testing.T) {
	calls := 0
	_, err := app.WithRetry(context.Background(), app.RetryPolicy{MaxRetries: 2}, func(context.Context, int) (int, error) {
		calls++
		return 0, domain.ErrIdentityMismatch
	})
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if !errors.Is(err, domain.ErrIdentityMismatch) {
		t.Fatalf("expected last failure to be wrapped, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetryNegativeRetriesStillTriesOnce(t *testing.T) {
	calls := 0
	_, err := app.WithRetry(context.Background(), app.RetryPolicy{MaxRetries: -1}, func(context.Context, int) (int, error) {
		calls++
		return 0, domain.ErrNetwork
	})
	if !errors.Is(err, domain.ErrRetriesExhausted) || calls != 1 {
		t.Fatalf("expected a single failed attempt, got %d calls and %v", calls, err)
	}
}

func TestWithRetryHungAttemptConsumesBudget(t *testing.T) {
	calls := 0
	policy := app.RetryPolicy{MaxRetries: 1, AttemptTimeout: 20 * time.Millisecond}
	_, err := app.WithRetry(context.Background(), policy, func(ctx context.Context, _ int) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, domain.ErrRetriesExhausted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected exhaustion by deadline, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithRetryStopsOnStaleFetch(t *testing.T) {
	calls := 0
	_, err := app.WithRetry(context.Background(), app.RetryPolicy{MaxRetries: 5}, func(context.Context, int) (int, error) {
		calls++
		return 0, domain.ErrStaleFetch
	})
	if !errors.Is(err, domain.ErrStaleFetch) || errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected bare stale error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestWithRetryStopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := app.WithRetry(ctx, app.RetryPolicy{MaxRetries: 5}, func(context.Context, int) (int, error) {
		calls++
		cancel()
		return 0, domain.ErrNetwork
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}
