package cards

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetryPolicy_RetriesTransientUntilSuccess(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{Attempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, sleep: noSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 || len(delays) != 2 {
		t.Fatalf("calls=%d delays=%v", calls, delays)
	}
	if delays[0] < 50*time.Millisecond || delays[0] > 100*time.Millisecond {
		t.Fatalf("first delay %s outside [50ms,100ms]", delays[0])
	}
	if delays[1] < 100*time.Millisecond || delays[1] > 200*time.Millisecond {
		t.Fatalf("second delay %s outside [100ms,200ms]", delays[1])
	}
}

func TestRetryPolicy_DoesNotRetryOtherKinds(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{Attempts: 4, sleep: noSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), "redeem perk", func(context.Context) error {
		calls++
		return ErrPerkAlreadyClaimed
	})
	if calls != 1 || len(delays) != 0 {
		t.Fatalf("non-transient error retried: calls=%d", calls)
	}
	if !errors.Is(err, ErrPerkAlreadyClaimed) || KindOf(err) != KindConflict {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRetryPolicy_GivesUpAfterAttempts(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, sleep: noSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), "activate card", func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	if calls != 3 || len(delays) != 2 {
		t.Fatalf("calls=%d delays=%d", calls, len(delays))
	}
	if KindOf(err) != KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestRetryPolicy_BackoffIsCapped(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		d := policy.backoff(attempt)
		if d > 2*time.Second || d < 50*time.Millisecond {
			t.Fatalf("attempt %d: delay %s out of bounds", attempt, d)
		}
	}
}

func TestRetryPolicy_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{Attempts: 5, sleep: func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}}

	calls := 0
	err := policy.Do(ctx, "test", func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	if calls != 1 || err == nil {
		t.Fatalf("expected one call and an error, got calls=%d err=%v", calls, err)
	}
}
