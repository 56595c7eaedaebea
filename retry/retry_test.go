package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("connection reset")

func transient(err error) bool { return errors.Is(err, errTransient) }

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		RetryIf:     transient,
	}

	result, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected %q, got %q", "ok", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("WRONGTYPE")
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		RetryIf:     transient,
	}

	_, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		return "", permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retries), got %d", calls)
	}
}

func TestDo_NilRetryIfNeverRetries(t *testing.T) {
	calls := 0
	err := Run(t.Context(), Config{MaxAttempts: 3}, func(_ context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RespectsContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	cfg := Config{
		MaxAttempts: 100,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		RetryIf:     transient,
	}

	_, err := Do(ctx, cfg, func(_ context.Context) (int, error) {
		return 0, errTransient
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestDo_MaxAttemptsExhausted(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		RetryIf:     transient,
	}

	err := Run(t.Context(), cfg, func(_ context.Context) error {
		calls++
		return errTransient
	})

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDelay_ExponentialWithCap(t *testing.T) {
	cfg := Config{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond, // capped
		500 * time.Millisecond,
	}
	for attempt, w := range want {
		if got := cfg.delay(attempt); got != w {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, w, got)
		}
	}
}

func TestDelay_UncappedDoesNotOverflow(t *testing.T) {
	cfg := Config{BaseDelay: time.Second}
	if got := cfg.delay(3); got != 8*time.Second {
		t.Fatalf("expected 8s, got %v", got)
	}
	if got := cfg.delay(200); got <= 0 {
		t.Fatalf("expected a positive delay, got %v", got)
	}
}

func TestDelay_JitterStaysInBounds(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, Jitter: 0.5}
	for range 1000 {
		got := cfg.delay(0)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("delay %v outside [50ms, 150ms]", got)
		}
	}
}
