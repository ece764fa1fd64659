package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noJitter(initial, max time.Duration, attempts int) *Backoff {
	return NewBackoff(BackoffConfig{
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
		Jitter:       false,
	})
}

func TestBackoff_DefaultConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	if config.InitialDelay != 100*time.Millisecond {
		t.Errorf("Expected initial delay of 100ms, got %v", config.InitialDelay)
	}
	if config.MaxDelay != 30*time.Second {
		t.Errorf("Expected max delay of 30s, got %v", config.MaxDelay)
	}
	if config.MaxAttempts != 5 {
		t.Errorf("Expected max attempts of 5, got %v", config.MaxAttempts)
	}
}

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	backoff := noJitter(time.Millisecond, 10*time.Millisecond, 3)

	attempts := 0
	err := backoff.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestBackoff_FailureAfterMaxAttempts(t *testing.T) {
	backoff := noJitter(time.Millisecond, 10*time.Millisecond, 2)

	attempts := 0
	expected := errors.New("persistent error")
	err := backoff.Retry(context.Background(), func() error {
		attempts++
		return expected
	})

	if err != expected {
		t.Errorf("Expected persistent error, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestBackoff_ContextCancellation(t *testing.T) {
	backoff := noJitter(100*time.Millisecond, time.Second, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	attempts := 0
	err := backoff.Retry(ctx, func() error {
		attempts++
		return errors.New("will be cancelled")
	})

	if err != context.DeadlineExceeded {
		t.Errorf("Expected context deadline exceeded, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt before cancellation, got %d", attempts)
	}
}

func TestBackoff_ExponentialIncreaseAndCap(t *testing.T) {
	backoff := noJitter(10*time.Millisecond, 50*time.Millisecond, 10)

	expected := []time.Duration{10, 20, 40, 50, 50}
	for i, want := range expected {
		if got := backoff.GetNextDelay(i + 1); got != want*time.Millisecond {
			t.Errorf("attempt %d: expected %v, got %v", i+1, want*time.Millisecond, got)
		}
	}
}

func TestBackoff_WithPredicate_NonRetryableError(t *testing.T) {
	backoff := noJitter(time.Millisecond, 100*time.Millisecond, 3)

	attempts := 0
	nonRetryable := errors.New("no such table")
	err := backoff.RetryWithPredicate(context.Background(), func() error {
		attempts++
		return nonRetryable
	}, func(err error) bool { return err != nonRetryable })

	if err != nonRetryable {
		t.Errorf("Expected non-retryable error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected only 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       true,
	})

	for i := 0; i < 50; i++ {
		d := backoff.GetNextDelay(2)
		if d < 15*time.Millisecond || d > 25*time.Millisecond {
			t.Fatalf("Expected jittered delay within ±25%% of 20ms, got %v", d)
		}
	}
}

func TestNewBackoff_ClampsInvalidConfig(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	_ = backoff.Retry(context.Background(), func() error {
		attempts++
		return errors.New("fail")
	})

	if attempts != 1 {
		t.Errorf("Expected a zero MaxAttempts to be treated as 1, got %d attempts", attempts)
	}
}
