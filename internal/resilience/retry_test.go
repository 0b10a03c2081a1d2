package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	var calls int
	var delays []time.Duration
	err := Retry(context.Background(), RetryConfig{
		Name:    "test",
		Backoff: time.Millisecond,
		OnRetry: func(_ int, _ error, d time.Duration) { delays = append(delays, d) },
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if want := []time.Duration{time.Millisecond, 2 * time.Millisecond}; len(delays) != 2 || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	t.Parallel()

	var calls int
	err := Retry(context.Background(), RetryConfig{MaxRetries: 2, Backoff: time.Millisecond},
		func(context.Context) error {
			calls++
			return errTest
		})
	if !errors.Is(err, ErrRetriesExhausted) || !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want ErrRetriesExhausted wrapping errTest", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (first attempt + 2 retries)", calls)
	}
}

func TestRetry_Permanent(t *testing.T) {
	t.Parallel()

	var calls int
	err := Retry(context.Background(), RetryConfig{Backoff: time.Millisecond},
		func(context.Context) error {
			calls++
			return Permanent(errTest)
		})
	if !errors.Is(err, errTest) || errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want bare errTest", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	err := Retry(ctx, RetryConfig{Backoff: time.Hour}, func(context.Context) error {
		cancel()
		return errTest
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRetryConfig_Delay(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{Backoff: 1500 * time.Millisecond, MaxBackoff: 5 * time.Second}
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 1500 * time.Millisecond},
		{2, 3 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range tests {
		if got := cfg.Delay(tc.retry); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.retry, got, tc.want)
		}
	}
	if got := (RetryConfig{}).Delay(1); got != defaultBackoff {
		t.Errorf("default Delay(1) = %v, want %v", got, defaultBackoff)
	}
}
