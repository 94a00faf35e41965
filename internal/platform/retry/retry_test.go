package retry

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestDefaultPolicyScheduleDoubles(t *testing.T) {
	got := DefaultPolicy().Schedule()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if !slices.Equal(got, want) {
		t.Fatalf("schedule = %v, want %v", got, want)
	}
}

func TestDelayIsPureFunctionOfAttempt(t *testing.T) {
	policy := Policy{MaxAttempts: 6, InitialDelay: time.Second, Multiplier: 2}
	cases := map[int]time.Duration{
		0: 0,
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		5: 16 * time.Second,
	}
	for attempt, want := range cases {
		if got := policy.Delay(attempt); got != want {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestDelayRespectsMaxDelay(t *testing.T) {
	policy := Policy{MaxAttempts: 10, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 3 * time.Second}
	if got := policy.Delay(4); got != 3*time.Second {
		t.Fatalf("Delay(4) = %v, want 3s", got)
	}
}

func TestNormalizedFillsDefaults(t *testing.T) {
	got := Policy{Multiplier: 0.5}.Normalized()
	if got != DefaultPolicy() {
		t.Fatalf("normalized = %+v, want %+v", got, DefaultPolicy())
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	var retried []int

	calls := 0
	attempts, err := Do(context.Background(), DefaultPolicy(), sleep, func(attempt int, _ time.Duration, _ error) {
		retried = append(retried, attempt)
	}, func(context.Context, int) error {
		calls++
		if calls < 5 {
			return errors.New("unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if attempts != 5 {
		t.Fatalf("attempts = %d, want 5", attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if !slices.Equal(slept, want) {
		t.Fatalf("slept = %v, want %v", slept, want)
	}
	if !slices.Equal(retried, []int{1, 2, 3, 4}) {
		t.Fatalf("retried = %v", retried)
	}
}

func TestDoExhaustsPolicy(t *testing.T) {
	cause := errors.New("connection refused")
	attempts, err := Do(context.Background(), DefaultPolicy(), func(context.Context, time.Duration) error { return nil }, nil,
		func(context.Context, int) error { return cause })
	if attempts != 5 {
		t.Fatalf("attempts = %d, want 5", attempts)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected last cause in chain, got %v", err)
	}
}

func TestDoStopsWhenSleepInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	attempts, err := Do(ctx, DefaultPolicy(), func(ctx context.Context, d time.Duration) error {
		cancel()
		return SleepContext(ctx, d)
	}, nil, func(context.Context, int) error {
		calls++
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Fatalf("calls = %d attempts = %d, want 1 and 1", calls, attempts)
	}
}

func TestSleepContextReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := SleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleep error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("expected cancelled sleep to return immediately")
	}
}

func TestDoRejectsNilFunc(t *testing.T) {
	if _, err := Do(context.Background(), DefaultPolicy(), nil, nil, nil); err == nil {
		t.Fatal("expected error for nil function")
	}
}
