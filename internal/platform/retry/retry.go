// Package retry implements bounded exponential-backoff retries.
//
// The delay schedule is a pure function of the attempt number and the policy;
// waiting is delegated to a Sleeper so callers and tests can swap the clock.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy describes a bounded exponential backoff schedule.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// Multiplier scales the delay after every retry.
	Multiplier float64
	// MaxDelay caps a single wait when positive.
	MaxDelay time.Duration
}

// DefaultPolicy waits 1s, 2s, 4s, 8s between five attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		Multiplier:   2,
	}
}

// Normalized fills zero or invalid fields from DefaultPolicy.
func (p Policy) Normalized() Policy {
	defaults := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaults.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaults.Multiplier
	}
	if p.MaxDelay < 0 {
		p.MaxDelay = 0
	}
	return p
}

// Delay returns the wait before retry number attempt (1-based): the wait that
// follows the attempt-th failure.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	p = p.Normalized()
	scaled := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if scaled >= float64(math.MaxInt64) {
		scaled = float64(math.MaxInt64)
	}
	delay := time.Duration(scaled)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Schedule returns every wait the policy performs between its attempts.
func (p Policy) Schedule() []time.Duration {
	p = p.Normalized()
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		delays = append(delays, p.Delay(attempt))
	}
	return delays
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real-time Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrExhausted reports that every attempt of a policy failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// RetryFunc observes a failed attempt before the wait that follows it.
type RetryFunc func(attempt int, delay time.Duration, err error)

// Do runs fn until it succeeds, the policy is exhausted, or ctx ends.
//
// It returns the number of attempts made. On exhaustion the error wraps both
// ErrExhausted and the last failure; on cancellation it wraps ctx.Err().
func Do(ctx context.Context, policy Policy, sleep Sleeper, onRetry RetryFunc, fn func(ctx context.Context, attempt int) error) (int, error) {
	if fn == nil {
		return 0, fmt.Errorf("retry function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sleep == nil {
		sleep = SleepContext
	}
	policy = policy.Normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, errors.Join(err, lastErr)
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == policy.MaxAttempts {
			break
		}
		delay := policy.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, errors.Join(err, lastErr)
		}
	}
	return policy.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, policy.MaxAttempts, lastErr)
}
