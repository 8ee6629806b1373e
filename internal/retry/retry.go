// Package retry provides the single retry/backoff policy shared by the
// reconciliation engine, replacing per-call-site retry loops.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts = 4
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
)

// Clock abstracts sleeping so tests can run without real delays.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy describes exponential backoff with jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter perturbs a computed delay. Defaults to uniform jitter in
	// [d/2, d]. Inject a deterministic function in tests.
	Jitter func(d time.Duration) time.Duration
	// Clock defaults to real sleeping.
	Clock Clock
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Jitter == nil {
		p.Jitter = func(d time.Duration) time.Duration {
			half := d / 2
			return half + time.Duration(rand.Int63n(int64(half)+1))
		}
	}
	if p.Clock == nil {
		p.Clock = systemClock{}
	}
	return p
}

// delay computes the backoff before the given 1-based retry attempt.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt-1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return p.Jitter(d)
}

// AttemptsError reports an operation that kept failing through every attempt.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("retry: failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the final attempt's error.
func (e *AttemptsError) Unwrap() error { return e.Err }

// Do runs op under the policy, sleeping with backoff and jitter between
// attempts. It stops early on context cancellation and wraps the final error
// in an AttemptsError once attempts are exhausted.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if err := policy.Clock.Sleep(ctx, policy.delay(attempt)); err != nil {
			return err
		}
	}
	return &AttemptsError{Attempts: policy.MaxAttempts, Err: lastErr}
}
