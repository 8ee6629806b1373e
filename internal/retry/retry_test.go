package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingClock struct {
	sleeps []time.Duration
}

func (c *recordingClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

func identityJitter(d time.Duration) time.Duration { return d }

func TestDoSucceedsFirstAttempt(t *testing.T) {
	clock := &recordingClock{}
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Second, Jitter: identityJitter, Clock: clock}

	calls := 0
	err := Do(context.Background(), policy, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Empty(t, clock.sleeps)
}

func TestDoRetriesWithExponentialBackoff(t *testing.T) {
	clock := &recordingClock{}
	policy := Policy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: time.Minute, Jitter: identityJitter, Clock: clock}

	calls := 0
	err := Do(context.Background(), policy, func(context.Context) error {
		calls++
		if calls < 4 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.sleeps)
}

func TestDoCapsDelayAtMax(t *testing.T) {
	clock := &recordingClock{}
	policy := Policy{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 3 * time.Second, Jitter: identityJitter, Clock: clock}

	err := Do(context.Background(), policy, func(context.Context) error {
		return errors.New("always")
	})
	require.Error(t, err)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second}, clock.sleeps)
}

func TestDoWrapsExhaustedAttempts(t *testing.T) {
	clock := &recordingClock{}
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Jitter: identityJitter, Clock: clock}

	cause := errors.New("broken")
	err := Do(context.Background(), policy, func(context.Context) error { return cause })
	require.Error(t, err)

	var attemptsErr *AttemptsError
	require.ErrorAs(t, err, &attemptsErr)
	require.Equal(t, 2, attemptsErr.Attempts)
	require.ErrorIs(t, err, cause)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 3, Jitter: identityJitter, Clock: &recordingClock{}}, func(context.Context) error {
		calls++
		return errors.New("never reached")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestDefaultJitterStaysWithinBounds(t *testing.T) {
	policy := Policy{}.normalized()
	for i := 0; i < 100; i++ {
		d := policy.delay(2) // base 500ms doubled to 1s before jitter
		require.GreaterOrEqual(t, d, 500*time.Millisecond)
		require.LessOrEqual(t, d, time.Second)
	}
}
