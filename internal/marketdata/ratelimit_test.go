package marketdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock advances only when a sleeper asks it to.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

func TestRateLimiterNeverExceedsCap(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(40, time.Minute, WithRateClock(clock), WithSafetyMargin(0))

	// Twice the cap: the first 40 must pass without sleeping, the rest must
	// each wait for a slot, and the in-window count must never exceed 40.
	for i := 0; i < 80; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
		require.LessOrEqual(t, limiter.InFlight(), 40, "acquire %d put the window over cap", i)
	}
	require.Greater(t, clock.sleepCount(), 0, "acquires beyond the cap must block")
}

func TestRateLimiterFirstBurstDoesNotSleep(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(5, time.Minute, WithRateClock(clock), WithSafetyMargin(0))

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}
	require.Zero(t, clock.sleepCount())
	require.Equal(t, 5, limiter.InFlight())
}

func TestRateLimiterSlotFreesAfterWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(2, time.Minute, WithRateClock(clock), WithSafetyMargin(0))

	require.NoError(t, limiter.Acquire(context.Background()))
	require.NoError(t, limiter.Acquire(context.Background()))
	require.Equal(t, 2, limiter.InFlight())

	clock.advance(time.Minute + time.Second)
	require.Equal(t, 0, limiter.InFlight())
	require.NoError(t, limiter.Acquire(context.Background()))
	require.Zero(t, clock.sleepCount())
}

func TestRateLimiterHonorsCancellation(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(1, time.Minute, WithRateClock(clock), WithSafetyMargin(0))
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, limiter.Acquire(ctx), context.Canceled)
}
