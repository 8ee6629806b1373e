package marketdata

import (
	"context"
	"sync"
	"time"
)

const (
	defaultRateCap      = 40
	defaultRateWindow   = time.Minute
	defaultSafetyMargin = 250 * time.Millisecond
)

// RateLimiter enforces a sliding-window cap on outgoing requests.
//
// The remote cap is per-credential, so exactly one limiter instance is shared
// by every fetching collaborator in the process. The request log is a fixed
// ring buffer of capacity cap: timestamps older than the window are pruned on
// each acquire, and when the window is full the caller blocks until the oldest
// stamp exits the window plus a small safety margin. Blocking is the contract;
// Acquire never fails for rate reasons, only on context cancellation.
type RateLimiter struct {
	mu     sync.Mutex
	clock  Clock
	cap    int
	window time.Duration
	margin time.Duration

	stamps []time.Time
	head   int
	size   int
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateClock overrides the clock, for tests.
func WithRateClock(clock Clock) RateLimiterOption {
	return func(l *RateLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithSafetyMargin overrides the post-window safety margin.
func WithSafetyMargin(margin time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		if margin >= 0 {
			l.margin = margin
		}
	}
}

// NewRateLimiter constructs a limiter allowing cap requests per window.
func NewRateLimiter(cap int, window time.Duration, opts ...RateLimiterOption) *RateLimiter {
	if cap <= 0 {
		cap = defaultRateCap
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	limiter := &RateLimiter{
		clock:  SystemClock{},
		cap:    cap,
		window: window,
		margin: defaultSafetyMargin,
		stamps: make([]time.Time, cap),
	}
	for _, opt := range opts {
		opt(limiter)
	}
	return limiter
}

// Acquire blocks until a request slot is free, then records the request
// timestamp. Returns only the context error, never a rate error.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.clock.Now()
		l.prune(now)
		if l.size < l.cap {
			l.record(now)
			l.mu.Unlock()
			return nil
		}
		oldest := l.stamps[l.head]
		wait := oldest.Add(l.window + l.margin).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InFlight reports how many requests are currently inside the window.
func (l *RateLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clock.Now())
	return l.size
}

// prune drops stamps older than the window. Caller holds the lock.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	for l.size > 0 && !l.stamps[l.head].After(cutoff) {
		l.head = (l.head + 1) % l.cap
		l.size--
	}
}

// record appends a stamp to the ring. Caller holds the lock and has already
// checked size < cap.
func (l *RateLimiter) record(now time.Time) {
	tail := (l.head + l.size) % l.cap
	l.stamps[tail] = now
	l.size++
}
