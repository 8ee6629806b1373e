package marketdata

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	facts "settlement-recon/internal/facts/domain"
	"settlement-recon/internal/observability/metrics"
)

const (
	defaultThrottleCooldown = 30 * time.Second
	defaultFetchTimeout     = 20 * time.Second
)

// Client is the rate-limited client to the remote settlement source.
//
// It owns all rate handling: every request first blocks on the shared
// sliding-window limiter, and a throttling response from the remote service
// is absorbed with a fixed cooldown sleep and a retry of the same request.
// Callers only ever see records or a FetchError.
type Client struct {
	source   Source
	limiter  *RateLimiter
	clock    Clock
	cooldown time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientClock overrides the clock, for tests.
func WithClientClock(clock Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithThrottleCooldown overrides the cooldown slept after a throttling response.
func WithThrottleCooldown(cooldown time.Duration) ClientOption {
	return func(c *Client) {
		if cooldown > 0 {
			c.cooldown = cooldown
		}
	}
}

// WithFetchTimeout overrides the per-request timeout.
func WithFetchTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient constructs a client sharing the given limiter. One client and one
// limiter serve the whole process; the remote cap is per-credential.
func NewClient(source Source, limiter *RateLimiter, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	if source == nil {
		return nil, errors.New("marketdata: nil source")
	}
	if limiter == nil {
		return nil, errors.New("marketdata: nil rate limiter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &Client{
		source:   source,
		limiter:  limiter,
		clock:    SystemClock{},
		cooldown: defaultThrottleCooldown,
		timeout:  defaultFetchTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Fetch returns all raw records for one period. It blocks on the rate
// limiter, absorbs throttling with cooldown-and-retry, and wraps every other
// transport failure (including the per-request timeout) in a FetchError.
func (c *Client) Fetch(ctx context.Context, date facts.SettlementDate, period facts.Period) ([]RawRecord, error) {
	if date.IsZero() {
		return nil, facts.ErrInvalidDate
	}
	if !period.Valid() {
		return nil, facts.ErrInvalidPeriod
	}

	for {
		waitStart := c.clock.Now()
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, &FetchError{Date: date, Period: period, Err: err}
		}
		metrics.ObserveRateLimitWait(c.clock.Now().Sub(waitStart))

		records, err := c.doFetch(ctx, date, period)
		if err == nil {
			return records, nil
		}
		if !errors.Is(err, ErrThrottled) {
			return nil, &FetchError{Date: date, Period: period, Err: err}
		}

		metrics.IncThrottleCooldown()
		c.logger.Warn("remote throttled, cooling down",
			zap.String("date", date.Key()),
			zap.Int("period", int(period)),
			zap.Duration("cooldown", c.cooldown))
		if err := c.clock.Sleep(ctx, c.cooldown); err != nil {
			return nil, &FetchError{Date: date, Period: period, Err: err}
		}
	}
}

func (c *Client) doFetch(ctx context.Context, date facts.SettlementDate, period facts.Period) ([]RawRecord, error) {
	fetchCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := c.clock.Now()
	records, err := c.source.Records(fetchCtx, date, period)
	elapsed := c.clock.Now().Sub(started)
	if err != nil {
		metrics.ObserveFetch(metrics.ResultError, elapsed)
		return nil, err
	}
	metrics.ObserveFetch(metrics.ResultSuccess, elapsed)
	return records, nil
}
