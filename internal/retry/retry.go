package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"smcbot/internal/ports"
)

// Config holds retry policy parameters.
type Config struct {
	MaxAttempts int           // total attempts including the first, default 3
	MinDelay    time.Duration // first backoff delay, default 500ms
	MaxDelay    time.Duration // backoff ceiling, default 5s
}

// Retrier wraps fallible remote calls with bounded retries and exponential
// backoff with jitter. Only retryable conditions (rate limit, timeout,
// connectivity) are retried; terminal errors surface immediately.
type Retrier struct {
	cfg    Config
	logger ports.Logger
}

// New creates a retrier, applying defaults for unset config values.
func New(cfg Config, logger ports.Logger) (*Retrier, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for retrier")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	return &Retrier{cfg: cfg, logger: logger}, nil
}

// Do runs fn, retrying retryable failures up to the attempt budget. The
// context is checked between attempts so cancellation stops the loop without
// interrupting an in-flight call.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    r.cfg.MinDelay,
		Max:    r.cfg.MaxDelay,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !ports.IsRetryable(err) {
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := b.Duration()
		r.logger.Warn(ctx, "Retryable error, backing off", map[string]interface{}{
			"operation": op,
			"attempt":   attempt,
			"delay":     delay.String(),
			"error":     err.Error(),
		})
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, r.cfg.MaxAttempts, err)
}
