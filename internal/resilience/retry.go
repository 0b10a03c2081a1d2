package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default retry parameters.
const (
	defaultMaxRetries = 5
	defaultBackoff    = 1500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// ErrRetriesExhausted is returned by [Retry] once every attempt has failed.
// It wraps the last attempt's error.
var ErrRetriesExhausted = errors.New("resilience: retries exhausted")

// RetryConfig tunes [Retry].
type RetryConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxRetries is the number of retries after the first attempt.
	// Default: 5. Negative disables retrying.
	MaxRetries int

	// Backoff is the delay before the first retry. It doubles on every
	// further retry up to MaxBackoff. Default: 1.5s.
	Backoff time.Duration

	// MaxBackoff caps the delay between retries. Default: 30s.
	MaxBackoff time.Duration

	// OnRetry, if set, is called before each wait with the retry number
	// (starting at 1), the error that caused it and the upcoming delay.
	OnRetry func(retry int, err error, delay time.Duration)
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
}

// Delay returns the wait before the given retry (starting at 1).
func (c RetryConfig) Delay(retry int) time.Duration {
	c.applyDefaults()
	d := c.Backoff
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(d, c.MaxBackoff)
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. [Retry] returns the wrapped
// error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a [Permanent] error, ctx is
// done, or the retry budget is spent. On exhaustion the returned error
// matches both [ErrRetriesExhausted] and the last error from fn.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg.applyDefaults()

	var err error
	for retry := 0; ; retry++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		err = fn(ctx)
		if err == nil {
			if retry > 0 {
				slog.Info("resilience: retry succeeded", "name", cfg.Name, "retries", retry)
			}
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if retry >= cfg.MaxRetries {
			break
		}

		delay := cfg.Delay(retry + 1)
		slog.Warn("resilience: attempt failed, retrying",
			"name", cfg.Name,
			"retry", retry+1,
			"max_retries", cfg.MaxRetries,
			"backoff", delay,
			"error", err,
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(retry+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	slog.Error("resilience: giving up after max retries",
		"name", cfg.Name,
		"max_retries", cfg.MaxRetries,
		"error", err,
	)
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
}
