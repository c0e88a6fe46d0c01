package async

import (
	"context"
	"time"

	"github.com/speechflow/speechflow/errs"
)

// RetryConfig bounds a transform-local retry loop for transient failures:
// exponential backoff doubling from BaseDelay, capped at MaxDelay, giving
// up after MaxAttempts.
type RetryConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultRetryConfig is the policy remote-call transforms use unless a
// caller overrides it.
var DefaultRetryConfig = RetryConfig{
	BaseDelay:   1 * time.Second,
	MaxDelay:    5 * time.Second,
	MaxAttempts: 10,
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c = DefaultRetryConfig
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	return c
}

// Retry runs action, retrying with exponential backoff (doubling from
// BaseDelay, capped at MaxDelay) only when the returned error normalizes to
// an *errs.Error of Kind Transient. Any other kind, or exhausting
// MaxAttempts, returns the error immediately — matching the propagation
// policy that only known-retriable kinds are retried locally and everything
// else surfaces to the caller. A cancelled ctx aborts the wait between
// attempts and returns ctx's error.
func Retry(ctx context.Context, cfg RetryConfig, desc string, action Action) error {
	cfg = cfg.withDefaults()
	delay := cfg.BaseDelay

	var last error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := action()
		if err == nil {
			return nil
		}
		wrapped := errs.Ensure(err, desc)
		last = wrapped

		if wrapped.Kind != errs.Transient || attempt == cfg.MaxAttempts {
			return wrapped
		}
		if sleepErr := Sleep(ctx, delay); sleepErr != nil {
			return errs.Ensure(sleepErr, desc)
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return last
}
