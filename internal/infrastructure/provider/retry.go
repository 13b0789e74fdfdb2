package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig bounds retries of provider calls. Backoff grows linearly with
// the attempt number.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryConfig returns the retry policy used for provider API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
	}
}

// Do runs op, retrying while retryable reports the error as transient, up to
// cfg.MaxAttempts attempts. Non-retryable errors are returned immediately.
func Do(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, op func(context.Context) error, retryable func(error) bool) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			return err
		}

		delay := time.Duration(attempt) * cfg.Backoff
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Provider call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
