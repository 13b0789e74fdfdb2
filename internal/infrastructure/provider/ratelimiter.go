package provider

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 4
	defaultBurst             = 8
)

// RateLimiter bounds the request rate against the provider API with a token
// bucket. A nil RateLimiter performs no limiting.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewRateLimiter creates a rate limiter with the default provider limits.
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return NewRateLimiterWithRate(defaultRequestsPerSecond, defaultBurst, logger)
}

// NewRateLimiterWithRate creates a rate limiter with explicit limits.
func NewRateLimiterWithRate(rps float64, burst int, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// Wait blocks until a request may proceed or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
