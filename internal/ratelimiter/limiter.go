package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// SendLimiter is a token bucket capping provider sends per second across the
// whole worker pool. Burst equals the rate so no "saved up" burst above the
// configured per-second maximum is possible.
type SendLimiter struct {
	limiter *rate.Limiter
}

// New creates a SendLimiter with ratePerSec tokens per second.
func New(ratePerSec int) *SendLimiter {
	return &SendLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// Wait blocks until the limiter grants a token.
// Called by each worker immediately before hitting the email provider.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (l *SendLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
