package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound sends. Two constraints apply because providers
// rate-limit both sustained throughput and burstiness: a per-minute ceiling
// enforced by a strictly-paced token bucket (burst 1, so no rolling
// 60-second window ever exceeds the configured limit), and a minimum pause
// between dispatch cycles. The budget is global across campaigns.
type Limiter struct {
	lim        *rate.Limiter
	batchDelay time.Duration
}

func NewLimiter(perMinute int, batchDelay time.Duration) *Limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Limiter{
		lim:        rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		batchDelay: batchDelay,
	}
}

// Wait blocks until the next send token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// PauseBetweenBatches sleeps the configured inter-batch delay, returning
// early only when ctx is done.
func (l *Limiter) PauseBetweenBatches(ctx context.Context) error {
	if l.batchDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(l.batchDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
