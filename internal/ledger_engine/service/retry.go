package service

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often a contended operation is re-run from scratch
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Backoff returns a full-jitter delay for the given zero-based retry:
// a uniform value in [0, min(MaxDelay, BaseDelay*2^retry)].
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	ceiling := p.BaseDelay
	for i := 0; i < retry && (p.MaxDelay <= 0 || ceiling < p.MaxDelay); i++ {
		ceiling *= 2
	}
	if p.MaxDelay > 0 && ceiling > p.MaxDelay {
		ceiling = p.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// Wait sleeps for the backoff of retry unless ctx ends first
func (p RetryPolicy) Wait(ctx context.Context, retry int) error {
	delay := p.Backoff(retry)
	if delay == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
