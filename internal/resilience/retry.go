package resilience

import (
	"context"
	"math/rand"
	"time"
)

// Backoff returns an exponential backoff duration for the provided attempt.
// Jitter is expressed as a fraction (e.g. 0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(attempt-1)
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}

// Policy controls Retry.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	Breaker     *Breaker
}

// Retry runs fn until it succeeds, attempts run out or ctx ends. Each attempt
// is gated by and reported to the breaker when one is set.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if p.Breaker != nil && !p.Breaker.Allow() {
			if lastErr == nil {
				return ErrOpenCircuit
			}
			return lastErr
		}
		lastErr = fn(ctx)
		if p.Breaker != nil {
			p.Breaker.Report(lastErr == nil)
		}
		if lastErr == nil || attempt == attempts {
			return lastErr
		}
		timer := time.NewTimer(Backoff(p.BaseBackoff, attempt, p.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
