package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy configures exponential backoff. The zero value never retries.
type Policy struct {
	// MaxRetries does not count the first attempt.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool

	// Retryable decides which errors are worth another attempt. Nil retries nothing.
	Retryable func(err error) bool
	// RetryAfter lets an error impose a minimum delay.
	RetryAfter func(err error) (time.Duration, bool)
	OnRetry    func(err error, attempt int, delay time.Duration)
}

// Delay returns the backoff before retry number attempt (0-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}

	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	delay := time.Duration(d)
	if p.Jitter && delay > 0 {
		delay = time.Duration(rand.Int64N(int64(delay) + 1))
	}
	return delay
}

func (p Policy) shouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxRetries || p.Retryable == nil {
		return false
	}
	return p.Retryable(err)
}

// Do runs fn until it succeeds, returns a non-retryable error, the retries
// are used up or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if !p.shouldRetry(err, attempt) {
			return err
		}

		delay := p.Delay(attempt)
		if p.RetryAfter != nil {
			if hint, ok := p.RetryAfter(err); ok && hint > delay {
				delay = hint
			}
		}

		if p.OnRetry != nil {
			p.OnRetry(err, attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
