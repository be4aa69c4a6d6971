package payment

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryPolicy retries temporary gateway failures with exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 500ms initial delay, 2x
// multiplier and a 5s cap.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
}

// ShouldRetry reports whether attempt may be followed by another one.
// Only temporary gateway errors qualify; validation and permanent
// transport errors fail immediately.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return IsTemporary(err)
}

// NextDelay returns InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs fn until it succeeds, fails permanently or attempts run
// out. Exhausted temporary failures are wrapped in ErrPaymentFailed.
func (p *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err, attempt) {
			if IsTemporary(err) {
				return fmt.Errorf("%w after %d attempts: %v", ErrPaymentFailed, attempt, err)
			}
			return err
		}

		timer := time.NewTimer(p.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrPaymentFailed, ctx.Err())
		case <-timer.C:
		}
	}
}
