package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestRetryPolicy_RetriesTemporary(t *testing.T) {
	calls := 0
	err := fastPolicy().Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &GatewayError{Op: "push", Temporary: true, Err: errors.New("connection reset")}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_ExhaustedBecomesPaymentFailed(t *testing.T) {
	calls := 0
	err := fastPolicy().Execute(context.Background(), func(context.Context) error {
		calls++
		return &GatewayError{Op: "push", StatusCode: 503, Temporary: true, Err: errors.New("unavailable")}
	})
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_PermanentNotRetried(t *testing.T) {
	calls := 0
	permanent := &GatewayError{Op: "push", StatusCode: 400, Err: errors.New("bad request")}
	err := fastPolicy().Execute(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_NextDelayCapped(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 500*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, time.Second, p.NextDelay(2))
	assert.Equal(t, 5*time.Second, p.NextDelay(10))
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1, MaxDelay: time.Hour}

	err := p.Execute(ctx, func(context.Context) error {
		cancel()
		return &GatewayError{Op: "push", Temporary: true, Err: errors.New("timeout")}
	})
	assert.ErrorIs(t, err, ErrPaymentFailed)
}
