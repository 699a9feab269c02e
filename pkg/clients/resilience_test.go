package clients

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/errors"
)

func TestRetryPolicy_Execute(t *testing.T) {
	transient := errors.New(errors.ErrorTypeTimeout, "slow")
	permanent := errors.New(errors.ErrorTypePlanning, "bad")

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   bool
	}{
		{"first attempt succeeds", nil, 1, false},
		{"recovers after transient failures", []error{transient, transient}, 3, false},
		{"permanent error stops immediately", []error{permanent}, 1, true},
		{"budget exhausted", []error{transient, transient, transient, transient}, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := NewRetryPolicy(3, time.Millisecond, time.Millisecond, 2)
			var retried []int
			rp.OnRetry = func(attempt int, _ time.Duration, _ error) {
				retried = append(retried, attempt)
			}

			calls := 0
			err := rp.Execute(context.Background(), func(attempt int) error {
				assert.Equal(t, calls, attempt)
				calls++
				if attempt < len(tt.failures) {
					return tt.failures[attempt]
				}
				return nil
			}, errors.IsRetryable)

			assert.Equal(t, tt.wantCalls, calls)
			assert.Len(t, retried, tt.wantCalls-1)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRetryPolicy_ExhaustedMessage(t *testing.T) {
	rp := NewRetryPolicy(1, time.Millisecond, time.Millisecond, 1)
	err := rp.Execute(context.Background(), func(int) error {
		return errors.New(errors.ErrorTypeConnection, "reset")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, "all 2 attempts failed: connection: reset", err.Error())
}

func TestRetryPolicy_Cancelled(t *testing.T) {
	rp := NewRetryPolicy(5, time.Hour, time.Hour, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rp.Execute(ctx, func(int) error {
		return errors.New(errors.ErrorTypeTimeout, "slow")
	}, errors.IsRetryable)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy_Delay(t *testing.T) {
	rp := NewRetryPolicy(5, 100*time.Millisecond, 500*time.Millisecond, 2)
	assert.Equal(t, 100*time.Millisecond, rp.Delay(0))
	assert.Equal(t, 200*time.Millisecond, rp.Delay(1))
	assert.Equal(t, 400*time.Millisecond, rp.Delay(2))
	assert.Equal(t, 500*time.Millisecond, rp.Delay(3))

	for i := 0; i < 20; i++ {
		d := rp.calculateDelay(1)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		Timeout:          10 * time.Second,
	}, zap.NewNop())
	cb.now = func() time.Time { return now }

	assert.Equal(t, StateClosed, cb.State())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(11 * time.Second)
	assert.True(t, cb.Allow(), "one trial call after the timeout")
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one trial call at a time")

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(11 * time.Second)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitState_String(t *testing.T) {
	for state, want := range map[CircuitState]string{
		StateClosed:      "closed",
		StateOpen:        "open",
		StateHalfOpen:    "half_open",
		CircuitState(42): "unknown",
	} {
		assert.Equal(t, want, state.String(), fmt.Sprint(int32(state)))
	}
}

func TestTokenBucketRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tb := NewTokenBucketRateLimiter(2, 2)
	tb.now = func() time.Time { return now }
	tb.lastRefill = now

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	stats := tb.GetStats()
	assert.Equal(t, int64(3), stats.AllowedRequests)
	assert.Equal(t, int64(2), stats.BlockedRequests)
	assert.Equal(t, 2, stats.Burst)
}

func TestTokenBucketRateLimiter_Pause(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tb := NewTokenBucketRateLimiter(2, 2)
	tb.now = func() time.Time { return now }
	tb.lastRefill = now

	tb.Pause(2 * time.Second)
	tb.Pause(time.Second)
	assert.False(t, tb.Allow())
	assert.Equal(t, now.Add(2*time.Second), tb.GetStats().PausedUntil)

	now = now.Add(time.Second)
	assert.False(t, tb.Allow())

	// refills restart when the pause ends
	now = now.Add(1500 * time.Millisecond)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
	assert.True(t, tb.GetStats().PausedUntil.IsZero())
}

func TestTokenBucketRateLimiter_WaitHonoursContext(t *testing.T) {
	tb := NewTokenBucketRateLimiter(0.001, 1)
	require.NoError(t, tb.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
