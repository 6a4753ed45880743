package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"))
	})
	require.Error(t, err)
	assert.Equal(t, "always fails", err.Error())
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return errors.New("relation does not exist")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := fastRetry(10)
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	sentinel := errors.New("retry me")
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, sentinel) }

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("temporary"))
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoVal_ReturnsValueOnSuccess(t *testing.T) {
	var calls int
	v, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("temporary"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestDoVal_ReturnsZeroOnFailure(t *testing.T) {
	v, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (int, error) {
		return 42, errors.New("permanent")
	})
	require.Error(t, err)
	assert.Zero(t, v)
}

func TestApplyDefaults(t *testing.T) {
	got := applyDefaults(RetryConfig{JitterFraction: -1})
	def := DefaultRetryConfig()
	assert.Equal(t, def.MaxAttempts, got.MaxAttempts)
	assert.Equal(t, def.InitialBackoff, got.InitialBackoff)
	assert.Equal(t, def.MaxBackoff, got.MaxBackoff)
	assert.Equal(t, def.Multiplier, got.Multiplier)
	assert.Zero(t, got.JitterFraction)
}

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 10 * time.Second, Multiplier: 2.0}
	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(2, cfg))
}

func TestComputeBackoff_CapsAtMax(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, Multiplier: 10}
	assert.Equal(t, 3*time.Second, computeBackoff(4, cfg))
}

func TestComputeBackoff_WithJitter(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 2.0, JitterFraction: 0.5}
	for range 50 {
		d := computeBackoff(0, cfg)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestRetryLogger(t *testing.T) {
	fn := RetryLogger("postgres", "get")
	require.NotNil(t, fn)
	assert.NotPanics(t, func() { fn(1, errors.New("boom")) })
}
