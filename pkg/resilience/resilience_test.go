package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errBackend  = errors.New("index read failed")
	errNotFound = errors.New("document not found")
)

func fail() error    { return errBackend }
func succeed() error { return nil }

func clocked(cb *CircuitBreaker) *time.Time {
	now := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return now }
	return &now
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("geonames", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)
	assert.Equal(t, 2, cb.Counts().ConsecutiveFailures)
}

func TestCircuitBreakerSuccessResetsStreak(t *testing.T) {
	cb := NewCircuitBreaker("geonames", CircuitBreakerConfig{FailureThreshold: 2})
	_ = cb.Execute(fail)
	require.NoError(t, cb.Execute(succeed))
	_ = cb.Execute(fail)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("usgs", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})
	now := clocked(cb)
	_ = cb.Execute(fail)
	require.Equal(t, StateOpen, cb.GetState())

	*now = now.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)

	*now = now.Add(31 * time.Second)
	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("usgs", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	now := clocked(cb)
	_ = cb.Execute(fail)
	*now = now.Add(time.Minute)
	_ = cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, *now, cb.Counts().OpenedAt)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.Counts().ConsecutiveFailures)
}

func TestCircuitBreakerHalfOpenLimitsProbes(t *testing.T) {
	cb := NewCircuitBreaker("usgs", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	now := clocked(cb)
	_ = cb.Execute(fail)
	*now = now.Add(time.Minute)

	release := make(chan struct{})
	done := make(chan error)
	go func() { done <- cb.Execute(func() error { <-release; return nil }) }()
	assert.Eventually(t, func() bool { return cb.GetState() == StateHalfOpen }, time.Second, time.Millisecond)

	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerIgnoresAnswers(t *testing.T) {
	cb := NewCircuitBreaker("geonames", CircuitBreakerConfig{
		FailureThreshold: 1,
		Ignore:           func(err error) bool { return errors.Is(err, errNotFound) },
	})
	for range 3 {
		assert.ErrorIs(t, cb.Execute(func() error { return errNotFound }), errNotFound)
	}
	assert.Equal(t, StateClosed, cb.GetState())
	_ = cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	err := Retry(context.Background(), "connect", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		if calls.Add(1) < 3 {
			return errBackend
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	err = Retry(context.Background(), "connect", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		calls.Add(1)
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, errNotFound) },
	}
	err := Retry(context.Background(), "connect", cfg, func() error {
		calls.Add(1)
		return errNotFound
	})
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "connect", RetryConfig{MaxAttempts: 5}, fail)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}.withDefaults()
	for attempt := 1; attempt <= 10; attempt++ {
		d := cfg.delay(attempt)
		assert.GreaterOrEqual(t, d, cfg.InitialDelay)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
	}
	assert.InDelta(t, float64(400*time.Millisecond), float64(cfg.delay(3)), float64(40*time.Millisecond))
}

func TestCall(t *testing.T) {
	_, err := Call(context.Background(), 10*time.Millisecond, "search", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = Call(context.Background(), time.Second, "search", func(context.Context) (int, error) { return 0, errBackend })
	assert.ErrorIs(t, err, errBackend)

	v, err := Call(context.Background(), 0, "search", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Call(ctx, time.Second, "search", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
