package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestOpensAfterFailureThreshold(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
		assert.True(t, cb.IsClosed())
	}

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.True(t, cb.IsOpen())

	// While open, calls are rejected without running the function
	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	cb.Execute(ctx, ok)
	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)

	assert.True(t, cb.IsClosed())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(10*time.Millisecond),
	)
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	require.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)

	// First call after the timeout probes the dependency and closes on success
	require.NoError(t, cb.Execute(ctx, ok))
	assert.True(t, cb.IsClosed())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithTimeout(10*time.Millisecond),
	)
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	time.Sleep(20 * time.Millisecond)

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.True(t, cb.IsOpen())
}

func TestExecuteWithFallback(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	require.True(t, cb.IsOpen())

	var fallbackUsed bool
	err := cb.ExecuteWithFallback(ctx, ok, func(error) error {
		fallbackUsed = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, fallbackUsed)
}

func TestIsFailurePredicate(t *testing.T) {
	// Misses are not failures; only real errors trip the breaker
	errMiss := errors.New("cache miss")
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, errMiss) }),
	)
	ctx := context.Background()

	cb.Execute(ctx, func(context.Context) error { return errMiss })
	assert.True(t, cb.IsClosed())

	cb.Execute(ctx, fail)
	assert.True(t, cb.IsOpen())
}

func TestOnStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := New("redis-cache",
		WithFailureThreshold(1),
		WithOnStateChange(func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	cb.Execute(context.Background(), fail)

	require.Len(t, transitions, 1)
	assert.Equal(t, "closed->open", transitions[0])
}

func TestReset(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	cb.Execute(context.Background(), fail)
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.True(t, cb.IsClosed())
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestPresets(t *testing.T) {
	assert.Equal(t, "redis-cache", CacheBreaker(nil).Name())
	assert.Equal(t, "database", DatabaseBreaker(nil).Name())
}
