package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker() *Breaker {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	b := NewBreaker(logger)
	b.resetTimeout = 20 * time.Millisecond
	return b
}

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := b.Execute(ctx, func() error { return nil })
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker()
	ctx := context.Background()
	boom := errors.New("connection refused")

	for i := 0; i < b.maxFailures; i++ {
		err := b.Execute(ctx, func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, b.State())

	// Open circuit fails fast without invoking the call
	called := false
	err := b.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, called)
}

func TestBreaker_DomainErrorsDoNotTrip(t *testing.T) {
	b := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < b.maxFailures*2; i++ {
		err := b.Execute(ctx, func() error { return ErrNotFound })
		require.ErrorIs(t, err, ErrNotFound)
	}

	assert.Equal(t, StateClosed, b.State())

	for i := 0; i < b.maxFailures*2; i++ {
		err := b.Execute(ctx, func() error { return ErrVersionConflict })
		require.ErrorIs(t, err, ErrVersionConflict)
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	b := newTestBreaker()
	ctx := context.Background()
	boom := errors.New("timeout")

	for i := 0; i < b.maxFailures-1; i++ {
		_ = b.Execute(ctx, func() error { return boom })
	}
	require.NoError(t, b.Execute(ctx, func() error { return nil }))

	// The streak restarted, so maxFailures-1 more failures stay closed
	for i := 0; i < b.maxFailures-1; i++ {
		_ = b.Execute(ctx, func() error { return boom })
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	b := newTestBreaker()
	ctx := context.Background()
	boom := errors.New("throttled")

	for i := 0; i < b.maxFailures; i++ {
		_ = b.Execute(ctx, func() error { return boom })
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(b.resetTimeout + 5*time.Millisecond)

	for i := 0; i < b.halfOpenSuccesses; i++ {
		err := b.Execute(ctx, func() error { return nil })
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker()
	ctx := context.Background()
	boom := errors.New("still down")

	for i := 0; i < b.maxFailures; i++ {
		_ = b.Execute(ctx, func() error { return boom })
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(b.resetTimeout + 5*time.Millisecond)

	err := b.Execute(ctx, func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateOpen, b.State())

	// Immediately back to failing fast
	err = b.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBreaker_Stats(t *testing.T) {
	b := newTestBreaker()
	ctx := context.Background()

	_ = b.Execute(ctx, func() error { return nil })
	stats := b.Stats()

	assert.Equal(t, "CLOSED", stats["state"])
	assert.Equal(t, b.maxFailures, stats["max_failures"])
}
