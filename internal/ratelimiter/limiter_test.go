package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AcquireRelease(t *testing.T) {
	l := New(Config{RPM: 600, Concurrent: 2, AcquireTimeout: 100 * time.Millisecond})

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, l.InFlight())

	release()
	assert.Equal(t, 0, l.InFlight())
}

func TestLimiter_ConcurrencyCeilingBlocksThenTimesOut(t *testing.T) {
	l := New(Config{RPM: 6000, Concurrent: 1, AcquireTimeout: 20 * time.Millisecond})

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestLimiter_ReleaseIsIdempotentAndConcurrencySafe(t *testing.T) {
	l := New(Config{RPM: 6000, Concurrent: 3, AcquireTimeout: 50 * time.Millisecond})

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release()
	assert.Equal(t, 0, l.InFlight())
}

func TestManager_GetOrCreateReusesLimiter(t *testing.T) {
	m := NewManager()
	a := m.GetOrCreate("openai", DefaultConfig())
	b := m.GetOrCreate("openai", Config{RPM: 1})
	assert.Same(t, a, b)
}
