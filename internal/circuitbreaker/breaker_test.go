package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 0.5, cfg.FailureRateThreshold)
	assert.Equal(t, 30*time.Second, cfg.Cooldown)
}

func TestBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	b := New("openai", Config{FailureThreshold: 3, Cooldown: time.Minute, WindowSize: 10}, zap.NewNop())

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State(), "circuit stays closed below threshold")

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State(), "circuit opens on the failure reaching threshold")
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreaker_TripsOnFailureRate(t *testing.T) {
	b := New("gemini", Config{FailureThreshold: 100, FailureRateThreshold: 0.5, MinSamples: 4, WindowSize: 10, Cooldown: time.Minute}, zap.NewNop())

	b.RecordSuccess()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State(), "50% failure rate over min samples trips the circuit")
}

func TestBreaker_HalfOpenAdmitsExactlyOneProbe(t *testing.T) {
	b := New("anthropic", Config{FailureThreshold: 1, Cooldown: time.Millisecond, WindowSize: 10}, zap.NewNop())

	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, b.Allow(), "first probe after cooldown is admitted")
	assert.ErrorIs(t, b.Allow(), ErrHalfOpenBusy, "a second concurrent probe is refused")

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State(), "a successful probe closes the circuit")
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("anthropic", Config{FailureThreshold: 1, Cooldown: time.Millisecond, WindowSize: 10}, zap.NewNop())

	require.NoError(t, b.Allow())
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := New("openai", Config{FailureThreshold: 5, Cooldown: time.Minute, WindowSize: 10}, zap.NewNop())

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	snap := b.Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveFailures)
}

func TestManager_LazilyCreatesPerProviderBreakers(t *testing.T) {
	m := NewManager(DefaultConfig(), zap.NewNop())

	a := m.Get("openai")
	b := m.Get("openai")
	assert.Same(t, a, b, "same provider returns the same breaker instance")

	c := m.Get("anthropic")
	assert.NotSame(t, a, c)

	assert.Len(t, m.Snapshots(), 2)
}
