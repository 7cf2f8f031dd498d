package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamscapes/gateway/internal/alerting"
)

func TestAlertStore_LoadMiss(t *testing.T) {
	_, manager := setupTestRedis(t)
	store := NewAlertStore(manager)

	_, ok, err := store.Load(context.Background(), "anthropic\x00circuit_open")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlertStore_SaveThenLoad(t *testing.T) {
	_, manager := setupTestRedis(t)
	store := NewAlertStore(manager)

	snap := alerting.AlertStateSnapshot{
		Firing:         true,
		FirstFiredAt:   time.Now().Add(-time.Minute).Truncate(time.Second),
		LastNotifiedAt: time.Now().Truncate(time.Second),
		CountInHour:    3,
		Escalated:      false,
	}

	require.NoError(t, store.Save(context.Background(), "gemini\x00provider_unhealthy", snap))

	loaded, ok, err := store.Load(context.Background(), "gemini\x00provider_unhealthy")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Firing, loaded.Firing)
	assert.Equal(t, snap.CountInHour, loaded.CountInHour)
	assert.True(t, snap.FirstFiredAt.Equal(loaded.FirstFiredAt))
}
