package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openSnapshotTestStore(t *testing.T) *SnapshotStore {
	gormDB := openTestDB(t)
	pool, err := NewPoolManager(gormDB, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	store, err := NewSnapshotStore(pool, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestSnapshotStore_SaveAndLoadProviders(t *testing.T) {
	store := openSnapshotTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	records := []ProviderSnapshotRecord{
		{Provider: "anthropic", Health: "healthy", SuccessRate: 0.99, Samples: 40, CapturedAt: now},
		{Provider: "gemini", Health: "degraded", SuccessRate: 0.7, Samples: 30, CapturedAt: now},
	}

	require.NoError(t, store.SaveProviders(ctx, records))

	loaded, err := store.LoadProviders(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestSnapshotStore_SaveProvidersOverwritesPreviousCycle(t *testing.T) {
	store := openSnapshotTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProviders(ctx, []ProviderSnapshotRecord{
		{Provider: "anthropic", Health: "healthy", CapturedAt: time.Now()},
		{Provider: "gemini", Health: "healthy", CapturedAt: time.Now()},
	}))
	require.NoError(t, store.SaveProviders(ctx, []ProviderSnapshotRecord{
		{Provider: "anthropic", Health: "unhealthy", CapturedAt: time.Now()},
	}))

	loaded, err := store.LoadProviders(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "unhealthy", loaded[0].Health)
}

func TestSnapshotStore_SaveAlertsTrimsToKeep(t *testing.T) {
	store := openSnapshotTestStore(t)
	ctx := context.Background()

	records := make([]AlertRecord, 0, 5)
	for i := 0; i < 5; i++ {
		records = append(records, AlertRecord{
			Provider: "anthropic",
			Rule:     "provider_unhealthy",
			Severity: "critical",
			FiredAt:  time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	require.NoError(t, store.SaveAlerts(ctx, records, 3))

	loaded, err := store.LoadRecentAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestSnapshotStore_RunSnapshotLoopSkipsFailedCycleWithoutAborting(t *testing.T) {
	store := openSnapshotTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	var calls int
	store.RunSnapshotLoop(ctx, 15*time.Millisecond,
		func() []ProviderSnapshotRecord {
			calls++
			return nil
		},
		func() []AlertRecord { return nil },
	)

	assert.GreaterOrEqual(t, calls, 1)
}

// TestNewSnapshotStore_MigrateFailure exercises the AutoMigrate error path
// by migrating against a pool whose underlying connection has already been
// closed.
func TestNewSnapshotStore_MigrateFailure(t *testing.T) {
	gormDB := openTestDB(t)
	pool, err := NewPoolManager(gormDB, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	_, err = NewSnapshotStore(pool, zap.NewNop())
	assert.Error(t, err)
}
