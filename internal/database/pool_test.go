package database

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func openTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestNewPoolManager(t *testing.T) {
	gormDB := openTestDB(t)

	logger := zap.NewNop()
	config := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)
	defer manager.Close()

	assert.NotNil(t, manager)
	assert.NotNil(t, manager.db)
	assert.NotNil(t, manager.logger)
	assert.Equal(t, config, manager.config)
}

func TestPoolManager_GetDB(t *testing.T) {
	gormDB := openTestDB(t)

	logger := zap.NewNop()
	config := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)
	defer manager.Close()

	db := manager.DB()

	assert.NotNil(t, db)
	assert.Equal(t, gormDB, db)
}

func TestPoolManager_HealthCheck(t *testing.T) {
	gormDB := openTestDB(t)

	logger := zap.NewNop()
	config := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)
	defer manager.Close()

	err = manager.Ping(context.Background())
	assert.NoError(t, err)
}

func TestPoolManager_HealthCheckAfterClose(t *testing.T) {
	gormDB := openTestDB(t)

	logger := zap.NewNop()
	config := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)
	require.NoError(t, manager.Close())

	err = manager.Ping(context.Background())
	assert.Error(t, err)
}

func TestPoolManager_GetStats(t *testing.T) {
	gormDB := openTestDB(t)

	logger := zap.NewNop()
	config := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)
	defer manager.Close()

	stats := manager.GetStats()
	assert.GreaterOrEqual(t, stats.MaxOpenConnections, 0)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.GreaterOrEqual(t, stats.InUse, 0)
	assert.GreaterOrEqual(t, stats.Idle, 0)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	gormDB := openTestDB(t)

	logger := zap.NewNop()
	config := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)
	defer manager.Close()

	called := false
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
}

func TestPoolManager_WithTransactionRollback(t *testing.T) {
	gormDB := openTestDB(t)

	logger := zap.NewNop()
	config := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)
	defer manager.Close()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})

	assert.Error(t, err)
}

func TestPoolManager_Close(t *testing.T) {
	gormDB := openTestDB(t)

	logger := zap.NewNop()
	config := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)

	err = manager.Close()
	assert.NoError(t, err)

	// Idempotent
	err = manager.Close()
	assert.NoError(t, err)
}

func TestPoolManager_StartHealthCheck(t *testing.T) {
	gormDB := openTestDB(t)

	logger := zap.NewNop()
	config := PoolConfig{
		MaxOpenConns:        10,
		MaxIdleConns:        5,
		HealthCheckInterval: 20 * time.Millisecond,
	}

	manager, err := NewPoolManager(gormDB, config, logger)
	require.NoError(t, err)
	defer manager.Close()

	time.Sleep(80 * time.Millisecond)
	// Health check loop runs in the background; reaching here without a
	// panic or data race is the assertion.
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: PoolConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 1 * time.Hour,
				ConnMaxIdleTime: 30 * time.Minute,
			},
			wantErr: false,
		},
		{
			name:    "invalid max open conns",
			config:  PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5},
			wantErr: true,
		},
		{
			name:    "invalid max idle conns",
			config:  PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0},
			wantErr: true,
		},
		{
			name:    "idle > open",
			config:  PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
