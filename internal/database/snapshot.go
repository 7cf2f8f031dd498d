package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProviderSnapshotRecord is one provider's point-in-time state, as persisted
// by SnapshotStore. It mirrors alerting.ProviderSnapshot, not
// types.ProviderDescriptor: this is a restart-continuity convenience, never
// the durable request history excluded by this gateway's non-goals.
type ProviderSnapshotRecord struct {
	Provider            string `gorm:"primaryKey"`
	Health              string
	CircuitOpen         bool
	SuccessRate         float64
	Samples             int
	AvgLatencyMS        int64
	ConsecutiveFailures int
	CapturedAt          time.Time
}

// AlertRecord is one fired alert, as persisted by SnapshotStore for the
// dashboard's recent-alerts view to survive a process restart.
type AlertRecord struct {
	ID          uint `gorm:"primaryKey"`
	Provider    string
	Rule        string
	Severity    string
	Message     string
	FiredAt     time.Time
	Recurrences int
	Escalated   bool
}

// SnapshotStore persists periodic gauge snapshots of provider state and
// recent alerts to a SQLite-backed GORM database, so a restarted gateway can
// repopulate its dashboard and alert history instead of starting blank. It
// is not a system of record: every row is expendable and gets overwritten on
// the next snapshot cycle.
type SnapshotStore struct {
	pool   *PoolManager
	logger *zap.Logger
}

// NewSnapshotStore migrates the snapshot schema and returns a SnapshotStore
// backed by pool.
func NewSnapshotStore(pool *PoolManager, logger *zap.Logger) (*SnapshotStore, error) {
	if err := pool.DB().AutoMigrate(&ProviderSnapshotRecord{}, &AlertRecord{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot schema: %w", err)
	}
	return &SnapshotStore{pool: pool, logger: logger.With(zap.String("component", "snapshot_store"))}, nil
}

// SaveProviders overwrites the persisted provider snapshot table with
// records, replacing whatever was captured on the previous cycle.
func (s *SnapshotStore) SaveProviders(ctx context.Context, records []ProviderSnapshotRecord) error {
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM provider_snapshot_records").Error; err != nil {
			return fmt.Errorf("clear provider snapshots: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("insert provider snapshots: %w", err)
		}
		return nil
	})
}

// SaveAlerts overwrites the persisted alert history with the most recent
// keep of records, mirroring alerting.Manager's own bounded in-memory
// history (maxHistory) rather than accumulating forever.
func (s *SnapshotStore) SaveAlerts(ctx context.Context, records []AlertRecord, keep int) error {
	if keep > 0 && len(records) > keep {
		records = records[len(records)-keep:]
	}
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM alert_records").Error; err != nil {
			return fmt.Errorf("clear alert records: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		for i := range records {
			records[i].ID = 0
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("insert alert records: %w", err)
		}
		return nil
	})
}

// LoadProviders returns every persisted provider snapshot, most recently
// captured first.
func (s *SnapshotStore) LoadProviders(ctx context.Context) ([]ProviderSnapshotRecord, error) {
	var records []ProviderSnapshotRecord
	if err := s.pool.DB().WithContext(ctx).Order("captured_at desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load provider snapshots: %w", err)
	}
	return records, nil
}

// LoadRecentAlerts returns up to limit most-recently-fired persisted alerts.
func (s *SnapshotStore) LoadRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	var records []AlertRecord
	q := s.pool.DB().WithContext(ctx).Order("fired_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load recent alerts: %w", err)
	}
	return records, nil
}

// RunSnapshotLoop periodically captures providers() and recentAlerts() into
// the store until ctx is canceled. A failed cycle is logged and skipped
// rather than aborting the loop, matching the best-effort nature of a
// restart-continuity convenience.
func (s *SnapshotStore) RunSnapshotLoop(
	ctx context.Context,
	interval time.Duration,
	providers func() []ProviderSnapshotRecord,
	recentAlerts func() []AlertRecord,
) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SaveProviders(ctx, providers()); err != nil {
				s.logger.Warn("snapshot cycle: provider save failed", zap.Error(err))
			}
			if err := s.SaveAlerts(ctx, recentAlerts(), 1000); err != nil {
				s.logger.Warn("snapshot cycle: alert save failed", zap.Error(err))
			}
		}
	}
}
