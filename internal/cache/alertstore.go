package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamscapes/gateway/internal/alerting"
)

// alertKeyPrefix namespaces alert suppression keys within whatever Redis
// database the cache Manager is pointed at, so it can be shared with other
// callers without key collisions.
const alertKeyPrefix = "gateway:alert:"

// alertStateTTL bounds how long a suppression entry survives without being
// refreshed. Generously above perHourCap's one-hour window so an active
// escalation never lapses mid-window.
const alertStateTTL = 2 * time.Hour

// AlertStore adapts Manager into alerting.StateStore, giving a fleet of
// gateway replicas a shared view of alert suppression/escalation state
// instead of each replica re-firing independently.
type AlertStore struct {
	cache *Manager
}

// NewAlertStore wraps cache in an alerting.StateStore.
func NewAlertStore(cache *Manager) *AlertStore {
	return &AlertStore{cache: cache}
}

var _ alerting.StateStore = (*AlertStore)(nil)

func (s *AlertStore) Load(ctx context.Context, key string) (alerting.AlertStateSnapshot, bool, error) {
	var snap alerting.AlertStateSnapshot
	err := s.cache.GetJSON(ctx, alertKeyPrefix+key, &snap)
	if err != nil {
		if IsCacheMiss(err) {
			return alerting.AlertStateSnapshot{}, false, nil
		}
		return alerting.AlertStateSnapshot{}, false, fmt.Errorf("load alert state: %w", err)
	}
	return snap, true, nil
}

func (s *AlertStore) Save(ctx context.Context, key string, state alerting.AlertStateSnapshot) error {
	if err := s.cache.SetJSON(ctx, alertKeyPrefix+key, state, alertStateTTL); err != nil {
		return fmt.Errorf("save alert state: %w", err)
	}
	return nil
}
