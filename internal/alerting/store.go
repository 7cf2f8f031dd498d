package alerting

import (
	"context"
	"time"
)

// AlertStateSnapshot is the exported, serializable mirror of alertState,
// used at the StateStore boundary so a distributed backing store never
// needs to see the unexported bookkeeping type directly.
type AlertStateSnapshot struct {
	Firing         bool
	FirstFiredAt   time.Time
	LastNotifiedAt time.Time
	HourWindowFrom time.Time
	CountInHour    int
	Escalated      bool
}

// StateStore optionally backs Manager's suppression/escalation bookkeeping
// with a shared store, so a fleet of gateway replicas behind a load balancer
// agree on whether a given (provider, rule) alert was already notified
// recently instead of every replica independently re-firing it. The default
// Manager keeps this state in an in-process map; StateStore is additive.
type StateStore interface {
	// Load returns the last known state for key, or ok=false if unknown.
	Load(ctx context.Context, key string) (state AlertStateSnapshot, ok bool, err error)
	// Save persists state for key.
	Save(ctx context.Context, key string, state AlertStateSnapshot) error
}

func toSnapshot(st *alertState) AlertStateSnapshot {
	return AlertStateSnapshot{
		Firing:         st.firing,
		FirstFiredAt:   st.firstFiredAt,
		LastNotifiedAt: st.lastNotifiedAt,
		HourWindowFrom: st.hourWindowFrom,
		CountInHour:    st.countInHour,
		Escalated:      st.escalated,
	}
}

func fromSnapshot(snap AlertStateSnapshot) *alertState {
	return &alertState{
		firing:         snap.Firing,
		firstFiredAt:   snap.FirstFiredAt,
		lastNotifiedAt: snap.LastNotifiedAt,
		hourWindowFrom: snap.HourWindowFrom,
		countInHour:    snap.CountInHour,
		escalated:      snap.Escalated,
	}
}
