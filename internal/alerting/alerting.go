// Package alerting implements the AlertingSystem: rule evaluation
// against provider snapshots with a fire/suppress/escalate/resolve lifecycle,
// delivered through pluggable, isolated notification channels.
package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity classifies how urgently an alert needs attention.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ProviderSnapshot is the narrow view of one provider's current state that
// rules evaluate against. Producers (ProviderManager, MetricsCollector,
// HealthMonitor) shape their own state into this before calling Evaluate.
type ProviderSnapshot struct {
	Provider            string
	Health              string // "healthy" | "degraded" | "unhealthy" | "unknown"
	CircuitOpen         bool
	SuccessRate         float64
	Samples             int
	AvgLatency          time.Duration
	ConsecutiveFailures int
}

// Rule evaluates one provider snapshot and reports whether it should fire,
// along with a human-readable message describing why.
type Rule struct {
	Name     string
	Severity Severity
	Evaluate func(ProviderSnapshot) (fire bool, message string)
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "provider_unhealthy",
			Severity: SeverityCritical,
			Evaluate: func(s ProviderSnapshot) (bool, string) {
				if s.Health == "unhealthy" {
					return true, "provider reported unhealthy"
				}
				return false, ""
			},
		},
		{
			Name:     "circuit_open",
			Severity: SeverityCritical,
			Evaluate: func(s ProviderSnapshot) (bool, string) {
				if s.CircuitOpen {
					return true, "circuit breaker open"
				}
				return false, ""
			},
		},
		{
			Name:     "success_rate_degraded",
			Severity: SeverityWarning,
			Evaluate: func(s ProviderSnapshot) (bool, string) {
				if s.Samples >= 10 && s.SuccessRate < 0.9 {
					return true, "success rate below 90%"
				}
				return false, ""
			},
		},
		{
			Name:     "repeated_failures",
			Severity: SeverityWarning,
			Evaluate: func(s ProviderSnapshot) (bool, string) {
				if s.ConsecutiveFailures >= 3 {
					return true, "repeated consecutive failures"
				}
				return false, ""
			},
		},
	}
}

// Alert is one fired notification, delivered to every registered Channel.
type Alert struct {
	Provider    string
	Rule        string
	Severity    Severity
	Message     string
	FiredAt     time.Time
	Recurrences int
	Escalated   bool
}

// Channel delivers alerts to one destination (console, log, webhook).
// A Channel's failure must never block or fail the others; Manager isolates
// each Deliver call.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, alert Alert) error
}

const (
	// duplicateWindow suppresses re-firing the same (provider, rule) pair
	// within this window of its last notification.
	duplicateWindow = 5 * time.Minute
	// perHourCap bounds how many notifications a single (provider, rule)
	// pair may send within a rolling hour.
	perHourCap = 12
	// escalateAfter promotes an alert to escalated once it has recurred this
	// many times within the rolling hour.
	escalateAfter = 5
)

type alertState struct {
	firing         bool
	firstFiredAt   time.Time
	lastNotifiedAt time.Time
	hourWindowFrom time.Time
	countInHour    int
	escalated      bool
}

// maxHistory bounds the in-memory record of fired alerts that Active/Recent
// can query, the same capped-slice approach config.HotReloadManager uses for
// its change log.
const maxHistory = 1000

// Manager evaluates rules against provider snapshots on a schedule and
// delivers fired alerts through its registered channels.
type Manager struct {
	logger   *zap.Logger
	rules    []Rule
	channels []Channel
	store    StateStore

	mu      sync.Mutex
	state   map[string]*alertState // keyed by provider + "\x00" + rule name
	history []Alert
}

// SetStore attaches a distributed StateStore. Mirrors the ProviderManager /
// HealthMonitor circular-construction pattern: Manager can be built and
// start firing alerts before the store exists, then gain distributed
// suppression state once it's wired in.
func (m *Manager) SetStore(store StateStore) {
	m.mu.Lock()
	m.store = store
	m.mu.Unlock()
}

// New constructs a Manager with the given rules and delivery channels.
func New(rules []Rule, channels []Channel, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:   logger,
		rules:    rules,
		channels: channels,
		state:    make(map[string]*alertState),
	}
}

func key(provider, rule string) string { return provider + "\x00" + rule }

// Evaluate runs every rule against every snapshot, firing, suppressing,
// escalating or resolving alerts as appropriate, and delivering any fired
// alert (that passed suppression) to all channels. Safe for concurrent use.
func (m *Manager) Evaluate(ctx context.Context, snapshots []ProviderSnapshot) {
	now := time.Now()
	for _, snap := range snapshots {
		fired := make(map[string]bool, len(m.rules))
		for _, rule := range m.rules {
			fire, msg := rule.Evaluate(snap)
			fired[rule.Name] = fire
			if fire {
				m.onFire(ctx, snap.Provider, rule, msg, now)
			}
		}
		for _, rule := range m.rules {
			if !fired[rule.Name] {
				m.onResolve(snap.Provider, rule.Name, now)
			}
		}
	}
}

func (m *Manager) onFire(ctx context.Context, provider string, rule Rule, message string, now time.Time) {
	m.mu.Lock()
	k := key(provider, rule.Name)
	st, ok := m.state[k]
	store := m.store
	m.mu.Unlock()

	if !ok && store != nil {
		if snap, found, err := store.Load(ctx, k); err == nil && found {
			st = fromSnapshot(snap)
			ok = true
		} else if err != nil {
			m.logger.Warn("alert state store load failed", zap.String("key", k), zap.Error(err))
		}
	}

	m.mu.Lock()
	if existing, raced := m.state[k]; raced {
		// Another goroutine populated this key while we consulted the store.
		st, ok = existing, true
	}
	if !ok {
		st = &alertState{}
	}
	m.state[k] = st

	if st.hourWindowFrom.IsZero() || now.Sub(st.hourWindowFrom) > time.Hour {
		st.hourWindowFrom = now
		st.countInHour = 0
		st.escalated = false
	}

	wasFiring := st.firing
	st.firing = true
	if !wasFiring {
		st.firstFiredAt = now
	}

	suppressed := wasFiring && now.Sub(st.lastNotifiedAt) < duplicateWindow
	capped := st.countInHour >= perHourCap
	if suppressed || capped {
		snap := toSnapshot(st)
		m.mu.Unlock()
		if capped && !suppressed {
			m.logger.Debug("alert suppressed: per-hour cap reached",
				zap.String("provider", provider), zap.String("rule", rule.Name))
		}
		m.saveState(k, snap)
		return
	}

	st.lastNotifiedAt = now
	st.countInHour++
	escalate := !st.escalated && st.countInHour >= escalateAfter
	if escalate {
		st.escalated = true
	}
	recurrences := st.countInHour
	escalated := st.escalated
	snap := toSnapshot(st)
	m.mu.Unlock()
	m.saveState(k, snap)

	alert := Alert{
		Provider:    provider,
		Rule:        rule.Name,
		Severity:    rule.Severity,
		Message:     message,
		FiredAt:     now,
		Recurrences: recurrences,
		Escalated:   escalated,
	}
	m.recordHistory(alert)
	m.deliver(ctx, alert)

	if escalate {
		escalation := Alert{
			Provider: provider,
			Rule:     rule.Name,
			Severity: bumpSeverity(rule.Severity),
			Message: fmt.Sprintf("escalated: %s fired %d times in the last hour (%s)",
				rule.Name, recurrences, message),
			FiredAt:     now,
			Recurrences: recurrences,
			Escalated:   true,
		}
		m.recordHistory(escalation)
		m.deliver(ctx, escalation)
	}
}

// bumpSeverity returns the next severity tier up from s. Critical is already
// the top tier, so an already-critical rule escalates as a repeated
// critical alert rather than a nonexistent higher one.
func bumpSeverity(s Severity) Severity {
	if s == SeverityWarning {
		return SeverityCritical
	}
	return s
}

// recordHistory appends alert to the bounded in-memory history queried by
// Active/Recent.
func (m *Manager) recordHistory(alert Alert) {
	m.mu.Lock()
	m.history = append(m.history, alert)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.mu.Unlock()
}

// Active returns the alerts currently firing (provider, rule) pairs whose
// resolve hasn't been observed yet, most recent first.
func (m *Manager) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := make([]Alert, 0, len(m.state))
	for _, a := range m.history {
		k := key(a.Provider, a.Rule)
		if st, ok := m.state[k]; ok && st.firing && st.lastNotifiedAt.Equal(a.FiredAt) {
			active = append(active, a)
		}
	}
	reverse(active)
	return active
}

// Recent returns up to limit most-recently-fired alerts, optionally filtered
// by provider and/or severity (empty string matches any).
func (m *Manager) Recent(provider string, severity Severity, limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]Alert, 0, limit)
	for i := len(m.history) - 1; i >= 0; i-- {
		a := m.history[i]
		if provider != "" && a.Provider != provider {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		matched = append(matched, a)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched
}

func reverse(alerts []Alert) {
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}
}

// FireEvent fires a one-off alert for something outside the regular
// snapshot-rule evaluation loop — ProviderManager's allProvidersFailed, for
// instance — subject to the same suppression, per-hour cap, and escalation
// bookkeeping as a rule-driven alert keyed by (provider, eventName).
func (m *Manager) FireEvent(ctx context.Context, provider, eventName string, severity Severity, message string) {
	m.onFire(ctx, provider, Rule{Name: eventName, Severity: severity}, message, time.Now())
}

func (m *Manager) onResolve(provider, ruleName string, now time.Time) {
	m.mu.Lock()
	k := key(provider, ruleName)
	st, ok := m.state[k]
	if !ok || !st.firing {
		m.mu.Unlock()
		return
	}
	st.firing = false
	snap := toSnapshot(st)
	m.mu.Unlock()
	m.saveState(k, snap)

	m.logger.Info("alert resolved",
		zap.String("provider", provider), zap.String("rule", ruleName),
		zap.Duration("duration", now.Sub(st.firstFiredAt)))
}

// saveState best-effort persists state to the distributed store, if one is
// attached, on a timeout independent of the evaluation call's own ctx. A
// failed save never blocks or fails alert evaluation — the in-process map
// remains authoritative for this replica regardless.
func (m *Manager) saveState(key string, state AlertStateSnapshot) {
	m.mu.Lock()
	store := m.store
	m.mu.Unlock()
	if store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Save(saveCtx, key, state); err != nil {
		m.logger.Warn("alert state store save failed", zap.String("key", key), zap.Error(err))
	}
}

// deliver fans out to every channel, isolating failures so one broken
// channel never blocks or drops delivery to the others.
func (m *Manager) deliver(ctx context.Context, alert Alert) {
	var wg sync.WaitGroup
	for _, ch := range m.channels {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("alert channel panicked",
						zap.String("channel", ch.Name()), zap.Any("panic", r))
				}
			}()
			deliverCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := ch.Deliver(deliverCtx, alert); err != nil {
				m.logger.Warn("alert delivery failed",
					zap.String("channel", ch.Name()),
					zap.String("provider", alert.Provider),
					zap.String("rule", alert.Rule),
					zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// RunLoop periodically calls Evaluate with the result of source until ctx is
// canceled.
func (m *Manager) RunLoop(ctx context.Context, interval time.Duration, source func() []ProviderSnapshot) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate(ctx, source())
		}
	}
}
