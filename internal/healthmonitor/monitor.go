// Package healthmonitor runs the passive and active health loops: deriving
// per-provider health from rolling metrics, and periodically probing
// providers directly. It depends only on narrow observer interfaces
// (MetricsSource, Prober) rather than the concrete ProviderManager, breaking
// the reference cycle a direct ProviderManager dependency would otherwise
// create.
package healthmonitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Health is the derived health state of a provider.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
	HealthUnknown   Health = "unknown"
)

// MetricsSource is the narrow read interface HealthMonitor needs from
// MetricsCollector / ProviderManager's state to compute passive health.
type MetricsSource interface {
	SuccessRateWindow(provider string) (rate float64, samples int)
	AvgLatency(provider string) time.Duration
	ConsecutiveFailures(provider string) int
	CircuitOpenDuration(provider string) time.Duration
}

// Prober performs one lightweight active probe against a provider.
type Prober interface {
	Probe(ctx context.Context, provider string) error
}

// Thresholds configures the passive classification rules.
type Thresholds struct {
	SuccessRateHealthy           float64
	SLALatency                   time.Duration
	CriticalConsecutiveFailures  int
	CircuitOpenUnhealthyMultiple float64 // unhealthy if circuit open > this × cooldown
	Cooldown                     time.Duration
	ProbeInterval                time.Duration
}

// DefaultThresholds returns the gateway's default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SuccessRateHealthy:           0.9,
		SLALatency:                   3 * time.Second,
		CriticalConsecutiveFailures:  5,
		CircuitOpenUnhealthyMultiple: 2.0,
		Cooldown:                     30 * time.Second,
		ProbeInterval:                60 * time.Second,
	}
}

// Event is emitted whenever a provider's derived health changes.
type Event struct {
	Provider string
	Previous Health
	Current  Health
	Evidence string
}

// Monitor tracks derived health per provider and runs the passive/active
// loops. All provider-keyed state is guarded by a single RWMutex — this is
// acceptable because updates are infrequent (ticker-driven), unlike the
// per-request-hot-path CircuitBreaker/RateLimiter state.
type Monitor struct {
	mu         sync.RWMutex
	health     map[string]Health
	thresholds Thresholds
	source     MetricsSource
	prober     Prober
	logger     *zap.Logger

	listenersMu sync.Mutex
	listeners   []func(Event)
}

// New constructs a Monitor.
func New(source MetricsSource, prober Prober, thresholds Thresholds, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		health:     make(map[string]Health),
		thresholds: thresholds,
		source:     source,
		prober:     prober,
		logger:     logger,
	}
}

// OnHealthChanged registers a listener invoked synchronously whenever a
// provider's health changes. Listener panics are not recovered here;
// callers that need isolation should wrap their own listener.
func (m *Monitor) OnHealthChanged(fn func(Event)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Health returns the last-derived health for provider, or HealthUnknown if
// none has been computed yet.
func (m *Monitor) Health(provider string) Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.health[provider]; ok {
		return h
	}
	return HealthUnknown
}

// EvaluatePassive recomputes provider's health from the MetricsSource and
// fires a healthChanged event if it differs from the last known value.
func (m *Monitor) EvaluatePassive(provider string) {
	rate, samples := m.source.SuccessRateWindow(provider)
	avgLatency := m.source.AvgLatency(provider)
	consecutiveFailures := m.source.ConsecutiveFailures(provider)
	circuitOpenFor := m.source.CircuitOpenDuration(provider)

	var next Health
	var evidence string
	switch {
	case consecutiveFailures >= m.thresholds.CriticalConsecutiveFailures:
		next = HealthUnhealthy
		evidence = "consecutive failures reached critical threshold"
	case m.thresholds.Cooldown > 0 && circuitOpenFor > time.Duration(m.thresholds.CircuitOpenUnhealthyMultiple*float64(m.thresholds.Cooldown)):
		next = HealthUnhealthy
		evidence = "circuit open beyond 2x cooldown"
	case samples == 0:
		next = HealthUnknown
		evidence = "no samples observed yet"
	case rate >= m.thresholds.SuccessRateHealthy && avgLatency <= m.thresholds.SLALatency:
		next = HealthHealthy
		evidence = "success rate and latency within SLA"
	default:
		next = HealthDegraded
		evidence = "success rate or latency threshold slipped"
	}

	m.transition(provider, next, evidence)
}

func (m *Monitor) transition(provider string, next Health, evidence string) {
	m.mu.Lock()
	prev, known := m.health[provider]
	if known && prev == next {
		m.mu.Unlock()
		return
	}
	m.health[provider] = next
	m.mu.Unlock()

	if !known {
		prev = HealthUnknown
	}
	m.logger.Info("provider health changed",
		zap.String("provider", provider),
		zap.String("previous", string(prev)),
		zap.String("current", string(next)),
		zap.String("evidence", evidence))

	m.listenersMu.Lock()
	listeners := append([]func(Event){}, m.listeners...)
	m.listenersMu.Unlock()
	event := Event{Provider: provider, Previous: prev, Current: next, Evidence: evidence}
	for _, fn := range listeners {
		fn(event)
	}
}

// RunPassiveLoop periodically re-evaluates every provider in `providers`
// until ctx is canceled.
func (m *Monitor) RunPassiveLoop(ctx context.Context, providers []string, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range providers {
				m.EvaluatePassive(p)
			}
		}
	}
}

// RunActiveLoop periodically probes every provider concurrently (via
// errgroup), failing individually without aborting the whole fan-out. A
// probe failure is only logged at debug level; it does not change derived
// health or any metrics.
func (m *Monitor) RunActiveLoop(ctx context.Context, providers []string) {
	interval := m.thresholds.ProbeInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx, providers)
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context, providers []string) {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		provider := p
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, 5*time.Second)
			defer cancel()
			if err := m.prober.Probe(probeCtx, provider); err != nil {
				m.logger.Debug("active probe failed",
					zap.String("provider", provider), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
