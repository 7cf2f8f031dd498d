package circuitbreaker

import (
	"sync"

	"go.uber.org/zap"
)

// Manager owns one Breaker per provider, created lazily. There is no global
// lock across providers: the manager's own mutex only guards the registry
// map, never a dispatch decision.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	logger   *zap.Logger
}

// NewManager creates a Manager that lazily builds a Breaker per provider
// using cfg as the shared default configuration.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		logger:   logger,
	}
}

// Get returns the Breaker for provider, creating it on first use.
func (m *Manager) Get(provider string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[provider]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[provider]; ok {
		return b
	}
	b = New(provider, m.cfg, m.logger)
	m.breakers[provider] = b
	return b
}

// Snapshots returns a snapshot of every known provider's breaker state.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.breakers))
	for _, b := range m.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
