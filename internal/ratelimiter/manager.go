package ratelimiter

import "sync"

// Manager owns one Limiter per provider, keyed by name, built lazily from a
// per-provider config supplied by the caller (provider limits come from
// config.ProviderConfig, not a single shared default).
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*Limiter)}
}

// GetOrCreate returns the Limiter for provider, constructing it from cfg on
// first use. Subsequent calls ignore cfg and return the existing instance.
func (m *Manager) GetOrCreate(provider string, cfg Config) *Limiter {
	m.mu.RLock()
	l, ok := m.limiters[provider]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limiters[provider]; ok {
		return l
	}
	l = New(cfg)
	m.limiters[provider] = l
	return l
}
