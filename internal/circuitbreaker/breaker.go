// Package circuitbreaker implements the per-provider three-state circuit
// breaker: closed, open, half-open.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the three circuit states for a provider.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned by Allow when the circuit is open and cooldown has
	// not yet elapsed.
	ErrOpen = errors.New("circuit breaker open")
	// ErrHalfOpenBusy is returned when a half-open probe is already in
	// flight; only one probe is admitted at a time.
	ErrHalfOpenBusy = errors.New("circuit breaker half-open probe already in flight")
)

// Config holds the trip/recovery thresholds for one provider's breaker.
type Config struct {
	// FailureThreshold trips the circuit once ConsecutiveFailures reaches
	// this value.
	FailureThreshold int
	// FailureRateThreshold trips the circuit once the failure rate over the
	// recent-request window reaches this value, provided MinSamples have
	// been observed.
	FailureRateThreshold float64
	// MinSamples is the minimum number of window samples required before
	// FailureRateThreshold is evaluated.
	MinSamples int
	// WindowSize is the number of recent outcomes retained for the
	// failure-rate calculation.
	WindowSize int
	// Cooldown is how long the circuit stays open before admitting a
	// half-open probe.
	Cooldown time.Duration
}

// DefaultConfig returns the breaker's default thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:     5,
		FailureRateThreshold: 0.5,
		MinSamples:           10,
		WindowSize:           50,
		Cooldown:             30 * time.Second,
	}
}

// Snapshot is an immutable read of a Breaker's state, safe to share across
// goroutines.
type Snapshot struct {
	Provider            string
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// Breaker is a single provider's circuit breaker. Zero value is not usable;
// construct with New.
type Breaker struct {
	provider string
	cfg      Config
	logger   *zap.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenProbeInUse  bool

	window    []bool
	windowPos int
	windowLen int
}

// New constructs a Breaker for one provider, starting closed.
func New(provider string, cfg Config, logger *zap.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		state:    StateClosed,
		window:   make([]bool, cfg.WindowSize),
	}
}

// Allow reports whether a dispatch may proceed. It performs the open→
// half-open transition itself once the cooldown has elapsed and admits
// exactly one probe while half-open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.halfOpenProbeInUse = false
		b.logger.Info("circuit entering half-open",
			zap.String("provider", b.provider))
		fallthrough

	case StateHalfOpen:
		if b.halfOpenProbeInUse {
			return ErrHalfOpenBusy
		}
		b.halfOpenProbeInUse = true
		return nil

	default:
		return nil
	}
}

// RecordSuccess reports a successful dispatch, resetting consecutive
// failures and closing the circuit if it was half-open.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pushOutcome(true)
	b.consecutiveFailures = 0

	switch b.state {
	case StateHalfOpen:
		b.logger.Info("circuit closed after successful probe",
			zap.String("provider", b.provider))
		b.state = StateClosed
		b.halfOpenProbeInUse = false
	case StateOpen:
		b.logger.Warn("success recorded while circuit open", zap.String("provider", b.provider))
	}
}

// RecordFailure reports a failed dispatch, tripping the circuit when the
// consecutive-failure or failure-rate threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pushOutcome(false)
	b.consecutiveFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold || b.rateTripped() {
			b.trip()
		}
	case StateHalfOpen:
		b.logger.Warn("half-open probe failed, reopening circuit",
			zap.String("provider", b.provider))
		b.trip()
		b.halfOpenProbeInUse = false
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.logger.Warn("circuit opened",
		zap.String("provider", b.provider),
		zap.Int("consecutive_failures", b.consecutiveFailures))
}

func (b *Breaker) rateTripped() bool {
	if b.windowLen < b.cfg.MinSamples {
		return false
	}
	failures := 0
	for i := 0; i < b.windowLen; i++ {
		if !b.window[i] {
			failures++
		}
	}
	return float64(failures)/float64(b.windowLen) >= b.cfg.FailureRateThreshold
}

func (b *Breaker) pushOutcome(success bool) {
	b.window[b.windowPos] = success
	b.windowPos = (b.windowPos + 1) % len(b.window)
	if b.windowLen < len(b.window) {
		b.windowLen++
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns an immutable read of the breaker's state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Provider:            b.provider,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
	}
}

// Reset forces the breaker back to closed, clearing counters. Used by
// administrative calls and tests.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.halfOpenProbeInUse = false
	b.windowLen = 0
	b.windowPos = 0
}
