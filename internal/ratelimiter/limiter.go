// Package ratelimiter implements the per-provider admission gate: a
// token-bucket rate limit (requests per minute) plus a concurrency ceiling,
// both bounded-wait on acquisition.
package ratelimiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when a slot could not be acquired within
// the bounded acquisition deadline.
var ErrRateLimitExceeded = errors.New("rate_limit_exceeded")

// Config holds the admission limits for one provider.
type Config struct {
	// RPM is the sustained requests-per-minute rate.
	RPM int
	// Concurrent is the maximum number of in-flight requests.
	Concurrent int
	// AcquireTimeout bounds how long acquisition blocks before giving up
	// (default 250ms).
	AcquireTimeout time.Duration
}

// DefaultConfig returns sane defaults: 60rpm, 4 concurrent, 250ms wait.
func DefaultConfig() Config {
	return Config{RPM: 60, Concurrent: 4, AcquireTimeout: 250 * time.Millisecond}
}

// Limiter gates admission for a single provider. Release is guaranteed via
// the Release func returned by Acquire, which callers must defer
// immediately on a successful acquisition (including on panic unwind).
type Limiter struct {
	tokens    *rate.Limiter
	sem       chan struct{}
	acquireBy time.Duration

	mu       sync.Mutex
	inFlight int
}

// New constructs a Limiter from cfg.
func New(cfg Config) *Limiter {
	if cfg.RPM <= 0 {
		cfg.RPM = 60
	}
	if cfg.Concurrent <= 0 {
		cfg.Concurrent = 4
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 250 * time.Millisecond
	}
	perSecond := rate.Limit(float64(cfg.RPM) / 60.0)
	return &Limiter{
		tokens:    rate.NewLimiter(perSecond, cfg.Concurrent),
		sem:       make(chan struct{}, cfg.Concurrent),
		acquireBy: cfg.AcquireTimeout,
	}
}

// Release is returned by a successful Acquire; calling it frees the
// concurrency slot. Safe to call at most once.
type Release func()

// Acquire blocks up to the configured acquisition timeout for both a rate
// token and a concurrency slot. On success it returns a Release that MUST be
// called (typically deferred) on every exit path of the invocation.
func (l *Limiter) Acquire(ctx context.Context) (Release, error) {
	deadline := time.Now().Add(l.acquireBy)
	acquireCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := l.tokens.Wait(acquireCtx); err != nil {
		return nil, ErrRateLimitExceeded
	}

	select {
	case l.sem <- struct{}{}:
		l.mu.Lock()
		l.inFlight++
		l.mu.Unlock()
		released := false
		return func() {
			if released {
				return
			}
			released = true
			l.mu.Lock()
			l.inFlight--
			l.mu.Unlock()
			<-l.sem
		}, nil
	case <-acquireCtx.Done():
		return nil, ErrRateLimitExceeded
	}
}

// InFlight returns the current number of acquired, unreleased slots.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}
