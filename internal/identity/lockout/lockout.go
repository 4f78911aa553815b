// Package lockout tracks failed login attempts per credential and
// temporarily locks out callers who keep guessing. Counters live in
// memory; a restart forgives the backlog, which is acceptable for a
// guard whose job is slowing bursts, not keeping history.
package lockout

import (
	"sync"
	"time"
)

const (
	defaultMaxFailures  = 5
	defaultWindow       = 15 * time.Minute
	defaultLockDuration = 15 * time.Minute
)

type record struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// Guard counts failures inside a sliding window and hard-locks a key once
// the window fills up.
type Guard struct {
	mu      sync.Mutex
	records map[string]*record

	maxFailures  int
	window       time.Duration
	lockDuration time.Duration
}

type Option func(*Guard)

func WithMaxFailures(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxFailures = n
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

func WithLockDuration(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.lockDuration = d
		}
	}
}

func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		records:      make(map[string]*record),
		maxFailures:  defaultMaxFailures,
		window:       defaultWindow,
		lockDuration: defaultLockDuration,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check reports whether the key is currently locked and, if so, how long
// until another attempt is allowed.
func (g *Guard) Check(key string, now time.Time) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[key]
	if !ok {
		return 0, false
	}
	if now.Before(rec.lockedUntil) {
		return rec.lockedUntil.Sub(now), true
	}
	if now.Sub(rec.windowStart) > g.window {
		// Stale counter; forget it rather than let the map grow.
		delete(g.records, key)
	}
	return 0, false
}

// RecordFailure counts one failed attempt and reports whether the key just
// crossed the threshold into a lock.
func (g *Guard) RecordFailure(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[key]
	if !ok || now.Sub(rec.windowStart) > g.window {
		rec = &record{windowStart: now}
		g.records[key] = rec
	}
	rec.failures++
	if rec.failures >= g.maxFailures && !now.Before(rec.lockedUntil) {
		rec.lockedUntil = now.Add(g.lockDuration)
		return true
	}
	return false
}

// Clear forgets a key after a successful login.
func (g *Guard) Clear(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, key)
}
