// Package ratelimit implements per-owner sliding-window admission control.
//
// The limiter is in-memory and per-process: its state is lost on restart and
// is not shared between instances. That is an accepted limitation — it is an
// advisory throughput control, not a security boundary.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows at most maxAdmissions admissions per owner within a trailing
// window. A timestamp exactly window-old no longer counts against the owner.
type Limiter struct {
	maxAdmissions int
	window        time.Duration

	mu      sync.Mutex
	windows map[string][]time.Time

	now func() time.Time
}

// NewLimiter creates a limiter allowing maxAdmissions per owner per window.
func NewLimiter(maxAdmissions int, window time.Duration) *Limiter {
	return &Limiter{
		maxAdmissions: maxAdmissions,
		window:        window,
		windows:       make(map[string][]time.Time),
		now:           time.Now,
	}
}

// Allow reports whether the owner may admit a new ingestion now, recording
// the admission if so. Expired entries are pruned on every call, and owners
// whose window empties are dropped so idle owners cost no memory.
func (l *Limiter) Allow(owner string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(owner, now)
	if len(recent) >= l.maxAdmissions {
		return false
	}
	l.windows[owner] = append(recent, now)
	return true
}

// Remaining reports how many admissions the owner has left in the current
// window.
func (l *Limiter) Remaining(owner string) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.maxAdmissions - len(l.prune(owner, now))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// prune drops the owner's timestamps that have aged out of the window and
// returns what is left. Callers must hold l.mu.
func (l *Limiter) prune(owner string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	kept := l.windows[owner][:0]
	for _, ts := range l.windows[owner] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.windows, owner)
		return nil
	}
	l.windows[owner] = kept
	return kept
}
