// Package backoff holds the process-wide cooldown shared between the sweep
// controller and the status watcher. The watcher is the only writer; the
// controller only reads. The mutex is never held across I/O.
package backoff

import (
	"sync"
	"time"
)

type State struct {
	mu            sync.Mutex
	failures      uint
	cooldownUntil time.Time
}

func New() *State {
	return &State{}
}

// InCooldown reports whether the cooldown window is still open and, if so,
// how long remains.
func (s *State) InCooldown(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cooldownUntil.IsZero() || !s.cooldownUntil.After(now) {
		return 0, false
	}
	return s.cooldownUntil.Sub(now), true
}

// RecordFailure increments the failure counter and extends the cooldown
// window to now + min(max, base * 2^(failures-1)).
func (s *State) RecordFailure(base, max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures++
	s.cooldownUntil = time.Now().Add(cooldownFor(s.failures, base, max))
}

// RecordSuccess resets the failure counter and clears any open window.
func (s *State) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = 0
	s.cooldownUntil = time.Time{}
}

// Failures returns the current consecutive failure count.
func (s *State) Failures() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func cooldownFor(failures uint, base, max time.Duration) time.Duration {
	if failures == 0 {
		return 0
	}
	d := base
	for i := uint(1); i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
