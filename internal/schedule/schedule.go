// Package schedule throttles index rebuilds to at most one per interval.
package schedule

import (
	"sync"
	"time"
)

const DefaultInterval = 10 * time.Minute

// Scheduler is Stale until the first MarkUpdated and again once interval has elapsed since the
// last one. It only tracks time; callers decide whether to rebuild.
type Scheduler struct {
	mu         sync.Mutex
	interval   time.Duration
	lastUpdate time.Time
	now        func() time.Time
}

// New returns a Scheduler. A non-positive interval selects DefaultInterval.
func New(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, now: time.Now}
}

// WithClock replaces time.Now. Meant for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// ShouldUpdate reports whether a rebuild is due.
func (s *Scheduler) ShouldUpdate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate.IsZero() || s.now().Sub(s.lastUpdate) >= s.interval
}

// TimeToNextUpdate is zero when a rebuild is due.
func (s *Scheduler) TimeToNextUpdate() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastUpdate.IsZero() {
		return 0
	}
	left := s.interval - s.now().Sub(s.lastUpdate)
	if left < 0 {
		return 0
	}
	return left
}

// MarkUpdated records a completed rebuild.
func (s *Scheduler) MarkUpdated() {
	s.mu.Lock()
	s.lastUpdate = s.now()
	s.mu.Unlock()
}

// LastUpdate is the zero time until the first MarkUpdated.
func (s *Scheduler) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
