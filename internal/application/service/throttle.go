package service

import (
	"sync"
	"time"
)

// Throttle lets through at most one call per interval. A single Throttle is
// shared by every instrument feeding the display.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now}
}

// Allow reports whether an update may pass now and, if so, records it.
func (t *Throttle) Allow() bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// Reset forgets the last pass so the next update is shown immediately.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.mu.Unlock()
}
