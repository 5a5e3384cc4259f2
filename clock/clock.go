// Package clock provides the shared time base of the transport and the
// voice backends.
package clock

import (
	"sync"
	"time"
)

// Clock reports elapsed time since an arbitrary origin
type Clock interface {
	Now() time.Duration
}

// Wall is a monotonic clock starting at construction
type Wall struct {
	start time.Time
}

func NewWall() *Wall {
	return &Wall{start: time.Now()}
}

func (w *Wall) Now() time.Duration {
	return time.Since(w.start)
}

// Manual is a clock that only moves when told to. Used by tests and
// offline rendering.
type Manual struct {
	mu  sync.Mutex
	now time.Duration
}

func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}

// Set moves the clock to t
func (m *Manual) Set(t time.Duration) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
