package timectrl

import (
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Components depend
// on this abstraction rather than a concrete clock so tests can inject a
// fake. Simulation time only ever moves forward, and only the event loop
// moves it; wall-clock time plays no part in a run.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// VirtualClock is the discrete-event clock driving a run. It starts at a
// fixed epoch and is advanced by the event scheduler to the timestamp of
// each event it executes. It never ticks on its own.
type VirtualClock struct {
	mu      sync.RWMutex
	start   time.Time
	current time.Time
}

// NewVirtualClock constructs a clock positioned at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{start: start, current: start}
}

// Now returns the current simulation time. Implements SimClock.
func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Start returns the simulation epoch.
func (c *VirtualClock) Start() time.Time {
	return c.start
}

// Elapsed returns how much simulation time has passed since the epoch.
func (c *VirtualClock) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Sub(c.start)
}

// AdvanceTo moves the clock forward to t. Attempts to move backwards are
// ignored; the clock is monotonic by construction.
func (c *VirtualClock) AdvanceTo(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.current) {
		c.current = t
	}
}
