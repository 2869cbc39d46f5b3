// Package testutil provides deterministic doubles for the engine's
// injected time and scheduling abstractions.
package testutil

import (
	"sync"
	"time"
)

// FrozenClock is a settable wall clock for tests.
//
// Unlike clock.SystemClock, FrozenClock only moves when told to, so
// fallback dates and plausibility checks can be asserted exactly.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type FrozenClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFrozenClock creates a clock frozen at the given instant.
func NewFrozenClock(at time.Time) *FrozenClock {
	return &FrozenClock{now: at.UTC()}
}

// Now returns the frozen instant.
func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to an exact instant.
func (c *FrozenClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at.UTC()
}
