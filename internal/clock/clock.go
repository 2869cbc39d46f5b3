// Package clock provides the injectable wall clock used by the resolver
// and the completion protocol.
//
// Every component that needs "now" takes a Clock rather than calling
// time.Now directly, so tests can freeze time and assert exact fallback
// values deterministically.
package clock

import "time"

// Clock supplies the current wall-clock time.
// Implemented by SystemClock (production) and testutil.FrozenClock (tests).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
//
// Thread-safety: SystemClock is stateless and safe for concurrent use.
type SystemClock struct{}

// Now returns the current time in UTC.
//
// All engine timestamps are UTC; normalizing here keeps callers from
// having to remember the conversion.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
