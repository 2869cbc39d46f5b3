package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/choreloop/choreloop/internal/protocol"
)

// FakeScheduler is a manually advanced scheduler for protocol tests.
//
// Scheduled callbacks fire when Advance moves the virtual clock past
// their due time, in due-time order. Each callback runs in its own
// goroutine because machine callbacks can block on one another (the
// confirm step awaits the initiate result); tests synchronize on
// observable state instead of callback return.
type FakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	sched   *FakeScheduler
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// Stop implements protocol.Timer.
func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewFakeScheduler creates a scheduler at virtual time zero.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{}
}

// AfterFunc implements protocol.Scheduler.
func (s *FakeScheduler) AfterFunc(d time.Duration, fn func()) protocol.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the virtual clock forward by d, firing every due timer
// in due-time order. Callbacks run asynchronously, so timers they arm
// are fired by a later Advance, not this one.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	for {
		t := s.nextDueLocked(target)
		if t == nil {
			break
		}
		s.now = t.at
		t.fired = true
		go t.fn()
	}
	s.now = target
	s.mu.Unlock()
}

// Pending returns the number of armed, unfired timers.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (s *FakeScheduler) nextDueLocked(target time.Duration) *fakeTimer {
	due := make([]*fakeTimer, 0, len(s.timers))
	for _, t := range s.timers {
		if !t.fired && !t.stopped && t.at <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	return due[0]
}
