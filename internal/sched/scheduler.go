// Package sched implements the cooperative discrete-event scheduler that
// drives every periodic component of the simulation. All callbacks run to
// completion on the loop goroutine; concurrency inside a tick does not
// exist, and a "blocking" wait is always expressed as a future callback.
package sched

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/timectrl"
)

// Scheduler is the interface ticks use to re-enqueue themselves. Delays are
// relative to the current simulation time.
type Scheduler interface {
	// ScheduleAfter registers a one-shot callback to run once delay has
	// elapsed in simulation time. It returns an opaque event ID usable
	// with Cancel.
	ScheduleAfter(delay time.Duration, f func()) (id string)

	// Now returns the current simulation time.
	Now() time.Time
}

// scheduledEvent is a single queued callback.
type scheduledEvent struct {
	id        string
	seq       uint64
	when      time.Time
	f         func()
	cancelled bool
}

// EventLoop owns the event queue and the virtual clock. Events scheduled
// for the same simulation time execute in scheduling order (ascending
// sequence number), so runs are reproducible.
type EventLoop struct {
	clock *timectrl.VirtualClock

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent // ordered by (when, seq), earliest first
	index   map[string]*scheduledEvent

	failErr error
}

// NewEventLoop creates an event loop advancing the given clock.
func NewEventLoop(clock *timectrl.VirtualClock) *EventLoop {
	return &EventLoop{
		clock: clock,
		index: make(map[string]*scheduledEvent),
	}
}

// ScheduleAfter registers a callback to run delay after the current
// simulation time. Implements Scheduler.
func (l *EventLoop) ScheduleAfter(delay time.Duration, f func()) string {
	return l.ScheduleAt(l.clock.Now().Add(delay), f)
}

// ScheduleAt registers a callback at an absolute simulation time.
func (l *EventLoop) ScheduleAt(at time.Time, f func()) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counter++
	ev := &scheduledEvent{
		id:   fmt.Sprintf("ev-%d", l.counter),
		seq:  l.counter,
		when: at,
		f:    f,
	}
	l.addEventLocked(ev)
	l.index[ev.id] = ev
	return ev.id
}

// addEventLocked inserts an event keeping (when, seq) order. Caller must
// hold l.mu.
func (l *EventLoop) addEventLocked(ev *scheduledEvent) {
	idx := sort.Search(len(l.events), func(i int) bool {
		e := l.events[i]
		if e.when.Equal(ev.when) {
			return e.seq > ev.seq
		}
		return e.when.After(ev.when)
	})
	l.events = append(l.events, nil)
	copy(l.events[idx+1:], l.events[idx:])
	l.events[idx] = ev
}

// Cancel marks a queued event as cancelled. Unknown or already-run IDs are
// a no-op; actual removal from the queue is lazy.
func (l *EventLoop) Cancel(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(l.index, id)
}

// Now returns the current simulation time. Implements Scheduler.
func (l *EventLoop) Now() time.Time {
	return l.clock.Now()
}

// Fail records a fatal error and drains the queue so Run returns at the
// next event boundary. Only the first error is retained.
func (l *EventLoop) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr == nil {
		l.failErr = err
	}
}

// Err returns the first error recorded with Fail, if any.
func (l *EventLoop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failErr
}

// popNextLocked removes and returns the earliest non-cancelled event not
// after the bound, or nil. Caller must hold l.mu.
func (l *EventLoop) popNextLocked(until time.Time) *scheduledEvent {
	for len(l.events) > 0 {
		ev := l.events[0]
		if ev.cancelled {
			l.events = l.events[1:]
			continue
		}
		if ev.when.After(until) {
			return nil
		}
		l.events = l.events[1:]
		return ev
	}
	return nil
}

// Run executes events in order, advancing the clock to each event's
// timestamp, until the queue holds no event at or before until, or a
// fatal error was recorded. Components with no horizon check of their own
// are bounded by this limit: their next tick simply stays queued.
func (l *EventLoop) Run(until time.Time) error {
	for {
		l.mu.Lock()
		if l.failErr != nil {
			err := l.failErr
			l.mu.Unlock()
			return err
		}
		ev := l.popNextLocked(until)
		if ev == nil {
			l.mu.Unlock()
			// Nothing left inside the bound; land the clock on it.
			l.clock.AdvanceTo(until)
			return nil
		}
		delete(l.index, ev.id)
		l.mu.Unlock()

		l.clock.AdvanceTo(ev.when)

		// Execute outside the lock so callbacks can re-schedule.
		if ev.f != nil {
			ev.f()
		}
	}
}

// Pending returns the number of queued, non-cancelled events.
func (l *EventLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if !ev.cancelled {
			n++
		}
	}
	return n
}
