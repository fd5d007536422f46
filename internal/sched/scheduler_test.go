package sched

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/timectrl"
)

func newLoop() (*EventLoop, time.Time) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return NewEventLoop(timectrl.NewVirtualClock(start)), start
}

func TestRunExecutesInTimeOrder(t *testing.T) {
	loop, start := newLoop()

	var order []string
	loop.ScheduleAt(start.Add(3*time.Second), func() { order = append(order, "e3") })
	loop.ScheduleAt(start.Add(1*time.Second), func() { order = append(order, "e1") })
	loop.ScheduleAt(start.Add(2*time.Second), func() { order = append(order, "e2") })

	if err := loop.Run(start.Add(10 * time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"e1", "e2", "e3"}
	if len(order) != len(want) {
		t.Fatalf("executed %d events, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order %v, want %v", order, want)
		}
	}
}

func TestSameTimeEventsRunInSchedulingOrder(t *testing.T) {
	loop, start := newLoop()
	at := start.Add(time.Second)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		loop.ScheduleAt(at, func() { order = append(order, i) })
	}

	if err := loop.Run(at); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("same-time order %v, want ascending scheduling order", order)
		}
	}
}

func TestClockAdvancesToEventTime(t *testing.T) {
	loop, start := newLoop()

	var seen time.Time
	at := start.Add(700 * time.Millisecond)
	loop.ScheduleAt(at, func() { seen = loop.Now() })

	if err := loop.Run(start.Add(time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !seen.Equal(at) {
		t.Fatalf("callback observed clock %v, want %v", seen, at)
	}
	if !loop.Now().Equal(start.Add(time.Second)) {
		t.Fatalf("loop clock landed on %v, want run bound", loop.Now())
	}
}

func TestRunBoundLeavesFutureEventsQueued(t *testing.T) {
	loop, start := newLoop()

	ran := 0
	loop.ScheduleAt(start.Add(1*time.Second), func() { ran++ })
	loop.ScheduleAt(start.Add(5*time.Second), func() { ran++ })

	if err := loop.Run(start.Add(2 * time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ran != 1 {
		t.Fatalf("ran %d events inside bound, want 1", ran)
	}
	if loop.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", loop.Pending())
	}
}

func TestSelfReschedulingTick(t *testing.T) {
	loop, start := newLoop()

	var ticks int
	var tick func()
	tick = func() {
		ticks++
		loop.ScheduleAfter(100*time.Millisecond, tick)
	}
	loop.ScheduleAfter(100*time.Millisecond, tick)

	if err := loop.Run(start.Add(time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ticks != 10 {
		t.Fatalf("ticks = %d, want 10", ticks)
	}
}

func TestCancel(t *testing.T) {
	loop, start := newLoop()

	ran := false
	id := loop.ScheduleAt(start.Add(time.Second), func() { ran = true })
	loop.Cancel(id)
	loop.Cancel("ev-unknown")

	if err := loop.Run(start.Add(2 * time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ran {
		t.Fatal("cancelled event still ran")
	}
}

func TestFailStopsRun(t *testing.T) {
	loop, start := newLoop()

	boom := errors.New("no mobility data")
	ran := 0
	loop.ScheduleAt(start.Add(1*time.Second), func() {
		ran++
		loop.Fail(boom)
	})
	loop.ScheduleAt(start.Add(2*time.Second), func() { ran++ })

	err := loop.Run(start.Add(5 * time.Second))
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
	if ran != 1 {
		t.Fatalf("ran %d events after failure, want 1", ran)
	}
}
