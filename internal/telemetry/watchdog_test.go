package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/internal/logging"
	"github.com/signalsfoundry/stadium-telemetry/internal/sched"
	"github.com/signalsfoundry/stadium-telemetry/kb"
	"github.com/signalsfoundry/stadium-telemetry/model"
	"github.com/signalsfoundry/stadium-telemetry/timectrl"
)

type fakeAttacher struct {
	calls map[model.EntityID]int
}

func (f *fakeAttacher) AttachToBestCell(ctx context.Context, id model.EntityID, candidates []*model.Cell) {
	if f.calls == nil {
		f.calls = make(map[model.EntityID]int)
	}
	f.calls[id]++
}

func watchdogFixture(t *testing.T) (*kb.State, *sched.EventLoop, time.Time) {
	t.Helper()
	start := time.Unix(0, 0).UTC()
	loop := sched.NewEventLoop(timectrl.NewVirtualClock(start))

	state := kb.NewState()
	for _, e := range []*model.Entity{
		{ID: 1, Role: model.RoleMobile},
		{ID: 2, Role: model.RoleMobile},
		{ID: 3, Role: model.RoleStatic},
	} {
		if err := state.AddEntity(e); err != nil {
			t.Fatalf("AddEntity: %v", err)
		}
	}
	return state, loop, start
}

func TestWatchdogForcesReattachForSilentEntities(t *testing.T) {
	state, loop, start := watchdogFixture(t)
	attach := &fakeAttacher{}
	count := NewCounters()

	w := NewWatchdog(loop, state, attach, count, nil, nil, start.Add(10*time.Second))
	w.Start(context.Background())

	// Entity 2 shows uplink activity just before the second check.
	loop.ScheduleAfter(3*time.Second, func() {
		state.SetLastActivity(2, loop.Now())
	})

	if err := loop.Run(start.Add(5 * time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Check at 2 s: both mobiles have never been active, both trigger.
	// Check at 4 s: entity 1 silent since its 2 s reset, triggers again;
	// entity 2 was active at 3 s, inside the limit.
	if got := attach.calls[1]; got != 2 {
		t.Fatalf("entity 1 reattached %d times, want 2", got)
	}
	if got := attach.calls[2]; got != 1 {
		t.Fatalf("entity 2 reattached %d times, want 1", got)
	}
	if got := attach.calls[3]; got != 0 {
		t.Fatalf("static entity reattached %d times, want 0", got)
	}
	if got := count.Snapshot().WatchdogReconnects; got != 3 {
		t.Fatalf("watchdog reconnects = %d, want 3", got)
	}
}

func TestWatchdogLogsNeverActiveDistinctly(t *testing.T) {
	state, loop, start := watchdogFixture(t)
	attach := &fakeAttacher{}

	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "warn", Output: &buf})

	// Entity 1 was active once long ago; entity 2 never was.
	state.SetLastActivity(1, start)

	w := NewWatchdog(loop, state, attach, NewCounters(), nil, log, start.Add(3*time.Second))
	w.Start(context.Background())

	if err := loop.Run(start.Add(3 * time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "never active") {
		t.Fatalf("never-active entity not called out:\n%s", out)
	}
	if !strings.Contains(out, "silence=2s") {
		t.Fatalf("stale entity silence not reported:\n%s", out)
	}
	if strings.Contains(out, "silence=0s") {
		t.Fatalf("never-active entity reported as zero silence:\n%s", out)
	}
}

func TestWatchdogRespectsRecentActivity(t *testing.T) {
	state, loop, start := watchdogFixture(t)
	attach := &fakeAttacher{}

	w := NewWatchdog(loop, state, attach, NewCounters(), nil, nil, start.Add(10*time.Second))
	w.Start(context.Background())

	// Keep both mobiles active every second.
	var refresh func()
	refresh = func() {
		state.SetLastActivity(1, loop.Now())
		state.SetLastActivity(2, loop.Now())
		loop.ScheduleAfter(time.Second, refresh)
	}
	loop.ScheduleAfter(time.Second, refresh)

	if err := loop.Run(start.Add(6 * time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(attach.calls) != 0 {
		t.Fatalf("active entities were reattached: %v", attach.calls)
	}
}

func TestWatchdogStopsAtHorizon(t *testing.T) {
	state, loop, start := watchdogFixture(t)
	attach := &fakeAttacher{}

	w := NewWatchdog(loop, state, attach, NewCounters(), nil, nil, start.Add(3*time.Second))
	w.Start(context.Background())

	if err := loop.Run(start.Add(20 * time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Only the 2 s check runs; the 4 s one sees the horizon.
	if got := attach.calls[1]; got != 1 {
		t.Fatalf("entity 1 reattached %d times, want 1", got)
	}
	if pending := loop.Pending(); pending != 0 {
		t.Fatalf("pending events after horizon = %d, want 0", pending)
	}
}
