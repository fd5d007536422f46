package telemetry

import (
	"context"
	"math"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/core"
	"github.com/signalsfoundry/stadium-telemetry/internal/sched"
	"github.com/signalsfoundry/stadium-telemetry/internal/simlog"
	"github.com/signalsfoundry/stadium-telemetry/kb"
	"github.com/signalsfoundry/stadium-telemetry/model"
	"github.com/signalsfoundry/stadium-telemetry/timectrl"
)

func TestDiffCumulativeComputesRates(t *testing.T) {
	prev := model.FlowStats{RxBytes: 1000, RxPackets: 1, DelaySum: 10 * time.Millisecond}
	cur := model.FlowStats{
		RxBytes:   1000 + 12500,
		RxPackets: 1 + 10,
		DelaySum:  10*time.Millisecond + 120*time.Millisecond,
		JitterSum: 8 * time.Millisecond,
	}

	iv := DiffCumulative(prev, cur, 100*time.Millisecond)
	if iv.RxBytes != 12500 || iv.RxPackets != 10 {
		t.Fatalf("delta = %+v, want 12500 bytes / 10 packets", iv)
	}
	if math.Abs(iv.ThroughputKbps-1000) > 1e-9 {
		t.Fatalf("throughput = %v kbps, want 1000", iv.ThroughputKbps)
	}
	if math.Abs(iv.LatencyMs-12) > 1e-9 {
		t.Fatalf("latency = %v ms, want 12", iv.LatencyMs)
	}
	if math.Abs(iv.JitterMs-0.8) > 1e-9 {
		t.Fatalf("jitter = %v ms, want 0.8", iv.JitterMs)
	}
}

func TestDiffCumulativeIdenticalSnapshots(t *testing.T) {
	s := model.FlowStats{RxBytes: 5000, RxPackets: 5, DelaySum: time.Second}
	iv := DiffCumulative(s, s, 100*time.Millisecond)
	if iv != (IntervalStats{}) {
		t.Fatalf("identical snapshots produced %+v, want all zeros", iv)
	}
}

func TestDiffCumulativeFirstObservation(t *testing.T) {
	cur := model.FlowStats{RxBytes: 2000, RxPackets: 2}
	iv := DiffCumulative(model.FlowStats{}, cur, 100*time.Millisecond)
	if iv.RxBytes != 2000 || iv.RxPackets != 2 {
		t.Fatalf("first observation delta = %+v, want full cumulative value", iv)
	}
}

func TestDiffCumulativeLostPacketDelta(t *testing.T) {
	prev := model.FlowStats{RxBytes: 9000, RxPackets: 9, Lost: 2}
	cur := model.FlowStats{RxBytes: 18000, RxPackets: 18, Lost: 5}
	iv := DiffCumulative(prev, cur, 100*time.Millisecond)
	if iv.Lost != 3 {
		t.Fatalf("lost = %d, want the interval delta 3", iv.Lost)
	}
}

func TestFlowDiffBridgesUplinkActivityToState(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	clock := timectrl.NewVirtualClock(start)
	loop := sched.NewEventLoop(clock)

	state := kb.NewState()
	mustAdd := func(e *model.Entity) {
		t.Helper()
		if err := state.AddEntity(e); err != nil {
			t.Fatalf("AddEntity: %v", err)
		}
	}
	mustAdd(&model.Entity{ID: 1, Role: model.RoleMobile, Addr: netip.MustParseAddr("10.7.0.1")})
	mustAdd(&model.Entity{ID: 2, Role: model.RoleStatic, Addr: netip.MustParseAddr("10.7.0.2")})

	server := netip.MustParseAddr("192.168.1.10")
	traffic := core.NewTrafficModel(clock)
	profile := core.TrafficProfile{RateBps: 1_000_000, PacketBytes: 1000, Start: start}
	traffic.AddFlow(1, model.FlowKey{Src: netip.MustParseAddr("10.7.0.1"), Dst: server}, profile)
	traffic.AddFlow(2, model.FlowKey{Src: netip.MustParseAddr("10.7.0.2"), Dst: server}, profile)
	// Uplink source inside the block but assigned to no entity.
	traffic.AddFlow(3, model.FlowKey{Src: netip.MustParseAddr("10.7.9.9"), Dst: server}, profile)

	writer, err := simlog.OpenFlowWriter(filepath.Join(t.TempDir(), "flows.csv"), start)
	if err != nil {
		t.Fatalf("OpenFlowWriter: %v", err)
	}
	defer writer.Close()

	count := NewCounters()
	d := NewFlowDiff(loop, state, traffic, writer, count, nil, nil, netip.MustParsePrefix("10.7.0.0/16"))
	d.Start(context.Background())

	if err := loop.Run(start.Add(time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	last, ok := state.LastActivity(1)
	if !ok {
		t.Fatal("mobile uplink traffic did not refresh last activity")
	}
	if got := last.Sub(start); got != time.Second {
		t.Fatalf("last activity at %v, want 1s", got)
	}

	// Static entities never feed the watchdog.
	if _, ok := state.LastActivity(2); ok {
		t.Fatal("static entity received a last-activity stamp")
	}

	snap := count.Snapshot()
	if snap.UnresolvedFlows == 0 {
		t.Fatal("unresolved flow source not counted")
	}
	// Ten ticks, three flows each.
	if snap.FlowRows != 30 {
		t.Fatalf("flow rows = %d, want 30", snap.FlowRows)
	}
}

func TestFlowDiffOutlivesPeriodicHorizon(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	clock := timectrl.NewVirtualClock(start)
	loop := sched.NewEventLoop(clock)

	state := kb.NewState()
	if err := state.AddEntity(&model.Entity{ID: 1, Role: model.RoleMobile, Addr: netip.MustParseAddr("10.7.0.1")}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	traffic := core.NewTrafficModel(clock)
	traffic.AddFlow(1, model.FlowKey{Src: netip.MustParseAddr("10.7.0.1"), Dst: netip.MustParseAddr("192.168.1.10")},
		core.TrafficProfile{RateBps: 1_000_000, PacketBytes: 1000, Start: start})

	writer, err := simlog.OpenFlowWriter(filepath.Join(t.TempDir(), "flows.csv"), start)
	if err != nil {
		t.Fatalf("OpenFlowWriter: %v", err)
	}
	defer writer.Close()

	count := NewCounters()
	d := NewFlowDiff(loop, state, traffic, writer, count, nil, nil, netip.MustParsePrefix("10.7.0.0/16"))
	d.Start(context.Background())

	// The other periodic components stop at 500 ms here; the differencer
	// has no such bound and only the run limit ends it.
	if err := loop.Run(start.Add(time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Ticks at 0.1 through 1.0 s, half of them past the 500 ms mark.
	if got := count.Snapshot().FlowRows; got != 10 {
		t.Fatalf("flow rows = %d, want 10", got)
	}
	// The next differencing pass is still queued past the run bound.
	if pending := loop.Pending(); pending != 1 {
		t.Fatalf("pending events = %d, want the rescheduled pass alone", pending)
	}
}
