package core

import (
	"net/netip"
	"testing"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/model"
	"github.com/signalsfoundry/stadium-telemetry/timectrl"
)

func TestTrafficCountersAreMonotonic(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	clock := timectrl.NewVirtualClock(start)
	tm := NewTrafficModel(clock)
	tm.AddFlow(1, model.FlowKey{
		Src: netip.MustParseAddr("10.7.0.1"),
		Dst: netip.MustParseAddr("192.168.1.10"),
	}, TrafficProfile{
		RateBps:     1_000_000,
		PacketBytes: 1000,
		Start:       start.Add(300 * time.Millisecond),
	})

	var prev model.FlowStats
	for _, offset := range []time.Duration{0, 100 * time.Millisecond, 400 * time.Millisecond, time.Second, 5 * time.Second} {
		clock.AdvanceTo(start.Add(offset))
		cur, ok := tm.CumulativeStats(1)
		if !ok {
			t.Fatalf("CumulativeStats at %v: flow unknown", offset)
		}
		if cur.RxBytes < prev.RxBytes || cur.RxPackets < prev.RxPackets {
			t.Fatalf("counters regressed at %v: %+v after %+v", offset, cur, prev)
		}
		prev = cur
	}
}

func TestTrafficZeroBeforeStart(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	clock := timectrl.NewVirtualClock(start)
	tm := NewTrafficModel(clock)
	tm.AddFlow(1, model.FlowKey{}, TrafficProfile{
		RateBps:     1_000_000,
		PacketBytes: 1000,
		Start:       start.Add(300 * time.Millisecond),
	})

	clock.AdvanceTo(start.Add(200 * time.Millisecond))
	cur, ok := tm.CumulativeStats(1)
	if !ok {
		t.Fatal("flow unknown")
	}
	if cur.RxPackets != 0 || cur.RxBytes != 0 {
		t.Fatalf("counters before stream start = %+v, want zero", cur)
	}
}

func TestTrafficRateMatchesProfile(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	clock := timectrl.NewVirtualClock(start)
	tm := NewTrafficModel(clock)
	tm.AddFlow(1, model.FlowKey{}, TrafficProfile{
		RateBps:     8_000_000, // 1000 packets/s at 1000-byte packets
		PacketBytes: 1000,
		Start:       start,
	})

	clock.AdvanceTo(start.Add(2 * time.Second))
	cur, _ := tm.CumulativeStats(1)
	if cur.RxPackets != 2000 {
		t.Fatalf("packets after 2 s = %d, want 2000", cur.RxPackets)
	}
	if cur.RxBytes != 2_000_000 {
		t.Fatalf("bytes after 2 s = %d, want 2000000", cur.RxBytes)
	}
}

func TestTrafficFlowsSortedAndKeyed(t *testing.T) {
	clock := timectrl.NewVirtualClock(time.Unix(0, 0))
	tm := NewTrafficModel(clock)
	key := model.FlowKey{Src: netip.MustParseAddr("10.7.0.2"), Dst: netip.MustParseAddr("192.168.1.10")}
	tm.AddFlow(9, model.FlowKey{}, TrafficProfile{})
	tm.AddFlow(2, key, TrafficProfile{})

	flows := tm.Flows()
	if len(flows) != 2 || flows[0] != 2 || flows[1] != 9 {
		t.Fatalf("Flows = %v, want [2 9]", flows)
	}
	got, ok := tm.Key(2)
	if !ok || got != key {
		t.Fatalf("Key(2) = (%v, %v), want registered key", got, ok)
	}
	if _, ok := tm.Key(5); ok {
		t.Fatal("Key(5) resolved an unknown flow")
	}
}
