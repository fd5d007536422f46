package core

import (
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/model"
	"github.com/signalsfoundry/stadium-telemetry/timectrl"
)

// FlowMonitor is the flow-monitoring collaborator: cumulative,
// non-resettable counters per flow plus the flow's addressing tuple.
type FlowMonitor interface {
	// Flows lists every known flow in ascending ID order.
	Flows() []model.FlowID
	// Key returns the addressing tuple for a flow.
	Key(id model.FlowID) (model.FlowKey, bool)
	// CumulativeStats returns totals since the start of the run.
	CumulativeStats(id model.FlowID) (model.FlowStats, bool)
}

// TrafficProfile describes a constant-rate uplink or downlink stream.
// Counters derived from it are pure functions of elapsed simulation time,
// which keeps them monotonic by construction.
type TrafficProfile struct {
	RateBps       float64       // application bit rate
	PacketBytes   uint64        // payload size per packet
	Start         time.Time     // when the stream begins
	DelayPerPkt   time.Duration // contribution to the cumulative delay sum
	JitterPerPkt  time.Duration // contribution to the cumulative jitter sum
	LossPerPacket float64       // fraction of sent packets counted lost
}

type trafficFlow struct {
	key     model.FlowKey
	profile TrafficProfile
}

// TrafficModel is a deterministic FlowMonitor implementation used to
// exercise the differencer end to end. Real packet scheduling is out of
// scope; the model only promises plausible cumulative counters.
type TrafficModel struct {
	clock timectrl.SimClock

	mu    sync.RWMutex
	flows map[model.FlowID]trafficFlow
}

// NewTrafficModel constructs an empty traffic model on the given clock.
func NewTrafficModel(clock timectrl.SimClock) *TrafficModel {
	return &TrafficModel{clock: clock, flows: make(map[model.FlowID]trafficFlow)}
}

// AddFlow registers a stream under the given flow ID.
func (t *TrafficModel) AddFlow(id model.FlowID, key model.FlowKey, profile TrafficProfile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows[id] = trafficFlow{key: key, profile: profile}
}

// Flows implements FlowMonitor.
func (t *TrafficModel) Flows() []model.FlowID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]model.FlowID, 0, len(t.flows))
	for id := range t.flows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Key implements FlowMonitor.
func (t *TrafficModel) Key(id model.FlowID) (model.FlowKey, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.flows[id]
	return f.key, ok
}

// CumulativeStats implements FlowMonitor.
func (t *TrafficModel) CumulativeStats(id model.FlowID) (model.FlowStats, bool) {
	t.mu.RLock()
	f, ok := t.flows[id]
	t.mu.RUnlock()
	if !ok {
		return model.FlowStats{}, false
	}

	elapsed := t.clock.Now().Sub(f.profile.Start)
	if elapsed <= 0 || f.profile.PacketBytes == 0 {
		return model.FlowStats{}, true
	}

	packets := uint64(f.profile.RateBps * elapsed.Seconds() / (8 * float64(f.profile.PacketBytes)))
	lost := uint64(f.profile.LossPerPacket * float64(packets))
	received := packets - lost

	return model.FlowStats{
		RxBytes:   received * f.profile.PacketBytes,
		RxPackets: received,
		DelaySum:  time.Duration(received) * f.profile.DelayPerPkt,
		JitterSum: time.Duration(received) * f.profile.JitterPerPkt,
		Lost:      lost,
	}, true
}
