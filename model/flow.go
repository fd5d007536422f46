package model

import (
	"net/netip"
	"time"
)

// FlowID identifies a traffic flow as assigned by the flow monitor.
type FlowID uint32

// Direction classifies a flow relative to the entity address block.
type Direction int

const (
	Downlink Direction = iota
	Uplink
)

func (d Direction) String() string {
	if d == Uplink {
		return "UL"
	}
	return "DL"
}

// FlowStats carries the cumulative, non-resettable counters reported by
// the flow monitor for a single flow. All sums are totals since the start
// of the run; interval rates are derived by differencing.
type FlowStats struct {
	RxBytes   uint64
	RxPackets uint64
	DelaySum  time.Duration
	JitterSum time.Duration
	Lost      uint64
}

// FlowSnapshot is the most recent FlowStats observation retained per flow.
// Each differencer tick replaces it; older snapshots are discarded.
type FlowSnapshot struct {
	FlowID FlowID
	Taken  time.Time
	Stats  FlowStats
}

// FlowKey is the addressing tuple of a flow, used to classify direction
// and to resolve the owning entity.
type FlowKey struct {
	Src netip.Addr
	Dst netip.Addr
}
