package telemetry

import "sync"

// Counters tracks in-memory totals for the telemetry layer. The two
// handover counters are deliberately independent: one counts what the
// periodic detector observes, the other what the radio layer reports,
// and they are never reconciled against each other.
type Counters struct {
	mu sync.Mutex

	detectorHandovers uint64
	reportedHandovers uint64

	watchdogReconnects uint64
	unresolvedFlows    uint64

	positionRows    uint64
	measurementRows uint64
	flowRows        uint64
}

// CountersSnapshot is a point-in-time copy of all counters.
type CountersSnapshot struct {
	DetectorHandovers  uint64
	ReportedHandovers  uint64
	WatchdogReconnects uint64
	UnresolvedFlows    uint64
	PositionRows       uint64
	MeasurementRows    uint64
	FlowRows           uint64
}

// NewCounters creates a Counters instance with everything at zero.
func NewCounters() *Counters {
	return &Counters{}
}

// IncDetectorHandover increments the detector-observed handover total
// and returns the new value.
func (c *Counters) IncDetectorHandover() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detectorHandovers++
	return c.detectorHandovers
}

// IncReportedHandover increments the radio-reported handover total and
// returns the new value.
func (c *Counters) IncReportedHandover() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reportedHandovers++
	return c.reportedHandovers
}

// IncWatchdogReconnect increments the forced-reattach total.
func (c *Counters) IncWatchdogReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchdogReconnects++
}

// IncUnresolvedFlow increments the count of flow samples whose source
// address matched no known entity.
func (c *Counters) IncUnresolvedFlow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unresolvedFlows++
}

// IncPositionRows adds n to the position-row total.
func (c *Counters) IncPositionRows(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positionRows += n
}

// IncMeasurementRows adds n to the measurement-row total.
func (c *Counters) IncMeasurementRows(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.measurementRows += n
}

// IncFlowRows adds n to the flow-row total.
func (c *Counters) IncFlowRows(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flowRows += n
}

// Snapshot returns a consistent copy of all counters.
func (c *Counters) Snapshot() CountersSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CountersSnapshot{
		DetectorHandovers:  c.detectorHandovers,
		ReportedHandovers:  c.reportedHandovers,
		WatchdogReconnects: c.watchdogReconnects,
		UnresolvedFlows:    c.unresolvedFlows,
		PositionRows:       c.positionRows,
		MeasurementRows:    c.measurementRows,
		FlowRows:           c.flowRows,
	}
}
