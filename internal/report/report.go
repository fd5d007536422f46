// Package report renders the end-of-run summary: handover totals from
// both observation paths, per-entity signal and throughput aggregates,
// and where the output files landed.
package report

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/stadium-telemetry/internal/telemetry"
	"github.com/signalsfoundry/stadium-telemetry/model"
)

// Collector accumulates per-entity observations during the run. It
// implements telemetry.SampleSink.
type Collector struct {
	mu         sync.Mutex
	signal     map[model.EntityID][]float64
	throughput map[model.EntityID][]float64
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		signal:     make(map[model.EntityID][]float64),
		throughput: make(map[model.EntityID][]float64),
	}
}

// ObserveSignal records one best-cell signal measurement.
func (c *Collector) ObserveSignal(id model.EntityID, signalDBm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signal[id] = append(c.signal[id], signalDBm)
}

// ObserveThroughput records one interval throughput observation.
func (c *Collector) ObserveThroughput(id model.EntityID, kbps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.throughput[id] = append(c.throughput[id], kbps)
}

// EntityAggregate is the per-entity roll-up shown in the summary.
type EntityAggregate struct {
	MeanSignalDBm  float64
	P95SignalDBm   float64
	MeanThroughput float64
	Observations   int
}

// Aggregate computes the roll-up for one entity. ok is false when no
// signal samples exist for it.
func (c *Collector) Aggregate(id model.EntityID) (EntityAggregate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	signal := c.signal[id]
	if len(signal) == 0 {
		return EntityAggregate{}, false
	}
	sorted := append([]float64(nil), signal...)
	sort.Float64s(sorted)

	agg := EntityAggregate{
		MeanSignalDBm: stat.Mean(sorted, nil),
		P95SignalDBm:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Observations:  len(sorted),
	}
	if tp := c.throughput[id]; len(tp) > 0 {
		agg.MeanThroughput = stat.Mean(tp, nil)
	}
	return agg, true
}

// Summary carries everything the renderer needs beyond the collector.
type Summary struct {
	RunID    string
	Scenario string

	SimDuration  time.Duration
	WallDuration time.Duration

	Counters                 telemetry.CountersSnapshot
	ConnectionEstablishments uint64

	// StoredHandovers is the event-store row count, shown when a store
	// was configured.
	StoredHandovers     uint64
	EventStoreAvailable bool

	OutputFiles []string
}

// Render writes the human-readable run summary.
func Render(w io.Writer, s Summary, c *Collector, entities []*model.Entity) {
	heading := color.New(color.Bold, color.FgCyan).FprintfFunc()
	label := color.New(color.FgHiWhite).FprintfFunc()
	warn := color.New(color.FgYellow).FprintfFunc()

	heading(w, "simulation run %s (%s)\n", s.RunID, s.Scenario)
	label(w, "  simulated time   %s\n", s.SimDuration)
	label(w, "  wall-clock time  %s\n", s.WallDuration)

	heading(w, "handovers\n")
	label(w, "  detector observed   %d\n", s.Counters.DetectorHandovers)
	label(w, "  radio reported      %d\n", s.Counters.ReportedHandovers)
	if s.Counters.DetectorHandovers != s.Counters.ReportedHandovers {
		warn(w, "  counts differ; the two paths observe independently\n")
	}
	label(w, "  watchdog reconnects %d\n", s.Counters.WatchdogReconnects)
	label(w, "  connections established %d\n", s.ConnectionEstablishments)
	if s.EventStoreAvailable {
		label(w, "  stored events       %d\n", s.StoredHandovers)
	}

	heading(w, "rows written\n")
	label(w, "  position %d, measurement %d, flow %d\n",
		s.Counters.PositionRows, s.Counters.MeasurementRows, s.Counters.FlowRows)
	if s.Counters.UnresolvedFlows > 0 {
		warn(w, "  %d flow samples had no matching entity\n", s.Counters.UnresolvedFlows)
	}

	if c != nil && len(entities) > 0 {
		heading(w, "per-entity aggregates\n")
		for _, e := range entities {
			agg, ok := c.Aggregate(e.ID)
			if !ok {
				continue
			}
			label(w, "  %-12s (%s)  signal mean %.1f dBm, p95 %.1f dBm, throughput mean %.0f kbps, %d samples\n",
				e.Name, e.Role, agg.MeanSignalDBm, agg.P95SignalDBm, agg.MeanThroughput, agg.Observations)
		}
	}

	if len(s.OutputFiles) > 0 {
		heading(w, "output files\n")
		for _, f := range s.OutputFiles {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}
