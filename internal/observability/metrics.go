package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimulationCollector bundles the Prometheus metrics exported by a
// telemetry run and provides a ready-to-serve /metrics handler.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	HandoversDetected  prometheus.Counter
	HandoversReported  prometheus.Counter
	WatchdogReconnects prometheus.Counter
	UnresolvedFlows    prometheus.Counter

	RowsWritten *prometheus.CounterVec

	Entities prometheus.Gauge
	Cells    prometheus.Gauge

	TickDuration prometheus.Histogram
}

// NewSimulationCollector registers the simulation metrics against the
// provided registerer, defaulting to the global Prometheus registry
// when nil.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	detected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_handovers_detected_total",
		Help: "Handovers observed by the periodic serving-cell detector.",
	}), "telemetry_handovers_detected_total")
	if err != nil {
		return nil, err
	}
	reported, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_handovers_reported_total",
		Help: "Completed handovers reported by the radio layer.",
	}), "telemetry_handovers_reported_total")
	if err != nil {
		return nil, err
	}
	reconnects, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_watchdog_reconnects_total",
		Help: "Forced re-attachments triggered by the connectivity watchdog.",
	}), "telemetry_watchdog_reconnects_total")
	if err != nil {
		return nil, err
	}
	unresolved, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_unresolved_flow_samples_total",
		Help: "Flow samples whose source address matched no known entity.",
	}), "telemetry_unresolved_flow_samples_total")
	if err != nil {
		return nil, err
	}

	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_rows_written_total",
		Help: "Output rows written, labeled by stream.",
	}, []string{"stream"})
	rows, err = registerCounterVec(reg, rows, "telemetry_rows_written_total")
	if err != nil {
		return nil, err
	}

	entities, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_entities",
		Help: "Number of entities in the current scenario.",
	}), "telemetry_entities")
	if err != nil {
		return nil, err
	}
	cells, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_cells",
		Help: "Number of cell sites in the current scenario.",
	}), "telemetry_cells")
	if err != nil {
		return nil, err
	}

	ticks := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_tick_duration_seconds",
		Help:    "Wall-clock duration of periodic telemetry ticks.",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
	ticks, err = registerHistogram(reg, ticks, "telemetry_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimulationCollector{
		gatherer:           gatherer,
		HandoversDetected:  detected,
		HandoversReported:  reported,
		WatchdogReconnects: reconnects,
		UnresolvedFlows:    unresolved,
		RowsWritten:        rows,
		Entities:           entities,
		Cells:              cells,
		TickDuration:       ticks,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimulationCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// IncHandoverDetected increments the detector-side handover counter.
func (c *SimulationCollector) IncHandoverDetected() {
	if c == nil || c.HandoversDetected == nil {
		return
	}
	c.HandoversDetected.Inc()
}

// IncHandoverReported increments the radio-reported handover counter.
func (c *SimulationCollector) IncHandoverReported() {
	if c == nil || c.HandoversReported == nil {
		return
	}
	c.HandoversReported.Inc()
}

// IncWatchdogReconnect increments the forced-reattach counter.
func (c *SimulationCollector) IncWatchdogReconnect() {
	if c == nil || c.WatchdogReconnects == nil {
		return
	}
	c.WatchdogReconnects.Inc()
}

// IncUnresolvedFlow increments the unresolved-flow-sample counter.
func (c *SimulationCollector) IncUnresolvedFlow() {
	if c == nil || c.UnresolvedFlows == nil {
		return
	}
	c.UnresolvedFlows.Inc()
}

// AddRows adds n to the row counter for the given output stream.
func (c *SimulationCollector) AddRows(stream string, n int) {
	if c == nil || c.RowsWritten == nil {
		return
	}
	c.RowsWritten.WithLabelValues(stream).Add(float64(n))
}

// SetScenarioCounts records the scenario's entity and cell counts.
func (c *SimulationCollector) SetScenarioCounts(entities, cells int) {
	if c == nil {
		return
	}
	if c.Entities != nil {
		c.Entities.Set(float64(entities))
	}
	if c.Cells != nil {
		c.Cells.Set(float64(cells))
	}
}

// ObserveTick records the wall-clock duration of one periodic tick.
func (c *SimulationCollector) ObserveTick(seconds float64) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(seconds)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
