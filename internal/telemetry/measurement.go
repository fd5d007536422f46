package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/core"
	"github.com/signalsfoundry/stadium-telemetry/internal/logging"
	"github.com/signalsfoundry/stadium-telemetry/internal/observability"
	"github.com/signalsfoundry/stadium-telemetry/internal/sched"
	"github.com/signalsfoundry/stadium-telemetry/internal/simlog"
	"github.com/signalsfoundry/stadium-telemetry/kb"
	"github.com/signalsfoundry/stadium-telemetry/model"
)

// HandoverSink receives handover events for durable storage.
type HandoverSink interface {
	RecordHandover(model.HandoverEvent) error
}

// Detector evaluates every entity's best serving cell on a fixed
// interval. The first evaluation only records the serving cell; any
// later change counts as a handover. The detector's count is kept
// separate from what the radio layer reports and the two are never
// reconciled.
type Detector struct {
	loop     *sched.EventLoop
	state    *kb.State
	pos      core.MobilityProvider
	signal   *core.SignalModel
	writer   *simlog.MeasurementWriter
	handover *simlog.HandoverLog
	sink     HandoverSink
	count    *Counters
	metrics  *observability.SimulationCollector
	log      logging.Logger
	horizon  time.Time

	// Interval between serving-cell evaluations.
	Interval time.Duration

	// Samples, when set, receives every signal measurement for
	// end-of-run aggregation.
	Samples SampleSink
}

// SampleSink receives per-entity observations for end-of-run aggregation.
type SampleSink interface {
	ObserveSignal(id model.EntityID, signalDBm float64)
	ObserveThroughput(id model.EntityID, kbps float64)
}

// NewDetector constructs a detector with the stadium default interval
// of 500 ms. sink may be nil when no durable store is configured.
func NewDetector(loop *sched.EventLoop, state *kb.State, pos core.MobilityProvider, signal *core.SignalModel, writer *simlog.MeasurementWriter, handover *simlog.HandoverLog, sink HandoverSink, count *Counters, metrics *observability.SimulationCollector, log logging.Logger, horizon time.Time) *Detector {
	if log == nil {
		log = logging.Noop()
	}
	return &Detector{
		loop:     loop,
		state:    state,
		pos:      pos,
		signal:   signal,
		writer:   writer,
		handover: handover,
		sink:     sink,
		count:    count,
		metrics:  metrics,
		log:      log,
		horizon:  horizon,
		Interval: 500 * time.Millisecond,
	}
}

// Start schedules the first evaluation at the current instant's next tick.
func (d *Detector) Start(ctx context.Context) {
	d.loop.ScheduleAfter(d.Interval, func() { d.tick(ctx) })
}

func (d *Detector) tick(ctx context.Context) {
	now := d.loop.Now()
	if !now.Before(d.horizon) {
		return
	}
	started := time.Now()

	cells := d.state.Cells()
	for _, e := range d.state.Entities() {
		pos, err := d.pos.Position(e.ID)
		if err != nil {
			d.loop.Fail(fmt.Errorf("serving-cell detector: entity %d: %w", e.ID, err))
			return
		}

		best, ok := d.signal.BestCell(pos, cells)
		if !ok {
			continue
		}
		if d.Samples != nil {
			d.Samples.ObserveSignal(e.ID, best.SignalDBm)
		}

		prev, seen := d.state.ServingCell(e.ID)
		changed := seen && prev != best.Cell

		if err := d.writer.WriteRow(now, e.ID, best.Cell, best.SignalDBm, best.DistanceM, changed); err != nil {
			d.loop.Fail(fmt.Errorf("serving-cell detector: write row: %w", err))
			return
		}
		d.count.IncMeasurementRows(1)
		d.metrics.AddRows("measurement", 1)

		if !seen {
			d.state.SetServingCell(e.ID, best.Cell)
			continue
		}
		if !changed {
			continue
		}

		total := d.count.IncDetectorHandover()
		d.metrics.IncHandoverDetected()
		d.state.SetServingCell(e.ID, best.Cell)

		ev := model.HandoverEvent{
			Time:       now,
			EntityID:   e.ID,
			SourceCell: prev,
			TargetCell: best.Cell,
			SignalDBm:  best.SignalDBm,
			DistanceM:  best.DistanceM,
			Total:      total,
		}

		d.log.Info(ctx, "handover detected",
			logging.Uint64("entity", uint64(e.ID)),
			logging.Uint64("source_cell", uint64(prev)),
			logging.Uint64("target_cell", uint64(best.Cell)),
			logging.Float64("signal_dbm", best.SignalDBm),
			logging.Uint64("total", total))

		if d.handover != nil {
			if err := d.handover.Write(ev); err != nil {
				d.loop.Fail(fmt.Errorf("serving-cell detector: handover log: %w", err))
				return
			}
		}
		if d.sink != nil {
			if err := d.sink.RecordHandover(ev); err != nil {
				d.log.Warn(ctx, "handover event not persisted",
					logging.Uint64("entity", uint64(e.ID)),
					logging.String("error", err.Error()))
			}
		}
	}

	d.metrics.ObserveTick(time.Since(started).Seconds())
	d.loop.ScheduleAfter(d.Interval, func() { d.tick(ctx) })
}
