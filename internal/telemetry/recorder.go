// Package telemetry hosts the periodic components that observe a run:
// position recording, serving-cell detection, flow-counter differencing,
// and the connectivity watchdog. Each component owns its own tick chain
// on the shared event loop.
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

// Recorder samples every entity's position on a fixed interval and
// appends one CSV row per sample. Entities are staggered so the rows
// do not all land on the same instant.
type Recorder struct {
	loop    *sched.EventLoop
	state   *kb.State
	pos     core.MobilityProvider
	writer  *simlog.PositionWriter
	count   *Counters
	metrics *observability.SimulationCollector
	log     logging.Logger
	horizon time.Time

	// Interval between samples per entity.
	Interval time.Duration
	// StaggerSlot spaces first samples (id mod StaggerSlots)·StaggerSlot apart.
	StaggerSlot  time.Duration
	StaggerSlots int
}

// NewRecorder constructs a recorder with the stadium defaults: 500 ms
// samples, staggered over five 100 ms slots.
func NewRecorder(loop *sched.EventLoop, state *kb.State, pos core.MobilityProvider, writer *simlog.PositionWriter, count *Counters, metrics *observability.SimulationCollector, log logging.Logger, horizon time.Time) *Recorder {
	if log == nil {
		log = logging.Noop()
	}
	return &Recorder{
		loop:         loop,
		state:        state,
		pos:          pos,
		writer:       writer,
		count:        count,
		metrics:      metrics,
		log:          log,
		horizon:      horizon,
		Interval:     500 * time.Millisecond,
		StaggerSlot:  100 * time.Millisecond,
		StaggerSlots: 5,
	}
}

// Start schedules the first sample of every known entity.
func (r *Recorder) Start(ctx context.Context) {
	for _, e := range r.state.Entities() {
		id := e.ID
		delay := time.Duration(uint64(id)%uint64(r.StaggerSlots)) * r.StaggerSlot
		r.loop.ScheduleAfter(delay, func() { r.tick(ctx, id) })
	}
}

func (r *Recorder) tick(ctx context.Context, id model.EntityID) {
	now := r.loop.Now()
	if !now.Before(r.horizon) {
		return
	}
	started := time.Now()

	pos, err := r.pos.Position(id)
	if err != nil {
		r.loop.Fail(fmt.Errorf("position recorder: entity %d: %w", id, err))
		return
	}
	vel, err := r.pos.Velocity(id)
	if err != nil {
		r.loop.Fail(fmt.Errorf("position recorder: entity %d: %w", id, err))
		return
	}

	if err := r.writer.WriteRow(now, id, pos, vel.Norm()); err != nil {
		r.loop.Fail(fmt.Errorf("position recorder: write row: %w", err))
		return
	}
	r.count.IncPositionRows(1)
	r.metrics.AddRows("position", 1)
	r.metrics.ObserveTick(time.Since(started).Seconds())
	r.log.Debug(ctx, "position sampled",
		logging.Int("entity_id", int(id)),
		logging.Float64("speed_mps", vel.Norm()),
	)

	r.loop.ScheduleAfter(r.Interval, func() { r.tick(ctx, id) })
}
