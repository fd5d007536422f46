package telemetry

import (
	"context"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/core"
	"github.com/signalsfoundry/stadium-telemetry/internal/logging"
	"github.com/signalsfoundry/stadium-telemetry/internal/observability"
	"github.com/signalsfoundry/stadium-telemetry/internal/sched"
	"github.com/signalsfoundry/stadium-telemetry/kb"
)

// Watchdog checks every mobile entity's uplink activity on a fixed
// interval and forces a re-attachment when an entity has been silent
// past the inactivity limit. An entity that has never shown activity
// counts as silent.
type Watchdog struct {
	loop    *sched.EventLoop
	state   *kb.State
	attach  core.AttachmentProvider
	count   *Counters
	metrics *observability.SimulationCollector
	log     logging.Logger
	horizon time.Time

	// Interval between checks.
	Interval time.Duration
	// InactivityLimit is how long an entity may stay silent before the
	// watchdog intervenes.
	InactivityLimit time.Duration
}

// NewWatchdog constructs a watchdog with the stadium defaults: checks
// every 2 s, intervening after 1.5 s of silence.
func NewWatchdog(loop *sched.EventLoop, state *kb.State, attach core.AttachmentProvider, count *Counters, metrics *observability.SimulationCollector, log logging.Logger, horizon time.Time) *Watchdog {
	if log == nil {
		log = logging.Noop()
	}
	return &Watchdog{
		loop:            loop,
		state:           state,
		attach:          attach,
		count:           count,
		metrics:         metrics,
		log:             log,
		horizon:         horizon,
		Interval:        2 * time.Second,
		InactivityLimit: 1500 * time.Millisecond,
	}
}

// Start schedules the first check one interval from now.
func (w *Watchdog) Start(ctx context.Context) {
	w.loop.ScheduleAfter(w.Interval, func() { w.tick(ctx) })
}

func (w *Watchdog) tick(ctx context.Context) {
	now := w.loop.Now()
	if !now.Before(w.horizon) {
		return
	}
	started := time.Now()

	cells := w.state.Cells()
	for _, e := range w.state.MobileEntities() {
		last, ok := w.state.LastActivity(e.ID)
		if ok && now.Sub(last) <= w.InactivityLimit {
			continue
		}

		silence := "never active"
		if ok {
			silence = now.Sub(last).String()
		}
		w.log.Warn(ctx, "entity silent past inactivity limit, forcing re-attachment",
			logging.Uint64("entity", uint64(e.ID)),
			logging.String("silence", silence),
			logging.Duration("limit", w.InactivityLimit))

		w.count.IncWatchdogReconnect()
		w.metrics.IncWatchdogReconnect()

		// Reset the stamp so one silent stretch triggers exactly one
		// intervention per limit window.
		w.state.SetLastActivity(e.ID, now)
		w.attach.AttachToBestCell(ctx, e.ID, cells)
	}

	w.metrics.ObserveTick(time.Since(started).Seconds())
	w.loop.ScheduleAfter(w.Interval, func() { w.tick(ctx) })
}
