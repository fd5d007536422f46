// Package engine assembles one simulation run: shared state, the event
// loop, motion, traffic, the radio stub, and the telemetry components,
// then drives the loop to the configured end time.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/core"
	"github.com/signalsfoundry/stadium-telemetry/internal/eventstore"
	"github.com/signalsfoundry/stadium-telemetry/internal/logging"
	"github.com/signalsfoundry/stadium-telemetry/internal/observability"
	"github.com/signalsfoundry/stadium-telemetry/internal/report"
	"github.com/signalsfoundry/stadium-telemetry/internal/sched"
	"github.com/signalsfoundry/stadium-telemetry/internal/simlog"
	"github.com/signalsfoundry/stadium-telemetry/internal/telemetry"
	"github.com/signalsfoundry/stadium-telemetry/kb"
	"github.com/signalsfoundry/stadium-telemetry/model"
	"github.com/signalsfoundry/stadium-telemetry/timectrl"
)

// Config carries everything New needs to assemble a run.
type Config struct {
	Scenario *core.Scenario
	RunID    string

	// OutputDir receives the CSV streams and the handover narrative.
	OutputDir string
	// EventStorePath enables the SQLite event store when non-empty.
	EventStorePath string

	Log     logging.Logger
	Metrics *observability.SimulationCollector
}

// Engine is one fully wired simulation run.
type Engine struct {
	cfg   Config
	epoch time.Time

	clock *timectrl.VirtualClock
	loop  *sched.EventLoop
	state *kb.State

	motion  *core.MotionDriver
	traffic *core.TrafficModel
	ran     *core.RAN

	recorder *telemetry.Recorder
	detector *telemetry.Detector
	flowdiff *telemetry.FlowDiff
	watchdog *telemetry.Watchdog

	counters  *telemetry.Counters
	collector *report.Collector

	positions    *simlog.PositionWriter
	measurements *simlog.MeasurementWriter
	flows        *simlog.FlowWriter
	handoverLog  *simlog.HandoverLog
	store        *eventstore.Store

	outputs []string
}

// New assembles a run from the scenario: populates shared state, opens
// the output streams, and wires the periodic components. Call Close
// when done regardless of whether Run was reached.
func New(cfg Config) (*Engine, error) {
	if cfg.Scenario == nil {
		return nil, fmt.Errorf("engine: nil scenario")
	}
	if cfg.Log == nil {
		cfg.Log = logging.Noop()
	}

	sc := cfg.Scenario
	epoch := time.Unix(0, 0).UTC()
	clock := timectrl.NewVirtualClock(epoch)

	e := &Engine{
		cfg:       cfg,
		epoch:     epoch,
		clock:     clock,
		loop:      sched.NewEventLoop(clock),
		state:     kb.NewState(),
		counters:  telemetry.NewCounters(),
		collector: report.NewCollector(),
	}

	for _, c := range sc.Cells {
		cell := &model.Cell{
			ID:         model.CellID(c.ID),
			Name:       c.Name,
			Position:   model.Vec3{X: c.X, Y: c.Y, Z: c.Z},
			TxPowerDBm: c.TxPowerDBm,
		}
		if err := e.state.AddCell(cell); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}

	horizon := epoch.Add(sc.PeriodicHorizon)
	signal := core.NewSignalModel()

	e.motion = core.NewMotionDriver(e.loop, cfg.Log, horizon)
	e.motion.Interval = sc.RecorderInterval

	for _, se := range sc.Entities {
		role := model.RoleStatic
		if se.Mobile {
			role = model.RoleMobile
		}
		ent := &model.Entity{
			ID:       model.EntityID(se.ID),
			Name:     se.Name,
			Role:     role,
			Position: model.Vec3{X: se.X, Y: se.Y, Z: se.Z},
			Addr:     se.Addr,
		}
		if err := e.state.AddEntity(ent); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if se.Mobile {
			e.motion.Register(ent, core.NewCircularMotionModel(epoch, se.RadiusM, se.HeightM, se.SpeedMps, se.InitialAngle))
		} else {
			e.motion.Register(ent, &core.StaticMotionModel{})
		}
	}

	e.traffic = core.NewTrafficModel(clock)
	for _, f := range sc.Flows {
		e.traffic.AddFlow(model.FlowID(f.ID), model.FlowKey{Src: f.Src, Dst: f.Dst}, core.TrafficProfile{
			RateBps:       f.RateBps,
			PacketBytes:   f.PacketBytes,
			Start:         epoch.Add(f.Start),
			DelayPerPkt:   f.DelayPerPkt,
			JitterPerPkt:  f.JitterPerPkt,
			LossPerPacket: f.Loss,
		})
	}

	if err := e.openOutputs(epoch); err != nil {
		e.Close()
		return nil, err
	}

	e.ran = core.NewRAN(e.state, signal, cfg.Log)
	e.ran.OnHandoverCompleted(func(core.CompletedHandover) {
		e.counters.IncReportedHandover()
		cfg.Metrics.IncHandoverReported()
	})

	mobility := &core.StateMobility{State: e.state}

	e.recorder = telemetry.NewRecorder(e.loop, e.state, mobility, e.positions, e.counters, cfg.Metrics, cfg.Log, horizon)
	e.recorder.Interval = sc.RecorderInterval

	var sink telemetry.HandoverSink
	if e.store != nil {
		sink = e.store
	}
	e.detector = telemetry.NewDetector(e.loop, e.state, mobility, signal, e.measurements, e.handoverLog, sink, e.counters, cfg.Metrics, cfg.Log, horizon)
	e.detector.Interval = sc.DetectorInterval
	e.detector.Samples = e.collector

	e.flowdiff = telemetry.NewFlowDiff(e.loop, e.state, e.traffic, e.flows, e.counters, cfg.Metrics, cfg.Log, sc.EntityAddrBlock)
	e.flowdiff.Interval = sc.DifferenceInterval
	e.flowdiff.Samples = e.collector

	e.watchdog = telemetry.NewWatchdog(e.loop, e.state, e.ran, e.counters, cfg.Metrics, cfg.Log, horizon)
	e.watchdog.Interval = sc.WatchdogInterval
	e.watchdog.InactivityLimit = sc.InactivityLimit

	entities, cells := e.state.Counts()
	cfg.Metrics.SetScenarioCounts(entities, cells)

	return e, nil
}

func (e *Engine) openOutputs(epoch time.Time) error {
	dir := e.cfg.OutputDir
	if dir == "" {
		dir = "."
	}

	var err error
	posPath := filepath.Join(dir, "positions.csv")
	if e.positions, err = simlog.OpenPositionWriter(posPath, epoch); err != nil {
		return err
	}
	e.outputs = append(e.outputs, posPath)

	measPath := filepath.Join(dir, "measurements.csv")
	if e.measurements, err = simlog.OpenMeasurementWriter(measPath, epoch); err != nil {
		return err
	}
	e.outputs = append(e.outputs, measPath)

	flowPath := filepath.Join(dir, "flows.csv")
	if e.flows, err = simlog.OpenFlowWriter(flowPath, epoch); err != nil {
		return err
	}
	e.outputs = append(e.outputs, flowPath)

	hoPath := filepath.Join(dir, "handovers.log")
	if e.handoverLog, err = simlog.OpenHandoverLog(hoPath, epoch); err != nil {
		return err
	}
	e.outputs = append(e.outputs, hoPath)

	if e.cfg.EventStorePath != "" {
		if e.store, err = eventstore.Open(e.cfg.EventStorePath, e.cfg.RunID, epoch); err != nil {
			return err
		}
		e.outputs = append(e.outputs, e.cfg.EventStorePath)
	}
	return nil
}

// Run performs the initial attachments, starts every periodic component,
// and drives the event loop to the scenario end. It returns the run
// summary even when the loop stopped on a failure.
func (e *Engine) Run(ctx context.Context) (report.Summary, error) {
	sc := e.cfg.Scenario
	wallStart := time.Now()

	e.motion.Start(ctx)
	e.ran.AttachAll(ctx)
	e.recorder.Start(ctx)
	e.detector.Start(ctx)
	e.flowdiff.Start(ctx)
	e.watchdog.Start(ctx)

	e.cfg.Log.Info(ctx, "run starting",
		logging.String("run_id", e.cfg.RunID),
		logging.String("scenario", sc.Name),
		logging.Duration("duration", sc.Duration))

	err := e.loop.Run(e.epoch.Add(sc.Duration))

	s := report.Summary{
		RunID:                    e.cfg.RunID,
		Scenario:                 sc.Name,
		SimDuration:              e.clock.Elapsed(),
		WallDuration:             time.Since(wallStart),
		Counters:                 e.counters.Snapshot(),
		ConnectionEstablishments: e.ran.ConnectionEstablishments(),
		OutputFiles:              append([]string(nil), e.outputs...),
	}
	if e.store != nil {
		if n, storeErr := e.store.HandoverCount(); storeErr == nil {
			s.StoredHandovers = n
			s.EventStoreAvailable = true
		}
	}
	return s, err
}

// Collector exposes the per-entity sample aggregates for rendering.
func (e *Engine) Collector() *report.Collector { return e.collector }

// Entities lists the run's entities in ascending ID order.
func (e *Engine) Entities() []*model.Entity { return e.state.Entities() }

// Close flushes and closes every output stream. Safe on a partially
// constructed engine.
func (e *Engine) Close() error {
	var first error
	closeAll := []func() error{}
	if e.positions != nil {
		closeAll = append(closeAll, e.positions.Close)
	}
	if e.measurements != nil {
		closeAll = append(closeAll, e.measurements.Close)
	}
	if e.flows != nil {
		closeAll = append(closeAll, e.flows.Close)
	}
	if e.handoverLog != nil {
		closeAll = append(closeAll, e.handoverLog.Close)
	}
	if e.store != nil {
		closeAll = append(closeAll, e.store.Close)
	}
	for _, fn := range closeAll {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
