package core

import (
	"context"
	"math"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/internal/logging"
	"github.com/signalsfoundry/stadium-telemetry/internal/sched"
	"github.com/signalsfoundry/stadium-telemetry/model"
)

// MotionModel updates an entity's kinematic state for a given simulation time.
type MotionModel interface {
	UpdateKinematics(simTime time.Time, e *model.Entity)
}

// StaticMotionModel leaves the entity where it is.
type StaticMotionModel struct{}

// UpdateKinematics for static motion only zeroes the velocity.
func (m *StaticMotionModel) UpdateKinematics(simTime time.Time, e *model.Entity) {
	e.Velocity = model.Vec3{}
}

// CircularMotionModel drives an entity on a circle around the field
// centre at constant angular speed. The phase angle is per-entity state
// fixed at construction time, so position is a pure function of the
// simulation clock.
type CircularMotionModel struct {
	RadiusM      float64
	HeightM      float64
	SpeedMps     float64
	InitialAngle float64

	start time.Time
}

// NewCircularMotionModel constructs a circular model anchored at the
// simulation epoch. Entity i of n starts at phase i·2π/n.
func NewCircularMotionModel(start time.Time, radiusM, heightM, speedMps, initialAngle float64) *CircularMotionModel {
	return &CircularMotionModel{
		RadiusM:      radiusM,
		HeightM:      heightM,
		SpeedMps:     speedMps,
		InitialAngle: initialAngle,
		start:        start,
	}
}

// AngularSpeed returns ω = v/R in radians per second.
func (m *CircularMotionModel) AngularSpeed() float64 {
	if m.RadiusM == 0 {
		return 0
	}
	return m.SpeedMps / m.RadiusM
}

// UpdateKinematics places the entity at its parameterized angle for
// simTime and sets the tangential velocity, whose norm is exactly R·ω.
func (m *CircularMotionModel) UpdateKinematics(simTime time.Time, e *model.Entity) {
	omega := m.AngularSpeed()
	theta := m.InitialAngle + omega*simTime.Sub(m.start).Seconds()

	e.Position = model.Vec3{
		X: m.RadiusM * math.Cos(theta),
		Y: m.RadiusM * math.Sin(theta),
		Z: m.HeightM,
	}
	e.Velocity = model.Vec3{
		X: -m.RadiusM * omega * math.Sin(theta),
		Y: m.RadiusM * omega * math.Cos(theta),
		Z: 0,
	}
}

// MotionDriver periodically applies motion models to their entities. Each
// entity's tick is staggered by a per-entity start offset so position
// updates do not all land on the same scheduler instant.
type MotionDriver struct {
	loop    sched.Scheduler
	log     logging.Logger
	models  map[model.EntityID]MotionModel
	byID    map[model.EntityID]*model.Entity
	horizon time.Time

	// Interval between kinematic updates per entity.
	Interval time.Duration
	// StartDelay is the base delay before the first update; entity k
	// (in registration order) starts at StartDelay + k·StartStagger.
	StartDelay   time.Duration
	StartStagger time.Duration

	order []model.EntityID
}

// NewMotionDriver constructs a driver with the stadium defaults: 500 ms
// updates beginning at 800 ms, staggered 125 ms apart.
func NewMotionDriver(loop sched.Scheduler, log logging.Logger, horizon time.Time) *MotionDriver {
	if log == nil {
		log = logging.Noop()
	}
	return &MotionDriver{
		loop:         loop,
		log:          log,
		models:       make(map[model.EntityID]MotionModel),
		byID:         make(map[model.EntityID]*model.Entity),
		horizon:      horizon,
		Interval:     500 * time.Millisecond,
		StartDelay:   800 * time.Millisecond,
		StartStagger: 125 * time.Millisecond,
	}
}

// Register binds a motion model to an entity. Registration order fixes
// the stagger sequence.
func (d *MotionDriver) Register(e *model.Entity, m MotionModel) {
	d.models[e.ID] = m
	d.byID[e.ID] = e
	d.order = append(d.order, e.ID)
}

// Start applies every model once at the current time, then schedules the
// staggered recurring updates.
func (d *MotionDriver) Start(ctx context.Context) {
	now := d.loop.Now()
	for k, id := range d.order {
		e := d.byID[id]
		d.models[id].UpdateKinematics(now, e)

		delay := d.StartDelay + time.Duration(k)*d.StartStagger
		id := id
		d.loop.ScheduleAfter(delay, func() { d.tick(ctx, id) })
	}
}

func (d *MotionDriver) tick(ctx context.Context, id model.EntityID) {
	now := d.loop.Now()
	if !now.Before(d.horizon) {
		return
	}

	e := d.byID[id]
	d.models[id].UpdateKinematics(now, e)
	d.log.Debug(ctx, "kinematics updated",
		logging.Uint64("entity", uint64(e.ID)),
		logging.Float64("x", e.Position.X),
		logging.Float64("y", e.Position.Y),
	)

	d.loop.ScheduleAfter(d.Interval, func() { d.tick(ctx, id) })
}
