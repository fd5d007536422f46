package core

import (
	"fmt"

	"github.com/signalsfoundry/stadium-telemetry/kb"
	"github.com/signalsfoundry/stadium-telemetry/model"
)

// MobilityProvider answers position and velocity queries per entity.
// Consumers treat a lookup failure as an unrecoverable precondition
// violation: a tick cannot proceed without a position.
type MobilityProvider interface {
	Position(id model.EntityID) (model.Vec3, error)
	Velocity(id model.EntityID) (model.Vec3, error)
}

// StateMobility reads kinematics from the shared simulation state, where
// the motion driver maintains them.
type StateMobility struct {
	State *kb.State
}

// Position implements MobilityProvider.
func (m *StateMobility) Position(id model.EntityID) (model.Vec3, error) {
	e := m.State.Entity(id)
	if e == nil {
		return model.Vec3{}, fmt.Errorf("no mobility data for entity %d", id)
	}
	return e.Position, nil
}

// Velocity implements MobilityProvider.
func (m *StateMobility) Velocity(id model.EntityID) (model.Vec3, error) {
	e := m.State.Entity(id)
	if e == nil {
		return model.Vec3{}, fmt.Errorf("no mobility data for entity %d", id)
	}
	return e.Velocity, nil
}
