package model

import "net/netip"

// EntityID identifies a tracked user terminal. IDs are assigned once at
// scenario setup and never reused during a run.
type EntityID uint32

// UnresolvedEntity is the sentinel reported when a flow address cannot be
// mapped back to an entity. Rows carrying it are still logged; the
// differencer additionally raises a warning and a counter so the
// misattribution is visible rather than silent.
const UnresolvedEntity EntityID = 0

// Role distinguishes terminals that move from terminals that do not.
type Role int

const (
	RoleStatic Role = iota
	RoleMobile
)

func (r Role) String() string {
	if r == RoleMobile {
		return "mobile"
	}
	return "static"
}

// Entity represents a user terminal in the simulation: identity, current
// kinematic state, and its assigned address. Position and velocity are in
// metres / metres-per-second, updated in place by the motion driver.
type Entity struct {
	ID   EntityID
	Name string
	Role Role

	Position Vec3
	Velocity Vec3

	// Addr is the terminal's address inside the entity address block,
	// used to classify flow direction and to reverse-map flows to owners.
	Addr netip.Addr
}

// Speed returns the scalar speed, the Euclidean norm of the velocity.
func (e *Entity) Speed() float64 {
	return e.Velocity.Norm()
}
