// Package kb holds the shared simulation state: entities, cells, the
// per-entity serving-cell record, and the last-activity timestamps the
// watchdog polls. All keyed maps live here so ticks share one explicit
// state object instead of process-wide globals.
package kb

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/model"
)

// State is an in-memory, mutex-guarded store. The event loop is
// single-threaded, so ticks never contend; the lock exists for observers
// (metrics endpoint, final report) that may read from other goroutines.
type State struct {
	mu sync.RWMutex

	entities map[model.EntityID]*model.Entity
	cells    map[model.CellID]*model.Cell

	servingCell  map[model.EntityID]model.CellID
	lastActivity map[model.EntityID]time.Time

	addrIndex map[netip.Addr]model.EntityID
}

// NewState constructs an empty store.
func NewState() *State {
	return &State{
		entities:     make(map[model.EntityID]*model.Entity),
		cells:        make(map[model.CellID]*model.Cell),
		servingCell:  make(map[model.EntityID]model.CellID),
		lastActivity: make(map[model.EntityID]time.Time),
		addrIndex:    make(map[netip.Addr]model.EntityID),
	}
}

// AddEntity registers a new entity. It returns an error if the ID already
// exists or the entity's address collides with another entity's.
func (s *State) AddEntity(e *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[e.ID]; exists {
		return fmt.Errorf("entity %d already exists", e.ID)
	}
	if e.Addr.IsValid() {
		if owner, taken := s.addrIndex[e.Addr]; taken {
			return fmt.Errorf("address %s already assigned to entity %d", e.Addr, owner)
		}
		s.addrIndex[e.Addr] = e.ID
	}
	// Store the pointer so the motion driver can update kinematics in place.
	s.entities[e.ID] = e
	return nil
}

// AddCell registers a new cell. It returns an error if the ID already exists.
func (s *State) AddCell(c *model.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cells[c.ID]; exists {
		return fmt.Errorf("cell %d already exists", c.ID)
	}
	s.cells[c.ID] = c
	return nil
}

// Entity returns the entity with the given ID, or nil if not found.
func (s *State) Entity(id model.EntityID) *model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[id]
}

// Cell returns the cell with the given ID, or nil if not found.
func (s *State) Cell(id model.CellID) *model.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cells[id]
}

// Entities returns all entities in ascending ID order. Deterministic
// iteration keeps tick scheduling and log output reproducible.
func (s *State) Entities() []*model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*model.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// MobileEntities returns the mobile subset in ascending ID order.
func (s *State) MobileEntities() []*model.Entity {
	all := s.Entities()
	res := all[:0]
	for _, e := range all {
		if e.Role == model.RoleMobile {
			res = append(res, e)
		}
	}
	return res
}

// Cells returns all cells in ascending ID order.
func (s *State) Cells() []*model.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*model.Cell, 0, len(s.cells))
	for _, c := range s.cells {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ServingCell returns the recorded serving cell for an entity. The second
// return is false before the first measurement stores one.
func (s *State) ServingCell(id model.EntityID) (model.CellID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.servingCell[id]
	return c, ok
}

// SetServingCell overwrites the serving-cell record for an entity. At most
// one value is stored per entity at any instant.
func (s *State) SetServingCell(id model.EntityID, cell model.CellID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servingCell[id] = cell
}

// LastActivity returns the simulated time of the most recent observed
// uplink traffic for an entity. The second return is false if the entity
// has never been observed active.
func (s *State) LastActivity(id model.EntityID) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastActivity[id]
	return t, ok
}

// SetLastActivity records uplink activity for an entity at time t.
func (s *State) SetLastActivity(id model.EntityID, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity[id] = t
}

// ResolveAddr maps an address back to the owning entity. The second return
// is false when the address belongs to no known entity; callers fall back
// to model.UnresolvedEntity.
func (s *State) ResolveAddr(addr netip.Addr) (model.EntityID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.addrIndex[addr]
	return id, ok
}

// Counts reports the number of entities and cells, for gauges.
func (s *State) Counts() (entities, cells int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities), len(s.cells)
}
