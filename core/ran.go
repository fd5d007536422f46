package core

import (
	"context"
	"sync"

	"github.com/signalsfoundry/stadium-telemetry/internal/logging"
	"github.com/signalsfoundry/stadium-telemetry/kb"
	"github.com/signalsfoundry/stadium-telemetry/model"
)

// CompletedHandover is reported by the attachment layer when a forced
// (re)association lands an entity on a different cell than it was on.
type CompletedHandover struct {
	EntityID   model.EntityID
	SourceCell model.CellID
	TargetCell model.CellID
}

// AttachmentProvider forces (re)association of a single entity to the best
// currently available cell. Side effect only; callers consume no return.
type AttachmentProvider interface {
	AttachToBestCell(ctx context.Context, id model.EntityID, candidates []*model.Cell)
}

// RAN is the radio-access collaborator stub. It owns initial attachment
// of every entity and services the watchdog's forced reattachments. When
// an attach moves an entity between cells it notifies completed-handover
// subscribers; that feeds the protocol-side handover counter, which is
// deliberately independent of the detector's own count.
type RAN struct {
	state  *kb.State
	signal *SignalModel
	log    logging.Logger

	mu          sync.Mutex
	established uint64
	onCompleted []func(CompletedHandover)
}

// NewRAN constructs the attachment stub over the shared state.
func NewRAN(state *kb.State, signal *SignalModel, log logging.Logger) *RAN {
	if log == nil {
		log = logging.Noop()
	}
	return &RAN{state: state, signal: signal, log: log}
}

// OnHandoverCompleted registers a callback invoked after each attach that
// changed the serving cell.
func (r *RAN) OnHandoverCompleted(fn func(CompletedHandover)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCompleted = append(r.onCompleted, fn)
}

// AttachAll associates every known entity with its best cell at setup.
func (r *RAN) AttachAll(ctx context.Context) {
	cells := r.state.Cells()
	for _, e := range r.state.Entities() {
		r.AttachToBestCell(ctx, e.ID, cells)
	}
}

// AttachToBestCell implements AttachmentProvider. With no reachable
// candidate the call has no effect: best-effort, no error state.
func (r *RAN) AttachToBestCell(ctx context.Context, id model.EntityID, candidates []*model.Cell) {
	e := r.state.Entity(id)
	if e == nil {
		return
	}
	best, ok := r.signal.BestCell(e.Position, candidates)
	if !ok {
		r.log.Warn(ctx, "attach requested with no candidate cells",
			logging.Uint64("entity", uint64(id)))
		return
	}

	prev, had := r.state.ServingCell(id)
	r.state.SetServingCell(id, best.Cell)

	switch {
	case !had:
		r.mu.Lock()
		r.established++
		r.mu.Unlock()
		r.log.Info(ctx, "initial attach",
			logging.Uint64("entity", uint64(id)),
			logging.Uint64("cell", uint64(best.Cell)),
			logging.Float64("signal_dbm", best.SignalDBm))
	case prev != best.Cell:
		done := CompletedHandover{EntityID: id, SourceCell: prev, TargetCell: best.Cell}
		r.mu.Lock()
		subs := append([]func(CompletedHandover){}, r.onCompleted...)
		r.mu.Unlock()
		for _, fn := range subs {
			fn(done)
		}
		r.log.Info(ctx, "attach moved entity between cells",
			logging.Uint64("entity", uint64(id)),
			logging.Uint64("source", uint64(prev)),
			logging.Uint64("target", uint64(best.Cell)))
	}
}

// ConnectionEstablishments returns how many first-time attaches occurred.
func (r *RAN) ConnectionEstablishments() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.established
}
