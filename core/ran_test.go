package core

import (
	"context"
	"testing"

	"github.com/signalsfoundry/stadium-telemetry/kb"
	"github.com/signalsfoundry/stadium-telemetry/model"
)

func ranFixture(t *testing.T) (*kb.State, *RAN) {
	t.Helper()
	state := kb.NewState()
	for _, c := range []*model.Cell{
		{ID: 1, Position: model.Vec3{X: 100}, TxPowerDBm: 35},
		{ID: 2, Position: model.Vec3{X: -100}, TxPowerDBm: 35},
	} {
		if err := state.AddCell(c); err != nil {
			t.Fatalf("AddCell: %v", err)
		}
	}
	return state, NewRAN(state, NewSignalModel(), nil)
}

func TestAttachAllEstablishesConnections(t *testing.T) {
	state, ran := ranFixture(t)
	for id := model.EntityID(1); id <= 3; id++ {
		if err := state.AddEntity(&model.Entity{ID: id, Position: model.Vec3{X: 50}}); err != nil {
			t.Fatalf("AddEntity: %v", err)
		}
	}

	ran.AttachAll(context.Background())

	if got := ran.ConnectionEstablishments(); got != 3 {
		t.Fatalf("ConnectionEstablishments = %d, want 3", got)
	}
	for id := model.EntityID(1); id <= 3; id++ {
		cell, ok := state.ServingCell(id)
		if !ok || cell != 1 {
			t.Fatalf("entity %d serving cell = (%v, %v), want (1, true)", id, cell, ok)
		}
	}
}

func TestReattachReportsCompletedHandover(t *testing.T) {
	state, ran := ranFixture(t)
	e := &model.Entity{ID: 1, Position: model.Vec3{X: 50}}
	if err := state.AddEntity(e); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	var completed []CompletedHandover
	ran.OnHandoverCompleted(func(h CompletedHandover) { completed = append(completed, h) })

	ctx := context.Background()
	cells := state.Cells()
	ran.AttachToBestCell(ctx, 1, cells)
	if len(completed) != 0 {
		t.Fatalf("initial attach reported a handover: %+v", completed)
	}

	// Same position, same best cell: a reattach is not a handover.
	ran.AttachToBestCell(ctx, 1, cells)
	if len(completed) != 0 {
		t.Fatalf("same-cell reattach reported a handover: %+v", completed)
	}

	e.Position = model.Vec3{X: -50}
	ran.AttachToBestCell(ctx, 1, cells)
	if len(completed) != 1 {
		t.Fatalf("got %d completed handovers, want 1", len(completed))
	}
	if completed[0].SourceCell != 1 || completed[0].TargetCell != 2 {
		t.Fatalf("handover = %+v, want source 1 target 2", completed[0])
	}
	if got := ran.ConnectionEstablishments(); got != 1 {
		t.Fatalf("ConnectionEstablishments = %d, want 1", got)
	}
}

func TestAttachWithoutCandidatesIsNoOp(t *testing.T) {
	state, ran := ranFixture(t)
	if err := state.AddEntity(&model.Entity{ID: 1}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	ran.AttachToBestCell(context.Background(), 1, nil)
	if _, ok := state.ServingCell(1); ok {
		t.Fatal("no-candidate attach set a serving cell")
	}
}
