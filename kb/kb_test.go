package kb

import (
	"net/netip"
	"testing"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/model"
)

func TestAddEntityRejectsDuplicates(t *testing.T) {
	s := NewState()

	e := &model.Entity{ID: 1, Role: model.RoleMobile, Addr: netip.MustParseAddr("10.7.0.1")}
	if err := s.AddEntity(e); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if err := s.AddEntity(&model.Entity{ID: 1}); err == nil {
		t.Fatal("expected duplicate-ID error")
	}
	if err := s.AddEntity(&model.Entity{ID: 2, Addr: netip.MustParseAddr("10.7.0.1")}); err == nil {
		t.Fatal("expected duplicate-address error")
	}
}

func TestEntitiesSortedByID(t *testing.T) {
	s := NewState()
	for _, id := range []model.EntityID{7, 2, 5, 1} {
		if err := s.AddEntity(&model.Entity{ID: id}); err != nil {
			t.Fatalf("AddEntity(%d): %v", id, err)
		}
	}

	got := s.Entities()
	for i := 1; i < len(got); i++ {
		if got[i-1].ID >= got[i].ID {
			t.Fatalf("entities not in ascending ID order: %v then %v", got[i-1].ID, got[i].ID)
		}
	}
}

func TestServingCellLifecycle(t *testing.T) {
	s := NewState()
	if err := s.AddEntity(&model.Entity{ID: 3}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	if _, ok := s.ServingCell(3); ok {
		t.Fatal("serving cell set before first measurement")
	}
	s.SetServingCell(3, 2)
	cell, ok := s.ServingCell(3)
	if !ok || cell != 2 {
		t.Fatalf("ServingCell = (%v, %v), want (2, true)", cell, ok)
	}
	s.SetServingCell(3, 4)
	if cell, _ := s.ServingCell(3); cell != 4 {
		t.Fatalf("serving cell not overwritten, got %v", cell)
	}
}

func TestResolveAddr(t *testing.T) {
	s := NewState()
	addr := netip.MustParseAddr("10.7.0.9")
	if err := s.AddEntity(&model.Entity{ID: 9, Addr: addr}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	id, ok := s.ResolveAddr(addr)
	if !ok || id != 9 {
		t.Fatalf("ResolveAddr = (%v, %v), want (9, true)", id, ok)
	}
	if _, ok := s.ResolveAddr(netip.MustParseAddr("192.0.2.1")); ok {
		t.Fatal("resolved an address no entity owns")
	}
}

func TestLastActivity(t *testing.T) {
	s := NewState()
	if _, ok := s.LastActivity(1); ok {
		t.Fatal("entity reported active before any traffic")
	}
	now := time.Date(2024, 6, 1, 12, 0, 1, 0, time.UTC)
	s.SetLastActivity(1, now)
	got, ok := s.LastActivity(1)
	if !ok || !got.Equal(now) {
		t.Fatalf("LastActivity = (%v, %v), want (%v, true)", got, ok, now)
	}
}
