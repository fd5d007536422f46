package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/core"
)

func shortScenario() *core.Scenario {
	sc := core.StadiumScenario()
	sc.Duration = 3 * time.Second
	sc.PeriodicHorizon = 2500 * time.Millisecond
	return sc
}

func TestEngineRunsStadiumScenario(t *testing.T) {
	dir := t.TempDir()
	eng, err := New(Config{
		Scenario:       shortScenario(),
		RunID:          "test-run",
		OutputDir:      dir,
		EventStorePath: filepath.Join(dir, "events.db"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, runErr := eng.Run(context.Background())
	if closeErr := eng.Close(); closeErr != nil {
		t.Fatalf("Close: %v", closeErr)
	}
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}

	if summary.SimDuration != 3*time.Second {
		t.Fatalf("simulated %v, want 3s", summary.SimDuration)
	}
	// Every entity attaches exactly once during setup.
	if summary.ConnectionEstablishments != 14 {
		t.Fatalf("connections established = %d, want 14", summary.ConnectionEstablishments)
	}

	snap := summary.Counters
	if snap.PositionRows == 0 || snap.MeasurementRows == 0 || snap.FlowRows == 0 {
		t.Fatalf("empty output streams: %+v", snap)
	}
	if snap.UnresolvedFlows != 0 {
		t.Fatalf("stadium scenario produced %d unresolved flow samples", snap.UnresolvedFlows)
	}
	if !summary.EventStoreAvailable {
		t.Fatal("event store count missing from summary")
	}

	for _, name := range []string{"positions.csv", "measurements.csv", "flows.csv", "handovers.log", "events.db"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("missing output %s: %v", name, err)
		}
		if name != "handovers.log" && info.Size() == 0 {
			t.Fatalf("output %s is empty", name)
		}
	}
}

func TestEngineEntitiesSorted(t *testing.T) {
	eng, err := New(Config{Scenario: shortScenario(), RunID: "r", OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close()

	entities := eng.Entities()
	if len(entities) != 14 {
		t.Fatalf("entities = %d, want 14", len(entities))
	}
	for i := 1; i < len(entities); i++ {
		if entities[i-1].ID >= entities[i].ID {
			t.Fatal("entities not in ascending ID order")
		}
	}
}

func TestEngineRejectsNilScenario(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted a nil scenario")
	}
}
