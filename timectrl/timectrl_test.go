package timectrl

import (
	"testing"
	"time"
)

func TestVirtualClockAdvance(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewVirtualClock(start)

	if !clock.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", clock.Now(), start)
	}

	t1 := start.Add(500 * time.Millisecond)
	clock.AdvanceTo(t1)
	if !clock.Now().Equal(t1) {
		t.Fatalf("Now() after advance = %v, want %v", clock.Now(), t1)
	}
	if got := clock.Elapsed(); got != 500*time.Millisecond {
		t.Fatalf("Elapsed() = %v, want 500ms", got)
	}
}

func TestVirtualClockNeverMovesBackwards(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewVirtualClock(start)

	t1 := start.Add(2 * time.Second)
	clock.AdvanceTo(t1)
	clock.AdvanceTo(start.Add(1 * time.Second))

	if !clock.Now().Equal(t1) {
		t.Fatalf("clock moved backwards: Now() = %v, want %v", clock.Now(), t1)
	}
}
