package model

import "time"

// HandoverEvent records a detected change of serving cell for an entity.
// Events are append-only for the duration of a run.
type HandoverEvent struct {
	Time       time.Time
	EntityID   EntityID
	SourceCell CellID
	TargetCell CellID

	// SignalDBm and DistanceM describe the target cell at detection time.
	SignalDBm float64
	DistanceM float64

	// Total is the running detector-side handover count at the time this
	// event was recorded (this event included).
	Total uint64
}
