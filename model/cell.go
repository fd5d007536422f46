package model

// CellID identifies a radio access point.
type CellID uint32

// Cell is a fixed radio access point an entity can be served by. Cells are
// created once at setup and never move or disappear during a run.
type Cell struct {
	ID   CellID
	Name string

	Position Vec3

	// TxPowerDBm is the transmit power used by the signal-proxy
	// estimator. All cells in the simplified model differ only in
	// position and power.
	TxPowerDBm float64
}
