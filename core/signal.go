package core

import (
	"math"
	"sort"

	"github.com/signalsfoundry/stadium-telemetry/model"
)

// SignalModel computes the distance-derived signal-strength proxy used by
// the handover detector and the attachment provider. The path-loss
// constants follow the simplified 3GPP UMi formula the measurement layer
// has always used; the proxy exists to give a monotonic distance-vs-signal
// relationship, not an engineering-grade link budget.
type SignalModel struct {
	// FrequencyGHz is the carrier frequency entering the path-loss term.
	FrequencyGHz float64
}

// NewSignalModel returns a model at the stadium deployment's 3.7 GHz band.
func NewSignalModel() *SignalModel {
	return &SignalModel{FrequencyGHz: 3.7}
}

// SignalDBm returns the received-power proxy in dBm for an entity at pos
// served by cell. The proxy is strictly decreasing in distance for fixed
// transmit power. Distances below one metre are clamped so the logarithm
// stays bounded.
func (m *SignalModel) SignalDBm(pos model.Vec3, cell *model.Cell) (signalDBm, distanceM float64) {
	distanceM = pos.DistanceTo(cell.Position)
	d := distanceM
	if d < 1 {
		d = 1
	}
	pathLoss := 32.4 + 21*math.Log10(d) + 20*math.Log10(m.FrequencyGHz)
	return cell.TxPowerDBm - pathLoss, distanceM
}

// Measurement is one entity/cell signal evaluation.
type Measurement struct {
	Cell      model.CellID
	SignalDBm float64
	DistanceM float64
}

// BestCell evaluates the proxy against every candidate and returns the
// measurement of the cell maximizing it. Candidates are evaluated in
// ascending cell-ID order with a strict greater-than comparison, so ties
// deterministically resolve to the lowest cell ID. The second return is
// false when the candidate set is empty.
func (m *SignalModel) BestCell(pos model.Vec3, cells []*model.Cell) (Measurement, bool) {
	if len(cells) == 0 {
		return Measurement{}, false
	}

	ordered := make([]*model.Cell, len(cells))
	copy(ordered, cells)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	best := Measurement{SignalDBm: math.Inf(-1)}
	for _, c := range ordered {
		sig, dist := m.SignalDBm(pos, c)
		if sig > best.SignalDBm {
			best = Measurement{Cell: c.ID, SignalDBm: sig, DistanceM: dist}
		}
	}
	return best, true
}
