// Package simlog writes the per-run output files: three CSV streams
// (positions, radio measurements, flow statistics) and a narrative
// handover log meant for humans.
package simlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/model"
)

// seconds renders a simulation instant as seconds since the run start.
func seconds(start, t time.Time) string {
	return strconv.FormatFloat(t.Sub(start).Seconds(), 'f', 3, 64)
}

// PositionWriter appends one row per entity position sample.
type PositionWriter struct {
	f *os.File
	w *csv.Writer

	start time.Time
}

// OpenPositionWriter creates (or truncates) the position CSV and
// writes its header. The returned writer must be Closed.
func OpenPositionWriter(path string, start time.Time) (*PositionWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("simlog: open position log: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"Time", "EntityId", "X", "Y", "Z", "Speed_ms"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("simlog: position header: %w", err)
	}
	return &PositionWriter{f: f, w: w, start: start}, nil
}

// WriteRow appends one position sample.
func (p *PositionWriter) WriteRow(t time.Time, id model.EntityID, pos model.Vec3, speed float64) error {
	return p.w.Write([]string{
		seconds(p.start, t),
		strconv.FormatUint(uint64(id), 10),
		strconv.FormatFloat(pos.X, 'f', 2, 64),
		strconv.FormatFloat(pos.Y, 'f', 2, 64),
		strconv.FormatFloat(pos.Z, 'f', 2, 64),
		strconv.FormatFloat(speed, 'f', 2, 64),
	})
}

// Close flushes buffered rows and closes the file.
func (p *PositionWriter) Close() error {
	p.w.Flush()
	if err := p.w.Error(); err != nil {
		p.f.Close()
		return err
	}
	return p.f.Close()
}

// MeasurementWriter appends one row per link-quality evaluation.
type MeasurementWriter struct {
	f *os.File
	w *csv.Writer

	start time.Time
}

// OpenMeasurementWriter creates the measurement CSV and writes its header.
func OpenMeasurementWriter(path string, start time.Time) (*MeasurementWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("simlog: open measurement log: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"Time", "EntityId", "BestCellId", "SignalLevel_dBm", "Distance_m", "HandoverEvent"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("simlog: measurement header: %w", err)
	}
	return &MeasurementWriter{f: f, w: w, start: start}, nil
}

// WriteRow appends one measurement. handover marks rows on which the
// best cell changed from the previously observed one.
func (m *MeasurementWriter) WriteRow(t time.Time, id model.EntityID, cell model.CellID, signalDBm, distanceM float64, handover bool) error {
	ev := "NO"
	if handover {
		ev = "YES"
	}
	return m.w.Write([]string{
		seconds(m.start, t),
		strconv.FormatUint(uint64(id), 10),
		strconv.FormatUint(uint64(cell), 10),
		strconv.FormatFloat(signalDBm, 'f', 2, 64),
		strconv.FormatFloat(distanceM, 'f', 2, 64),
		ev,
	})
}

// Close flushes buffered rows and closes the file.
func (m *MeasurementWriter) Close() error {
	m.w.Flush()
	if err := m.w.Error(); err != nil {
		m.f.Close()
		return err
	}
	return m.f.Close()
}

// FlowRow is one interval's worth of per-flow statistics.
type FlowRow struct {
	Time           time.Time
	EntityID       model.EntityID
	FlowID         model.FlowID
	Direction      model.Direction
	Src, Dst       string
	ThroughputKbps float64
	LatencyMs      float64
	JitterMs       float64
	LostPackets    uint64
}

// FlowWriter appends one row per flow per differencing interval in
// which traffic was seen.
type FlowWriter struct {
	f *os.File
	w *csv.Writer

	start time.Time
}

// OpenFlowWriter creates the flow CSV and writes its header.
func OpenFlowWriter(path string, start time.Time) (*FlowWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("simlog: open flow log: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"Time", "EntityId", "FlowId", "Direction", "SrcAddr", "DstAddr", "Throughput_kbps", "Latency_ms", "Jitter_ms", "PacketLoss"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("simlog: flow header: %w", err)
	}
	return &FlowWriter{f: f, w: w, start: start}, nil
}

// WriteRow appends one flow-interval row.
func (fw *FlowWriter) WriteRow(r FlowRow) error {
	return fw.w.Write([]string{
		seconds(fw.start, r.Time),
		strconv.FormatUint(uint64(r.EntityID), 10),
		strconv.FormatUint(uint64(r.FlowID), 10),
		r.Direction.String(),
		r.Src,
		r.Dst,
		strconv.FormatFloat(r.ThroughputKbps, 'f', 2, 64),
		strconv.FormatFloat(r.LatencyMs, 'f', 3, 64),
		strconv.FormatFloat(r.JitterMs, 'f', 3, 64),
		strconv.FormatUint(r.LostPackets, 10),
	})
}

// Close flushes buffered rows and closes the file.
func (fw *FlowWriter) Close() error {
	fw.w.Flush()
	if err := fw.w.Error(); err != nil {
		fw.f.Close()
		return err
	}
	return fw.f.Close()
}

// HandoverLog is the human-readable handover narrative.
type HandoverLog struct {
	f     io.WriteCloser
	start time.Time
}

// OpenHandoverLog creates the narrative handover text log.
func OpenHandoverLog(path string, start time.Time) (*HandoverLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("simlog: open handover log: %w", err)
	}
	return &HandoverLog{f: f, start: start}, nil
}

// Write records one handover in prose.
func (h *HandoverLog) Write(ev model.HandoverEvent) error {
	_, err := fmt.Fprintf(h.f,
		"t=%ss entity %d handover: cell %d -> cell %d (signal %.2f dBm, distance %.1f m, total %d)\n",
		seconds(h.start, ev.Time), ev.EntityID, ev.SourceCell, ev.TargetCell,
		ev.SignalDBm, ev.DistanceM, ev.Total)
	return err
}

// Close closes the underlying file.
func (h *HandoverLog) Close() error {
	return h.f.Close()
}
