package core

import (
	"fmt"
	"io"
	"math"
	"net/netip"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is the fully resolved description of one simulation run:
// cell sites, entities with their motion, traffic streams, and the
// timing knobs for the periodic components.
type Scenario struct {
	Name string

	Cells    []ScenarioCell
	Entities []ScenarioEntity
	Flows    []ScenarioFlow

	// Address block owned by the entities. A flow whose source falls
	// inside it is uplink, everything else is downlink.
	EntityAddrBlock netip.Prefix

	RecorderInterval   time.Duration
	DetectorInterval   time.Duration
	DifferenceInterval time.Duration
	WatchdogInterval   time.Duration
	InactivityLimit    time.Duration

	// PeriodicHorizon is the last instant at which ticks reschedule;
	// Duration is how far the event loop actually runs.
	PeriodicHorizon time.Duration
	Duration        time.Duration
}

type ScenarioCell struct {
	ID         uint32
	Name       string
	X, Y, Z    float64
	TxPowerDBm float64
}

type ScenarioEntity struct {
	ID   uint32
	Name string
	Addr netip.Addr

	Mobile bool

	// Static placement, or the circle the entity moves on.
	X, Y, Z      float64
	RadiusM      float64
	HeightM      float64
	SpeedMps     float64
	InitialAngle float64
	StartDelay   time.Duration
}

type ScenarioFlow struct {
	ID  uint32
	Src netip.Addr
	Dst netip.Addr

	RateBps      float64
	PacketBytes  uint64
	Start        time.Duration
	DelayPerPkt  time.Duration
	JitterPerPkt time.Duration
	Loss         float64
}

// Unexported YAML shapes, kept separate so the file format can evolve
// without touching the resolved Scenario.
type scenarioYAML struct {
	Name            string       `yaml:"name"`
	EntityAddrBlock string       `yaml:"entity_addr_block"`
	Cells           []cellYAML   `yaml:"cells"`
	Entities        []entityYAML `yaml:"entities"`
	Flows           []flowYAML   `yaml:"flows"`
	Timing          timingYAML   `yaml:"timing"`
}

type cellYAML struct {
	ID         uint32  `yaml:"id"`
	Name       string  `yaml:"name"`
	X          float64 `yaml:"x"`
	Y          float64 `yaml:"y"`
	Z          float64 `yaml:"z"`
	TxPowerDBm float64 `yaml:"tx_power_dbm"`
}

type entityYAML struct {
	ID           uint32  `yaml:"id"`
	Name         string  `yaml:"name"`
	Addr         string  `yaml:"addr"`
	Mobile       bool    `yaml:"mobile"`
	X            float64 `yaml:"x"`
	Y            float64 `yaml:"y"`
	Z            float64 `yaml:"z"`
	RadiusM      float64 `yaml:"radius_m"`
	HeightM      float64 `yaml:"height_m"`
	SpeedMps     float64 `yaml:"speed_mps"`
	InitialAngle float64 `yaml:"initial_angle_rad"`
	StartDelayMs int     `yaml:"start_delay_ms"`
}

type flowYAML struct {
	ID          uint32  `yaml:"id"`
	Src         string  `yaml:"src"`
	Dst         string  `yaml:"dst"`
	RateBps     float64 `yaml:"rate_bps"`
	PacketBytes uint64  `yaml:"packet_bytes"`
	StartMs     int     `yaml:"start_ms"`
	DelayUs     int     `yaml:"delay_us_per_pkt"`
	JitterUs    int     `yaml:"jitter_us_per_pkt"`
	Loss        float64 `yaml:"loss"`
}

type timingYAML struct {
	RecorderIntervalMs   int `yaml:"recorder_interval_ms"`
	DetectorIntervalMs   int `yaml:"detector_interval_ms"`
	DifferenceIntervalMs int `yaml:"difference_interval_ms"`
	WatchdogIntervalMs   int `yaml:"watchdog_interval_ms"`
	InactivityLimitMs    int `yaml:"inactivity_limit_ms"`
	PeriodicHorizonMs    int `yaml:"periodic_horizon_ms"`
	DurationMs           int `yaml:"duration_ms"`
}

// LoadScenario parses a YAML scenario from r. Fields the file omits
// fall back to the stadium defaults, so a partial file that only
// overrides timing is fine.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioYAML
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("scenario: decode failed: %w", err)
	}

	sc := StadiumScenario()
	if payload.Name != "" {
		sc.Name = payload.Name
	}
	if payload.EntityAddrBlock != "" {
		block, err := netip.ParsePrefix(payload.EntityAddrBlock)
		if err != nil {
			return nil, fmt.Errorf("scenario: entity_addr_block: %w", err)
		}
		sc.EntityAddrBlock = block
	}

	if len(payload.Cells) > 0 {
		sc.Cells = make([]ScenarioCell, 0, len(payload.Cells))
		for _, c := range payload.Cells {
			if c.ID == 0 {
				return nil, fmt.Errorf("scenario: cell %q with id 0", c.Name)
			}
			sc.Cells = append(sc.Cells, ScenarioCell{
				ID: c.ID, Name: c.Name,
				X: c.X, Y: c.Y, Z: c.Z,
				TxPowerDBm: c.TxPowerDBm,
			})
		}
	}

	if len(payload.Entities) > 0 {
		sc.Entities = make([]ScenarioEntity, 0, len(payload.Entities))
		for _, e := range payload.Entities {
			if e.ID == 0 {
				return nil, fmt.Errorf("scenario: entity %q with id 0", e.Name)
			}
			addr, err := netip.ParseAddr(e.Addr)
			if err != nil {
				return nil, fmt.Errorf("scenario: entity %d addr: %w", e.ID, err)
			}
			sc.Entities = append(sc.Entities, ScenarioEntity{
				ID: e.ID, Name: e.Name, Addr: addr, Mobile: e.Mobile,
				X: e.X, Y: e.Y, Z: e.Z,
				RadiusM: e.RadiusM, HeightM: e.HeightM,
				SpeedMps: e.SpeedMps, InitialAngle: e.InitialAngle,
				StartDelay: time.Duration(e.StartDelayMs) * time.Millisecond,
			})
		}
	}

	if len(payload.Flows) > 0 {
		sc.Flows = make([]ScenarioFlow, 0, len(payload.Flows))
		for _, f := range payload.Flows {
			src, err := netip.ParseAddr(f.Src)
			if err != nil {
				return nil, fmt.Errorf("scenario: flow %d src: %w", f.ID, err)
			}
			dst, err := netip.ParseAddr(f.Dst)
			if err != nil {
				return nil, fmt.Errorf("scenario: flow %d dst: %w", f.ID, err)
			}
			sc.Flows = append(sc.Flows, ScenarioFlow{
				ID: f.ID, Src: src, Dst: dst,
				RateBps:      f.RateBps,
				PacketBytes:  f.PacketBytes,
				Start:        time.Duration(f.StartMs) * time.Millisecond,
				DelayPerPkt:  time.Duration(f.DelayUs) * time.Microsecond,
				JitterPerPkt: time.Duration(f.JitterUs) * time.Microsecond,
				Loss:         f.Loss,
			})
		}
	}

	t := payload.Timing
	if t.RecorderIntervalMs > 0 {
		sc.RecorderInterval = time.Duration(t.RecorderIntervalMs) * time.Millisecond
	}
	if t.DetectorIntervalMs > 0 {
		sc.DetectorInterval = time.Duration(t.DetectorIntervalMs) * time.Millisecond
	}
	if t.DifferenceIntervalMs > 0 {
		sc.DifferenceInterval = time.Duration(t.DifferenceIntervalMs) * time.Millisecond
	}
	if t.WatchdogIntervalMs > 0 {
		sc.WatchdogInterval = time.Duration(t.WatchdogIntervalMs) * time.Millisecond
	}
	if t.InactivityLimitMs > 0 {
		sc.InactivityLimit = time.Duration(t.InactivityLimitMs) * time.Millisecond
	}
	if t.PeriodicHorizonMs > 0 {
		sc.PeriodicHorizon = time.Duration(t.PeriodicHorizonMs) * time.Millisecond
	}
	if t.DurationMs > 0 {
		sc.Duration = time.Duration(t.DurationMs) * time.Millisecond
	}

	if sc.PeriodicHorizon > sc.Duration {
		return nil, fmt.Errorf("scenario: periodic horizon %s exceeds duration %s", sc.PeriodicHorizon, sc.Duration)
	}

	return sc, nil
}

// StadiumScenario is the built-in default: six cells on a ring around
// the venue, four referees circling the pitch, ten fixed broadcast
// cameras, and one uplink stream per entity.
func StadiumScenario() *Scenario {
	sc := &Scenario{
		Name:            "stadium",
		EntityAddrBlock: netip.MustParsePrefix("10.7.0.0/16"),

		RecorderInterval:   500 * time.Millisecond,
		DetectorInterval:   500 * time.Millisecond,
		DifferenceInterval: 100 * time.Millisecond,
		WatchdogInterval:   2 * time.Second,
		InactivityLimit:    1500 * time.Millisecond,
		PeriodicHorizon:    14500 * time.Millisecond,
		Duration:           15 * time.Second,
	}

	const (
		cellRingRadius = 120.0
		cellHeight     = 25.0
		nCells         = 6

		refereeRadius = 60.0
		refereeHeight = 1.7
		refereeSpeed  = 5.0
		nReferees     = 4

		nCameras = 10
	)

	for i := 0; i < nCells; i++ {
		angle := 2 * math.Pi * float64(i) / nCells
		sc.Cells = append(sc.Cells, ScenarioCell{
			ID:         uint32(i + 1),
			Name:       fmt.Sprintf("cell-%d", i+1),
			X:          cellRingRadius * math.Cos(angle),
			Y:          cellRingRadius * math.Sin(angle),
			Z:          cellHeight,
			TxPowerDBm: 35,
		})
	}

	nextID := uint32(1)
	for i := 0; i < nReferees; i++ {
		sc.Entities = append(sc.Entities, ScenarioEntity{
			ID:           nextID,
			Name:         fmt.Sprintf("referee-%d", i+1),
			Addr:         netip.AddrFrom4([4]byte{10, 7, 0, byte(nextID)}),
			Mobile:       true,
			RadiusM:      refereeRadius,
			HeightM:      refereeHeight,
			SpeedMps:     refereeSpeed,
			InitialAngle: 2 * math.Pi * float64(i) / nReferees,
			StartDelay:   800*time.Millisecond + time.Duration(i)*125*time.Millisecond,
		})
		nextID++
	}

	for i := 0; i < nCameras; i++ {
		angle := 2 * math.Pi * float64(i) / nCameras
		sc.Entities = append(sc.Entities, ScenarioEntity{
			ID:     nextID,
			Name:   fmt.Sprintf("camera-%d", i+1),
			Addr:   netip.AddrFrom4([4]byte{10, 7, 0, byte(nextID)}),
			Mobile: false,
			X:      40 * math.Cos(angle),
			Y:      40 * math.Sin(angle),
			Z:      1.7,
		})
		nextID++
	}

	serverAddr := netip.MustParseAddr("192.168.1.10")
	for i, e := range sc.Entities {
		rate := 35_000_000.0 // fixed 4K broadcast cameras
		if e.Mobile {
			rate = 5_000_000.0 // referee bodycams
		}
		sc.Flows = append(sc.Flows, ScenarioFlow{
			ID:           uint32(i + 1),
			Src:          e.Addr,
			Dst:          serverAddr,
			RateBps:      rate,
			PacketBytes:  1000,
			Start:        300 * time.Millisecond,
			DelayPerPkt:  12 * time.Millisecond,
			JitterPerPkt: 800 * time.Microsecond,
			Loss:         0.001,
		})
	}

	return sc
}
