package telemetry

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/signalsfoundry/stadium-telemetry/core"
	"github.com/signalsfoundry/stadium-telemetry/internal/logging"
	"github.com/signalsfoundry/stadium-telemetry/internal/observability"
	"github.com/signalsfoundry/stadium-telemetry/internal/sched"
	"github.com/signalsfoundry/stadium-telemetry/internal/simlog"
	"github.com/signalsfoundry/stadium-telemetry/kb"
	"github.com/signalsfoundry/stadium-telemetry/model"
)

// IntervalStats is what one differencing interval contributed to a
// flow's cumulative counters, plus the rates derived from it.
type IntervalStats struct {
	RxBytes   uint64
	RxPackets uint64
	Lost      uint64

	ThroughputKbps float64
	LatencyMs      float64
	JitterMs       float64
}

// DiffCumulative subtracts two cumulative snapshots of the same flow.
// Rates are computed only when packets arrived during the interval;
// otherwise they stay zero. Counters are monotonic, so a regression is
// treated as an empty interval.
func DiffCumulative(prev, cur model.FlowStats, interval time.Duration) IntervalStats {
	if cur.RxPackets < prev.RxPackets || cur.RxBytes < prev.RxBytes {
		return IntervalStats{}
	}

	iv := IntervalStats{
		RxBytes:   cur.RxBytes - prev.RxBytes,
		RxPackets: cur.RxPackets - prev.RxPackets,
	}
	if cur.Lost >= prev.Lost {
		iv.Lost = cur.Lost - prev.Lost
	}

	if iv.RxPackets == 0 {
		return iv
	}

	iv.ThroughputKbps = float64(iv.RxBytes) * 8 / (interval.Seconds() * 1000)

	deltaDelay := cur.DelaySum - prev.DelaySum
	deltaJitter := cur.JitterSum - prev.JitterSum
	iv.LatencyMs = deltaDelay.Seconds() * 1000 / float64(iv.RxPackets)
	iv.JitterMs = deltaJitter.Seconds() * 1000 / float64(iv.RxPackets)
	return iv
}

// FlowDiff turns the flow monitor's cumulative counters into per-interval
// rates. An uplink interval with traffic from a mobile entity also
// refreshes that entity's last-activity stamp, which is the only input
// the connectivity watchdog has.
type FlowDiff struct {
	loop    *sched.EventLoop
	state   *kb.State
	monitor core.FlowMonitor
	writer  *simlog.FlowWriter
	count   *Counters
	metrics *observability.SimulationCollector
	log     logging.Logger

	// Address block owned by the entities; a source inside it marks
	// the flow as uplink.
	AddrBlock netip.Prefix
	// Interval between differencing passes.
	Interval time.Duration

	// Samples, when set, receives throughput observations for
	// end-of-run aggregation.
	Samples SampleSink

	prev map[model.FlowID]model.FlowSnapshot
}

// NewFlowDiff constructs a differencer with the stadium default
// interval of 100 ms.
func NewFlowDiff(loop *sched.EventLoop, state *kb.State, monitor core.FlowMonitor, writer *simlog.FlowWriter, count *Counters, metrics *observability.SimulationCollector, log logging.Logger, addrBlock netip.Prefix) *FlowDiff {
	if log == nil {
		log = logging.Noop()
	}
	return &FlowDiff{
		loop:      loop,
		state:     state,
		monitor:   monitor,
		writer:    writer,
		count:     count,
		metrics:   metrics,
		log:       log,
		AddrBlock: addrBlock,
		Interval:  100 * time.Millisecond,
		prev:      make(map[model.FlowID]model.FlowSnapshot),
	}
}

// Start schedules the first differencing pass.
func (d *FlowDiff) Start(ctx context.Context) {
	d.loop.ScheduleAfter(d.Interval, func() { d.tick(ctx) })
}

// tick reschedules itself unconditionally; the event loop's run bound
// is what ends the chain.
func (d *FlowDiff) tick(ctx context.Context) {
	now := d.loop.Now()
	started := time.Now()

	flows := d.monitor.Flows()
	d.log.Debug(ctx, "differencing flow counters", logging.Int("flows", len(flows)))

	for _, id := range flows {
		cur, ok := d.monitor.CumulativeStats(id)
		if !ok {
			continue
		}
		key, ok := d.monitor.Key(id)
		if !ok {
			continue
		}

		iv := DiffCumulative(d.prev[id].Stats, cur, d.Interval)
		d.prev[id] = model.FlowSnapshot{FlowID: id, Taken: now, Stats: cur}

		direction := model.Downlink
		endpoint := key.Dst
		if d.AddrBlock.Contains(key.Src) {
			direction = model.Uplink
			endpoint = key.Src
		}

		entity, resolved := d.state.ResolveAddr(endpoint)
		if !resolved {
			entity = model.UnresolvedEntity
			d.count.IncUnresolvedFlow()
			d.metrics.IncUnresolvedFlow()
			d.log.Warn(ctx, "flow endpoint matched no entity",
				logging.Uint64("flow", uint64(id)),
				logging.String("endpoint", endpoint.String()))
		}

		if d.Samples != nil && resolved && iv.RxPackets > 0 {
			d.Samples.ObserveThroughput(entity, iv.ThroughputKbps)
		}

		if direction == model.Uplink && resolved && iv.RxPackets > 0 {
			if e := d.state.Entity(entity); e != nil && e.Role == model.RoleMobile {
				d.state.SetLastActivity(entity, now)
			}
		}

		row := simlog.FlowRow{
			Time:           now,
			EntityID:       entity,
			FlowID:         id,
			Direction:      direction,
			Src:            key.Src.String(),
			Dst:            key.Dst.String(),
			ThroughputKbps: iv.ThroughputKbps,
			LatencyMs:      iv.LatencyMs,
			JitterMs:       iv.JitterMs,
			LostPackets:    iv.Lost,
		}
		if err := d.writer.WriteRow(row); err != nil {
			d.loop.Fail(fmt.Errorf("flow differencer: write row: %w", err))
			return
		}
		d.count.IncFlowRows(1)
		d.metrics.AddRows("flow", 1)
	}

	d.metrics.ObserveTick(time.Since(started).Seconds())
	d.loop.ScheduleAfter(d.Interval, func() { d.tick(ctx) })
}
