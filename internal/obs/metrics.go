// Package obs collects lightweight runtime counters for the live relay and
// the engine loop. Everything is atomic; there is no exporter dependency.
package obs

import (
	"sync/atomic"
	"time"

	"main/internal/market"
)

const maxEventKind = int(market.EventCancelAck)

// Metrics collects counters and latency stats for one run.
type Metrics struct {
	eventCounts    [maxEventKind + 1]uint64
	reconnects     uint64
	sequenceGaps   uint64
	resends        uint64
	queueHighWater uint64

	submitLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts    map[market.EventKind]uint64
	Reconnects     uint64
	SequenceGaps   uint64
	Resends        uint64
	QueueHighWater uint64
	SubmitLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts one delivered event by kind.
func (m *Metrics) ObserveEvent(kind market.EventKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncReconnect records a completed reconnect.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconnects, 1)
}

// IncSequenceGap records a detected stream gap.
func (m *Metrics) IncSequenceGap() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sequenceGaps, 1)
}

// IncResend records an order resent after a reconnect.
func (m *Metrics) IncResend() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.resends, 1)
}

// ObserveQueueDepth tracks the event queue's high-water mark.
func (m *Metrics) ObserveQueueDepth(depth int) {
	if m == nil || depth < 0 {
		return
	}
	d := uint64(depth)
	for {
		cur := atomic.LoadUint64(&m.queueHighWater)
		if d <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&m.queueHighWater, cur, d) {
			return
		}
	}
}

// ObserveSubmit measures one Submit round trip.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[market.EventKind]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[market.EventKind(i)] = v
		}
	}
	return Snapshot{
		EventCounts:    eventCounts,
		Reconnects:     atomic.LoadUint64(&m.reconnects),
		SequenceGaps:   atomic.LoadUint64(&m.sequenceGaps),
		Resends:        atomic.LoadUint64(&m.resends),
		QueueHighWater: atomic.LoadUint64(&m.queueHighWater),
		SubmitLatency:  m.submitLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
