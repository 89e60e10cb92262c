package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ticksApplied atomic.Uint64
	ticksDropped atomic.Uint64
	streamErrors atomic.Uint64
	reconnects   atomic.Uint64
	loopPanics   atomic.Uint64

	// Tick handling latency (stream read -> store patch)
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	peakConnections   atomic.Int32
}

// RecordTick records an applied tick with its latency.
func (m *Metrics) RecordTick(latencyNs int64) {
	m.ticksApplied.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordDroppedTick records a tick discarded before reaching the store.
func (m *Metrics) RecordDroppedTick() {
	m.ticksDropped.Add(1)
}

// RecordStreamError records a dial/subscribe/read failure.
func (m *Metrics) RecordStreamError() {
	m.streamErrors.Add(1)
}

// RecordReconnect records a retry of the same subscription scope.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// RecordPanic records a recovered event loop panic.
func (m *Metrics) RecordPanic() {
	m.loopPanics.Add(1)
}

// IncrementConnections increments active connections by 1 and tracks the peak.
func (m *Metrics) IncrementConnections() {
	n := m.activeConnections.Add(1)
	for {
		peak := m.peakConnections.Load()
		if n <= peak || m.peakConnections.CompareAndSwap(peak, n) {
			return
		}
	}
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TicksApplied      uint64
	TicksDropped      uint64
	StreamErrors      uint64
	Reconnects        uint64
	LoopPanics        uint64
	AvgTickLatencyNs  int64
	ActiveConnections int32
	PeakConnections   int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TicksApplied:      m.ticksApplied.Load(),
		TicksDropped:      m.ticksDropped.Load(),
		StreamErrors:      m.streamErrors.Load(),
		Reconnects:        m.reconnects.Load(),
		LoopPanics:        m.loopPanics.Load(),
		AvgTickLatencyNs:  avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		PeakConnections:   m.peakConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ticksApplied.Store(0)
	m.ticksDropped.Store(0)
	m.streamErrors.Store(0)
	m.reconnects.Store(0)
	m.loopPanics.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.peakConnections.Store(0)
}
