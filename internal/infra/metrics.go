package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	commandsProcessed atomic.Uint64
	commandsFailed    atomic.Uint64
	salesTotal        atomic.Uint64
	escrowsSettled    atomic.Uint64
	eventsPublished   atomic.Uint64
	errorsTotal       atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	subscribers atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordCommand records a sequenced command, accepted or rejected, with its latency.
func (m *Metrics) RecordCommand(latencyNs int64) {
	m.commandsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordRejected records a command that failed validation.
func (m *Metrics) RecordRejected() {
	m.commandsFailed.Add(1)
}

// RecordError records an infrastructure error (journal, storage, feed).
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordSale records a completed purchase.
func (m *Metrics) RecordSale() {
	m.salesTotal.Add(1)
}

// RecordEscrowSettled records an escrow reaching a terminal state.
func (m *Metrics) RecordEscrowSettled() {
	m.escrowsSettled.Add(1)
}

// RecordPublished records an event handed to subscribers.
func (m *Metrics) RecordPublished() {
	m.eventsPublished.Add(1)
}

// IncrementSubscribers increments live feed subscribers by 1.
func (m *Metrics) IncrementSubscribers() {
	m.subscribers.Add(1)
}

// DecrementSubscribers decrements live feed subscribers by 1.
func (m *Metrics) DecrementSubscribers() {
	m.subscribers.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CommandsProcessed uint64    `json:"commands_processed"`
	CommandsFailed    uint64    `json:"commands_failed"`
	SalesTotal        uint64    `json:"sales_total"`
	EscrowsSettled    uint64    `json:"escrows_settled"`
	EventsPublished   uint64    `json:"events_published"`
	ErrorsTotal       uint64    `json:"errors_total"`
	AvgLatencyNs      int64     `json:"avg_latency_ns"`
	Subscribers       int32     `json:"subscribers"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		CommandsProcessed: m.commandsProcessed.Load(),
		CommandsFailed:    m.commandsFailed.Load(),
		SalesTotal:        m.salesTotal.Load(),
		EscrowsSettled:    m.escrowsSettled.Load(),
		EventsPublished:   m.eventsPublished.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		Subscribers:       m.subscribers.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.commandsProcessed.Store(0)
	m.commandsFailed.Store(0)
	m.salesTotal.Store(0)
	m.escrowsSettled.Store(0)
	m.eventsPublished.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.subscribers.Store(0)
}
