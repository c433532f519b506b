package obs

import (
	"sync/atomic"
	"time"

	"tradecore/internal/schema"
)

// DropReason explains why the coordinator discarded an inbound event.
type DropReason uint8

const (
	DropPayloadMismatch DropReason = iota
	DropUnknownSymbol
	DropUnsupportedKind
	dropReasonCount
)

func (r DropReason) String() string {
	switch r {
	case DropPayloadMismatch:
		return "payload_mismatch"
	case DropUnknownSymbol:
		return "unknown_symbol"
	case DropUnsupportedKind:
		return "unsupported_kind"
	default:
		return "unknown"
	}
}

const maxResultCode = 31

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	eventCounts  [schema.KindCount]uint64
	drops        [dropReasonCount]uint64
	resultCounts [maxResultCode + 1]uint64
	rejects      uint64
	timerFires   uint64
	wakeups      uint64
	queueDrops   uint64
	queueClosed  uint64

	eventLatency    LatencyStats
	dispatchLatency LatencyStats
	ackLatency      LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds. min holds the
// smallest sample plus one so that zero means no sample yet.
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
	EventCounts     map[schema.Kind]uint64
	Drops           map[DropReason]uint64
	ResultCounts    map[uint8]uint64
	Rejects         uint64
	TimerFires      uint64
	Wakeups         uint64
	QueueDrops      uint64
	QueueClosed     uint64
	EventLatency    LatencySnapshot
	DispatchLatency LatencySnapshot
	AckLatency      LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent increments counters and tracks feed latency when timestamps are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Kind)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if header.TsEvent > 0 && header.TsRecv > 0 && !header.TsRecv.IsNone() {
		if delta := header.TsRecv.Sub(header.TsEvent); delta >= 0 {
			m.eventLatency.Observe(delta)
		}
	}
}

// IncDrop records a discarded event.
func (m *Metrics) IncDrop(reason DropReason) {
	if m == nil || reason >= dropReasonCount {
		return
	}
	atomic.AddUint64(&m.drops[reason], 1)
}

// IncResult records a placement outcome by result code.
func (m *Metrics) IncResult(code uint8) {
	if m == nil || int(code) > maxResultCode {
		return
	}
	atomic.AddUint64(&m.resultCounts[code], 1)
}

// IncReject records a non-benign transport reject.
func (m *Metrics) IncReject() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.rejects, 1)
}

// AddTimerFires records fired timer occurrences.
func (m *Metrics) AddTimerFires(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.timerFires, uint64(n))
}

// IncWakeup records a backlog-drained notification.
func (m *Metrics) IncWakeup() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.wakeups, 1)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// ObserveDispatch measures one coordinator iteration.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d)
}

// ObserveAck measures placement to confirmation latency.
func (m *Metrics) ObserveAck(d time.Duration) {
	if m == nil {
		return
	}
	m.ackLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.Kind]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.Kind(i)] = v
		}
	}
	drops := make(map[DropReason]uint64)
	for i := range m.drops {
		if v := atomic.LoadUint64(&m.drops[i]); v > 0 {
			drops[DropReason(i)] = v
		}
	}
	results := make(map[uint8]uint64)
	for i := range m.resultCounts {
		if v := atomic.LoadUint64(&m.resultCounts[i]); v > 0 {
			results[uint8(i)] = v
		}
	}
	return Snapshot{
		EventCounts:     eventCounts,
		Drops:           drops,
		ResultCounts:    results,
		Rejects:         atomic.LoadUint64(&m.rejects),
		TimerFires:      atomic.LoadUint64(&m.timerFires),
		Wakeups:         atomic.LoadUint64(&m.wakeups),
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		QueueClosed:     atomic.LoadUint64(&m.queueClosed),
		EventLatency:    m.eventLatency.Snapshot(),
		DispatchLatency: m.dispatchLatency.Snapshot(),
		AckLatency:      m.ackLatency.Snapshot(),
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

	for lo := atomic.LoadUint64(&l.min); lo == 0 || nanos+1 < lo; lo = atomic.LoadUint64(&l.min) {
		if atomic.CompareAndSwapUint64(&l.min, lo, nanos+1) {
			break
		}
	}
	for hi := atomic.LoadUint64(&l.max); nanos > hi; hi = atomic.LoadUint64(&l.max) {
		if atomic.CompareAndSwapUint64(&l.max, hi, nanos) {
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
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min) - 1),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
