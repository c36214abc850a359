package observability

import (
	"sync/atomic"
	"time"
)

// DispatchMetrics accumulates in-process counters for the queue engine's
// dispatch loop. It mirrors a subset of Prom's queue/job metrics so a
// lock-free snapshot is available through Engine.Metrics() without touching
// the registry on every tick; no HTTP endpoint reports it.
type DispatchMetrics struct {
	dispatched   atomic.Uint64
	completed    atomic.Uint64
	failed       atomic.Uint64
	requeued     atomic.Uint64
	cancelled    atomic.Uint64

	// duration stats (nanoseconds), completed+failed jobs only
	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func NewDispatchMetrics() *DispatchMetrics {
	return &DispatchMetrics{}
}

func (m *DispatchMetrics) IncDispatched() {
	m.dispatched.Add(1)
}
func (m *DispatchMetrics) IncCompleted() {
	m.completed.Add(1)
}
func (m *DispatchMetrics) IncFailed() {
	m.failed.Add(1)
}

func (m *DispatchMetrics) IncRequeued() {
	m.requeued.Add(1)
}

func (m *DispatchMetrics) IncCancelled() {
	m.cancelled.Add(1)
}

func (m *DispatchMetrics) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	// max update

	for {
		curr := m.durationMax.Load()

		if ns <= curr {
			return
		}

		if m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type DispatchMetricsSnapshot struct {
	Dispatched      uint64
	Completed       uint64
	Failed          uint64
	Requeued        uint64
	Cancelled       uint64
	DurationCount   uint64
	AverageDuration time.Duration
	MaxDuration     time.Duration
}

func (m *DispatchMetrics) Snapshot() DispatchMetricsSnapshot {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()
	max := m.durationMax.Load()

	var avg time.Duration

	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return DispatchMetricsSnapshot{
		Dispatched:      m.dispatched.Load(),
		Completed:       m.completed.Load(),
		Failed:          m.failed.Load(),
		Requeued:        m.requeued.Load(),
		Cancelled:       m.cancelled.Load(),
		DurationCount:   count,
		AverageDuration: avg,
		MaxDuration:     time.Duration(max),
	}
}
