package hub

import "sync/atomic"

// MetricsSnapshot is a point-in-time copy of hub counters.
type MetricsSnapshot struct {
	Mailboxes int64
	Submitted int64
	Processed int64
	Failed    int64
	Reaped    int64
}

// Metrics tracks hub activity with atomic counters.
type Metrics struct {
	mailboxes atomic.Int64
	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	reaped    atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordMailbox(delta int) {
	m.mailboxes.Add(int64(delta))
}

func (m *Metrics) RecordSubmitted() {
	m.submitted.Add(1)
}

func (m *Metrics) RecordProcessed(failed bool) {
	m.processed.Add(1)
	if failed {
		m.failed.Add(1)
	}
}

func (m *Metrics) RecordReaped() {
	m.reaped.Add(1)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Mailboxes: m.mailboxes.Load(),
		Submitted: m.submitted.Load(),
		Processed: m.processed.Load(),
		Failed:    m.failed.Load(),
		Reaped:    m.reaped.Load(),
	}
}
