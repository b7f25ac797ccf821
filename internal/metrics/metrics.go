package metrics

import "sync"

// Event counter names. Forward drops carry the reason in the name so the
// best-effort delivery policy stays observable without surfacing errors to
// senders.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"

	MessagesReceived = "messages_received"
	MessagesRejected = "messages_rejected"

	CallsInitiated    = "calls_initiated"
	CallsAnswered     = "calls_answered"
	CandidatesRelayed = "candidates_relayed"

	CallEndedDelivered = "call_ended_delivered"
	PairingsDisplaced  = "pairings_displaced"

	ForwardDroppedTargetNotFound = "forward_dropped_target_not_found"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// Counters only ever increase; Snapshot feeds the Prometheus handler and the
// tests asserting exactly-once teardown delivery.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		snap[k] = v
	}
	return snap
}
