package metrics

import "sync"

// Event names recorded by the signaling client. Per-type counters are built
// by appending the message type or state name to the prefixes below.
const (
	SignalingMessagesReceivedPrefix = "signaling_messages_received_"
	SignalingMessagesSentPrefix     = "signaling_messages_sent_"
	ICEStatePrefix                  = "ice_state_"

	SignalingDecodeError    = "signaling_decode_error"
	SignalingReadError      = "signaling_read_error"
	SignalingWriteError     = "signaling_write_error"
	SignalingConnectError   = "signaling_connect_error"
	SignalingConnected      = "signaling_connected"
	NegotiationError        = "negotiation_error"
	ICECandidatesSent       = "ice_candidates_sent"
	PingDeferred            = "ping_deferred"
	NotifyDelivered         = "notify_delivered"
	TrackAdded              = "track_added"
	TrackRemoved            = "track_removed"
	PongStatsDropped        = "pong_stats_dropped"
	ConnectionCreated       = "connection_created"
	ConnectionCreationError = "connection_creation_error"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A nil *Metrics is valid and discards every update, so components can take
// an optional registry without guarding each call site.
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
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
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

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
