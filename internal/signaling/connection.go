package signaling

import (
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/metrics"
)

// Connection is the session-negotiation capability the client drives. Every
// completion callback may run on any goroutine.
type Connection interface {
	SetRemoteDescription(sdp string, done func(error))
	CreateAnswer(done func(sdp string, err error))
	GetStats(done func(report []byte, err error))
	Close() error
}

// ConnectionObserver receives Connection-originated events. Implementations
// must tolerate calls from arbitrary goroutines.
type ConnectionObserver interface {
	OnICEConnectionStateChange(state ConnectionState)
	OnICECandidate(candidate string)
	// OnTrackAdded and OnTrackRemoved bracket the lifetime of a remote
	// media track.
	OnTrackAdded(track Track)
	OnTrackRemoved(track Track)
}

// Track identifies a remote media track.
type Track struct {
	ID       string
	StreamID string
	// Kind is "audio" or "video".
	Kind string
}

// ConnectionFactory constructs the Connection when the first offer arrives.
type ConnectionFactory interface {
	NewConnection(iceServers []webrtc.ICEServer, observer ConnectionObserver) (Connection, error)
}

// connectionRef is the shared handle to the negotiated Connection. Its
// identity tells observers whether their Connection is still attached.
type connectionRef struct {
	conn Connection
}

// connectionObserver re-posts every event onto the client's loop. It never
// touches client state directly.
type connectionObserver struct {
	client *Client
	ref    *connectionRef
}

func (o *connectionObserver) OnICEConnectionStateChange(state ConnectionState) {
	o.client.post(func() {
		if !o.client.isAttached(o.ref) {
			o.client.logger.Debug("ignoring state change from detached connection", "state", state.String())
			return
		}
		o.client.setState(state)
	})
}

func (o *connectionObserver) OnICECandidate(candidate string) {
	o.client.post(func() {
		if !o.client.isAttached(o.ref) {
			return
		}
		o.client.sendCandidate(candidate)
	})
}

func (o *connectionObserver) OnTrackAdded(track Track) {
	o.client.post(func() {
		if !o.client.isAttached(o.ref) {
			return
		}
		o.client.deliverTrack(metrics.TrackAdded, o.client.onTrackAdded, track)
	})
}

func (o *connectionObserver) OnTrackRemoved(track Track) {
	o.client.post(func() {
		if !o.client.isAttached(o.ref) {
			return
		}
		o.client.deliverTrack(metrics.TrackRemoved, o.client.onTrackRemoved, track)
	})
}
