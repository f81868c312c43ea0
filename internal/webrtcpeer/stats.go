package webrtcpeer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/signaling"
)

// StateFromPion maps pion's ICE connection state onto the client's state
// enum. Unknown states collapse to StateNew.
func StateFromPion(state webrtc.ICEConnectionState) signaling.ConnectionState {
	switch state {
	case webrtc.ICEConnectionStateChecking:
		return signaling.StateChecking
	case webrtc.ICEConnectionStateConnected:
		return signaling.StateConnected
	case webrtc.ICEConnectionStateCompleted:
		return signaling.StateCompleted
	case webrtc.ICEConnectionStateFailed:
		return signaling.StateFailed
	case webrtc.ICEConnectionStateDisconnected:
		return signaling.StateDisconnected
	case webrtc.ICEConnectionStateClosed:
		return signaling.StateClosed
	default:
		return signaling.StateNew
	}
}

// MarshalStats renders a stats report as a JSON array of stats objects,
// ordered by stats id so repeated reports diff cleanly.
func MarshalStats(report webrtc.StatsReport) ([]byte, error) {
	ids := make([]string, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		b, err := json.Marshal(report[id])
		if err != nil {
			return nil, fmt.Errorf("marshal stats %q: %w", id, err)
		}
		out = append(out, b)
	}
	return json.Marshal(out)
}
