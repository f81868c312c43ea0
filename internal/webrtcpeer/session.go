package webrtcpeer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/signaling"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/taskqueue"
)

var errSessionClosed = errors.New("webrtc session closed")

// Factory creates pion-backed sessions for the signaling client.
type Factory struct {
	API *webrtc.API
	// ExtraICEServers are appended to the servers received in each offer.
	ExtraICEServers []webrtc.ICEServer
	Logger          *slog.Logger
}

var _ signaling.ConnectionFactory = (*Factory)(nil)

func (f *Factory) NewConnection(iceServers []webrtc.ICEServer, observer signaling.ConnectionObserver) (signaling.Connection, error) {
	servers := make([]webrtc.ICEServer, 0, len(iceServers)+len(f.ExtraICEServers))
	servers = append(servers, iceServers...)
	servers = append(servers, f.ExtraICEServers...)
	return NewSession(f.API, servers, observer, f.Logger)
}

// Session owns one PeerConnection answering the server's offers.
//
// Negotiation steps run in submission order on a dedicated worker goroutine,
// and their completion callbacks fire on that worker.
type Session struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger

	jobs      *taskqueue.Queue[func()]
	closeOnce sync.Once
}

var _ signaling.Connection = (*Session)(nil)

func NewSession(api *webrtc.API, iceServers []webrtc.ICEServer, observer signaling.ConnectionObserver, logger *slog.Logger) (*Session, error) {
	if api == nil {
		api = webrtc.NewAPI()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}
	s := &Session{
		pc:     pc,
		logger: logger.With("component", "webrtc"),
		jobs:   taskqueue.New[func()](),
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if observer != nil {
			observer.OnICEConnectionStateChange(StateFromPion(state))
		}
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil || observer == nil {
			return
		}
		observer.OnICECandidate(c.ToJSON().Candidate)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		info := TrackFromPion(track)
		s.logger.Debug("remote track receiving",
			"track_id", info.ID,
			"kind", info.Kind,
			"codec", track.Codec().MimeType,
			"ssrc", uint32(track.SSRC()),
			"stream_id", info.StreamID,
		)
		if observer != nil {
			observer.OnTrackAdded(info)
		}
		// Drain RTP so pion's receive buffers never fill up. Read fails once
		// the receiver is stopped, which ends the track.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					break
				}
			}
			s.logger.Debug("remote track ended", "track_id", info.ID, "kind", info.Kind)
			if observer != nil {
				observer.OnTrackRemoved(info)
			}
		}()
	})

	go s.run()
	return s, nil
}

// TrackFromPion describes a remote pion track.
func TrackFromPion(track *webrtc.TrackRemote) signaling.Track {
	return signaling.Track{
		ID:       track.ID(),
		StreamID: track.StreamID(),
		Kind:     track.Kind().String(),
	}
}

func (s *Session) run() {
	for {
		job, ok := s.jobs.Dequeue()
		if !ok {
			return
		}
		job()
	}
}

func (s *Session) submit(job func(), onClosed func()) {
	if !s.jobs.Enqueue(job) {
		go onClosed()
	}
}

func (s *Session) PeerConnection() *webrtc.PeerConnection {
	return s.pc
}

// SetRemoteDescription applies a server offer. Renegotiation offers ("update")
// use the same path.
func (s *Session) SetRemoteDescription(sdp string, done func(error)) {
	s.submit(func() {
		done(s.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  sdp,
		}))
	}, func() { done(errSessionClosed) })
}

// CreateAnswer creates the local answer and applies it as the local
// description before reporting it.
func (s *Session) CreateAnswer(done func(sdp string, err error)) {
	s.submit(func() {
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			done("", err)
			return
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			done("", err)
			return
		}
		done(answer.SDP, nil)
	}, func() { done("", errSessionClosed) })
}

func (s *Session) GetStats(done func(report []byte, err error)) {
	s.submit(func() {
		done(MarshalStats(s.pc.GetStats()))
	}, func() { done(nil, errSessionClosed) })
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.jobs.Close()
		err = s.pc.Close()
	})
	return err
}
