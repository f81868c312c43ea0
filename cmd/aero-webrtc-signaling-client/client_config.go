package main

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/signaling"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/webrtcpeer"
)

// signalingConfig maps process configuration onto the client's session
// description.
func signalingConfig(cfg config.Config) (signaling.Config, error) {
	role, err := signaling.ParseRole(cfg.Role)
	if err != nil {
		return signaling.Config{}, err
	}
	return signaling.Config{
		URL:         cfg.SignalingURL,
		Role:        role,
		Multistream: cfg.Multistream,
		ChannelID:   cfg.ChannelID,
		Metadata:    cfg.Metadata,
		Video: signaling.MediaConfig{
			Codec:   cfg.VideoCodec,
			BitRate: cfg.VideoBitRate,
		},
		Audio: signaling.MediaConfig{
			Codec:   cfg.AudioCodec,
			BitRate: cfg.AudioBitRate,
		},
		Insecure:    cfg.Insecure,
		ClientID:    cfg.SoraClient,
		LibWebRTC:   cfg.LibWebRTC,
		Environment: cfg.Environment,
	}, nil
}

// clientOptions wires the client's collaborators. ICE state transitions are
// already logged by the client itself, so no state hook is installed here.
func clientOptions(cfg config.Config, api *webrtc.API, logger *slog.Logger, m *metrics.Metrics) signaling.Options {
	return signaling.Options{
		Connections: &webrtcpeer.Factory{
			API:             api,
			ExtraICEServers: cfg.ICEServers,
			Logger:          logger,
		},
		Transports: signaling.WebSocketTransportFactory(cfg.MaxSignalingMessageBytes),
		OnNotify: func(raw string) {
			logger.Info("signaling notify", "payload", raw)
		},
		OnTrackAdded:   trackLogger(logger, "remote track added"),
		OnTrackRemoved: trackLogger(logger, "remote track removed"),
		Logger:         logger,
		Metrics:        m,
	}
}

func trackLogger(logger *slog.Logger, msg string) func(signaling.Track) {
	return func(tr signaling.Track) {
		logger.Info(msg, "track_id", tr.ID, "stream_id", tr.StreamID, "kind", tr.Kind)
	}
}
