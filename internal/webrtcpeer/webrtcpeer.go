package webrtcpeer

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/config"
)

// NewAPI builds the pion API shared by every negotiated connection: network
// settings from cfg, the default codec set, and pion logging routed through
// logger (nil keeps pion's own logger).
func NewAPI(cfg config.Config, logger *slog.Logger) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	if logger != nil {
		se.LoggerFactory = NewLoggerFactory(logger)
	}
	if err := ApplyNetworkSettings(&se, cfg); err != nil {
		return nil, err
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	)
	return api, nil
}

var natCandidateTypes = map[config.NAT1To1IPCandidateType]webrtc.ICECandidateType{
	config.NAT1To1CandidateTypeHost:  webrtc.ICECandidateTypeHost,
	config.NAT1To1CandidateTypeSrflx: webrtc.ICECandidateTypeSrflx,
}

// ApplyNetworkSettings copies the ICE socket options from cfg onto se.
func ApplyNetworkSettings(se *webrtc.SettingEngine, cfg config.Config) error {
	if r := cfg.WebRTCUDPPortRange; r != nil {
		if err := se.SetEphemeralUDPPortRange(r.Min, r.Max); err != nil {
			return fmt.Errorf("ice udp port range %d-%d: %w", r.Min, r.Max, err)
		}
	}

	if len(cfg.WebRTCNAT1To1IPs) > 0 {
		ct, ok := natCandidateTypes[cfg.WebRTCNAT1To1IPCandidateType]
		if !ok {
			return fmt.Errorf("invalid NAT 1:1 IP candidate type %q", cfg.WebRTCNAT1To1IPCandidateType)
		}
		se.SetNAT1To1IPs(cfg.WebRTCNAT1To1IPs, ct)
	}

	// pion has no listen address option, so a specific listen IP is enforced
	// by filtering the interfaces ICE gathers from.
	if ip := cfg.WebRTCUDPListenIP; !config.IsUnspecifiedIP(ip) {
		se.SetIPFilter(func(candidate net.IP) bool {
			return candidate.Equal(ip)
		})
	}
	return nil
}
