package main

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/config"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.MetadataError(); err != nil {
		logger.Warn("startup warning: signaling metadata ignored",
			"warning_code", "metadata_invalid",
			"err", err,
		)
	}

	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("startup warning: extra ICE servers ignored",
			"warning_code", "ice_config_invalid",
			"err", err,
		)
	}

	scheme := signalingScheme(cfg.SignalingURL)

	if cfg.Insecure && scheme == "wss" {
		logger.Warn("startup security warning: TLS certificate verification is disabled for the signaling connection",
			"warning_code", "insecure_tls",
			"signaling_host", safeURLHost(cfg.SignalingURL),
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && scheme == "ws" {
		logger.Warn("startup security warning: signaling URL uses plain ws:// while --mode=prod (control messages are unencrypted)",
			"warning_code", "plaintext_signaling_in_prod",
			"signaling_host", safeURLHost(cfg.SignalingURL),
			"mode", cfg.Mode,
		)
	}

	if strings.TrimSpace(cfg.ChannelID) == "" {
		logger.Warn("startup warning: channel id is empty; the server will likely reject the connect message",
			"warning_code", "channel_id_missing",
			"mode", cfg.Mode,
		)
	}
}

func signalingScheme(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

func safeURLHost(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Host
}
