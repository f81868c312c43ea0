package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/signaling"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/webrtcpeer"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	sigCfg, err := signalingConfig(cfg)
	if err != nil {
		logger.Error("invalid signaling configuration", "err", err)
		os.Exit(2)
	}

	// Construct the WebRTC API early so misconfigurations are caught on startup.
	// No sockets are opened until the first offer creates a PeerConnection.
	api, err := webrtcpeer.NewAPI(cfg, logger)
	if err != nil {
		logger.Error("failed to configure webrtc", "err", err)
		os.Exit(2)
	}

	logger.Info("starting aero-webrtc-signaling-client",
		"signaling_host", safeURLHost(cfg.SignalingURL),
		"channel_id", cfg.ChannelID,
		"role", sigCfg.Role,
		"multistream", cfg.Multistream,
		"video_codec", cfg.VideoCodec,
		"audio_codec", cfg.AudioCodec,
		"status_addr", cfg.StatusAddr,
		"mode", cfg.Mode,
		"libwebrtc", cfg.LibWebRTC,
	)
	logStartupWarnings(logger, cfg)

	m := metrics.New()
	client := signaling.NewClient(sigCfg, clientOptions(cfg, api, logger, m))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The loop outlives ctx so Close and Release still run on it during
	// shutdown.
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	go func() {
		_ = client.Run(loopCtx)
	}()

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect to signaling server", "err", err)
		cancelLoop()
		<-client.Done()
		os.Exit(1)
	}

	var srv *httpserver.Server
	errCh := make(chan error, 1)
	if cfg.StatusAddr != "" {
		ln, err := net.Listen("tcp", cfg.StatusAddr)
		if err != nil {
			logger.Error("failed to listen", "err", err)
			os.Exit(1)
		}
		commit, builtAt := resolveBuildInfo(buildCommit, buildTime)
		srv = httpserver.New(cfg, logger, httpserver.BuildInfo{
			Commit:    commit,
			BuildTime: builtAt,
			LibWebRTC: cfg.LibWebRTC,
		}, client, m)
		go func() {
			errCh <- srv.Serve(ln)
		}()
	}

	exitCode := 0
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
			logger.Error("status server exited", "err", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	client.Close()
	client.Release()
	cancelLoop()
	select {
	case <-client.Done():
	case <-shutdownCtx.Done():
		logger.Warn("signaling loop did not stop before shutdown timeout")
	}

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown failed", "err", err)
		}
	}

	logger.Info("stopped", "events", m.Snapshot())
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
