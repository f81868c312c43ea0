package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/signaling"
)

// ErrServerClosed is returned by Serve after Shutdown or Close.
var ErrServerClosed = http.ErrServerClosed

type BuildInfo struct {
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	LibWebRTC string `json:"libwebrtc,omitempty"`
}

// StatusSource reports the live state of the signaling client.
type StatusSource interface {
	State() signaling.ConnectionState
	Connected() bool
}

type Server struct {
	log     *slog.Logger
	cfg     config.Config
	build   BuildInfo
	status  StatusSource
	metrics *metrics.Metrics

	serving atomic.Bool

	mux *http.ServeMux
	srv *http.Server
}

func New(cfg config.Config, logger *slog.Logger, build BuildInfo, status StatusSource, m *metrics.Metrics) *Server {
	s := &Server{
		log:     logger,
		cfg:     cfg,
		build:   build,
		status:  status,
		metrics: m,
		mux:     http.NewServeMux(),
	}

	s.registerRoutes()

	handler := withRecovery(s.log, withRequestID(withAccessLog(s.log, s.mux)))

	s.srv = &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	return s
}

// Mux returns the underlying ServeMux for registering additional routes.
// It must only be used during startup before Serve is called.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

func (s *Server) Serve(l net.Listener) error {
	s.serving.Store(true)
	s.log.Info("status server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.serving.Store(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) Close() error {
	s.serving.Store(false)
	return s.srv.Close()
}

type statusResponse struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
	ChannelID string `json:"channelId,omitempty"`
	Role      string `json:"role,omitempty"`
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	s.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.serving.Load() {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
			return
		}
		if err := s.cfg.ICEConfigError(); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "error": err.Error()})
			return
		}
		state := s.state()
		if state != signaling.StateConnected && state != signaling.StateCompleted {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "state": state.String()})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"ready": true, "state": state.String()})
	})

	s.mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, s.build)
	})

	s.mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			State:     s.state().String(),
			ChannelID: s.cfg.ChannelID,
			Role:      s.cfg.Role,
		}
		if s.status != nil {
			resp.Connected = s.status.Connected()
		}
		WriteJSON(w, http.StatusOK, resp)
	})

	s.mux.Handle("GET /metrics", metrics.PrometheusHandler(s.metrics))
}

func (s *Server) state() signaling.ConnectionState {
	if s.status == nil {
		return signaling.StateNew
	}
	return s.status.State()
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
