// Command signaling-server-go is a minimal signaling peer for local E2E runs
// of aero-webrtc-signaling-client. It answers one connect message per
// WebSocket with an offer carrying a data channel, then exercises ping, notify
// and trickled candidates.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/net/websocket"
)

func main() {
	bindHost := envOrDefault("BIND_HOST", "127.0.0.1")
	port := envIntOrDefault("PORT", 0)
	pingInterval := time.Duration(envIntOrDefault("PING_INTERVAL_MS", 1000)) * time.Millisecond

	listenAddr := net.JoinHostPort(bindHost, strconv.Itoa(port))
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen %s: %v\n", listenAddr, err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	wsSrv := websocket.Server{
		Handshake: func(cfg *websocket.Config, r *http.Request) error {
			// Accept all origins for E2E.
			origin, _ := websocket.Origin(cfg, r)
			if origin == nil {
				origin = &url.URL{Scheme: "http", Host: "localhost"}
			}
			cfg.Origin = origin
			return nil
		},
		Handler: websocket.Handler(func(ws *websocket.Conn) {
			serveSignaling(ws, pingInterval)
		}),
	}
	mux.Handle("/signaling", wsSrv)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	actualPort := ln.Addr().(*net.TCPAddr).Port
	fmt.Printf("READY %d\n", actualPort)

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		<-errCh
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "http server error: %v\n", err)
			os.Exit(1)
		}
	}
}

type envelope struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id,omitempty"`
	Role      string          `json:"role,omitempty"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate string          `json:"candidate,omitempty"`
	Stats     json.RawMessage `json:"stats,omitempty"`
}

// sender serializes writes; x/net/websocket frames are not safe for
// concurrent Send calls.
type sender struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (s *sender) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return websocket.JSON.Send(s.ws, v)
}

func serveSignaling(ws *websocket.Conn, pingInterval time.Duration) {
	defer ws.Close()

	var connect envelope
	if err := websocket.JSON.Receive(ws, &connect); err != nil || connect.Type != "connect" {
		return
	}
	if connect.ChannelID == "" {
		fmt.Fprintln(os.Stderr, "connect without channel_id")
		return
	}
	fmt.Printf("CONNECT channel=%s role=%s\n", connect.ChannelID, connect.Role)

	pc, err := webrtc.NewAPI().NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return
	}
	defer pc.Close()

	out := &sender{ws: ws}

	connected := make(chan struct{})
	var connectedOnce sync.Once
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateConnected {
			connectedOnce.Do(func() { close(connected) })
		}
	})

	dc, err := pc.CreateDataChannel("e2e", nil)
	if err != nil {
		return
	}
	dc.OnOpen(func() {
		fmt.Println("DATACHANNEL OPEN")
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return
	}
	<-gatherComplete

	if err := out.send(map[string]any{
		"type":   "offer",
		"sdp":    pc.LocalDescription().SDP,
		"config": map[string]any{"iceServers": []any{}},
	}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-connected:
		case <-done:
			return
		}
		fmt.Println("ICE CONNECTED")
		_ = out.send(map[string]any{"type": "notify", "event_type": "connection.created", "channel_id": connect.ChannelID})

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := out.send(map[string]any{"type": "ping", "stats": true}); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var msg envelope
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			return
		}
		switch msg.Type {
		case "answer":
			if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}); err != nil {
				fmt.Fprintf(os.Stderr, "set answer: %v\n", err)
				return
			}
			fmt.Println("ANSWER")
		case "candidate":
			if err := pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: msg.Candidate}); err != nil {
				fmt.Fprintf(os.Stderr, "add candidate: %v\n", err)
			}
		case "pong":
			fmt.Printf("PONG stats_bytes=%d\n", len(msg.Stats))
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}
