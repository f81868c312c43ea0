package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/signaling"
)

type fakeStatus struct {
	state     atomic.Int32
	connected atomic.Bool
}

func (f *fakeStatus) State() signaling.ConnectionState {
	return signaling.ConnectionState(f.state.Load())
}

func (f *fakeStatus) Connected() bool {
	return f.connected.Load()
}

func startTestServer(t *testing.T, cfg config.Config, status StatusSource, m *metrics.Metrics) (baseURL string) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	build := BuildInfo{Commit: "abc", BuildTime: "time"}
	srv := New(cfg, log, build, status, m)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	return "http://" + ln.Addr().String()
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, body
}

func TestHealthzVersion(t *testing.T) {
	baseURL := startTestServer(t, config.Config{}, &fakeStatus{}, metrics.New())

	t.Run("healthz", func(t *testing.T) {
		status, body := getJSON(t, baseURL+"/healthz")
		if status != http.StatusOK {
			t.Fatalf("status=%d, want %d", status, http.StatusOK)
		}
		if body["ok"] != true {
			t.Fatalf("body=%v, want ok=true", body)
		}
	})

	t.Run("version", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/version")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusOK)
		}
		var got BuildInfo
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		want := BuildInfo{Commit: "abc", BuildTime: "time"}
		if got != want {
			t.Fatalf("got=%+v, want=%+v", got, want)
		}
	})

	t.Run("request id echoed", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/healthz", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("X-Request-ID", "req-1")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("X-Request-ID"); got != "req-1" {
			t.Fatalf("X-Request-ID=%q, want req-1", got)
		}
	})
}

func TestReadyzFollowsConnectivityState(t *testing.T) {
	st := &fakeStatus{}
	baseURL := startTestServer(t, config.Config{}, st, nil)

	cases := []struct {
		state signaling.ConnectionState
		want  int
	}{
		{signaling.StateNew, http.StatusServiceUnavailable},
		{signaling.StateChecking, http.StatusServiceUnavailable},
		{signaling.StateConnected, http.StatusOK},
		{signaling.StateCompleted, http.StatusOK},
		{signaling.StateDisconnected, http.StatusServiceUnavailable},
		{signaling.StateFailed, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		st.state.Store(int32(tc.state))
		status, body := getJSON(t, baseURL+"/readyz")
		if status != tc.want {
			t.Fatalf("state %s: status=%d, want %d", tc.state, status, tc.want)
		}
		if body["state"] != tc.state.String() {
			t.Fatalf("state %s: body=%v", tc.state, body)
		}
	}
}

func TestReadyzFailsOnInvalidICEConfig(t *testing.T) {
	t.Setenv("AERO_SIGNALING_URL", "wss://sora.example.test/signaling")
	t.Setenv("AERO_ICE_SERVERS_JSON", "[")

	cfg, err := config.Load([]string{"--status-addr", "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("config.Load returned fatal error: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICE config error to be captured for readiness")
	}

	st := &fakeStatus{}
	st.state.Store(int32(signaling.StateConnected))
	baseURL := startTestServer(t, cfg, st, nil)

	status, _ := getJSON(t, baseURL+"/readyz")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
}

func TestStatusEndpoint(t *testing.T) {
	st := &fakeStatus{}
	st.state.Store(int32(signaling.StateChecking))
	st.connected.Store(true)
	cfg := config.Config{ChannelID: "room-1", Role: "recvonly"}
	baseURL := startTestServer(t, cfg, st, nil)

	status, body := getJSON(t, baseURL+"/status")
	if status != http.StatusOK {
		t.Fatalf("status=%d, want %d", status, http.StatusOK)
	}
	if body["connected"] != true || body["state"] != "checking" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["channelId"] != "room-1" || body["role"] != "recvonly" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Inc(metrics.SignalingConnected)
	baseURL := startTestServer(t, config.Config{}, &fakeStatus{}, m)

	resp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := `aero_webrtc_signaling_client_events_total{event="` + metrics.SignalingConnected + `"} 1`
	if !strings.Contains(string(b), want) {
		t.Fatalf("metrics output missing %q:\n%s", want, b)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(config.Config{}, log, BuildInfo{}, nil, nil)
	srv.Mux().HandleFunc("GET /panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	resp, err := http.Get("http://" + ln.Addr().String() + "/panic")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", resp.StatusCode)
	}
}
