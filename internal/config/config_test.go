package config

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// baseEnv holds the required settings so tests only list what they change.
func baseEnv(extra map[string]string) func(string) (string, bool) {
	m := map[string]string{
		envVarSignalingURL: "wss://sora.example.test/signaling",
		envVarChannelID:    "room-1",
	}
	for k, v := range extra {
		m[k] = v
	}
	return lookupMap(m)
}

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(baseEnv(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want debug", cfg.LogLevel)
	}
	if cfg.StatusAddr != DefaultStatusAddr {
		t.Fatalf("StatusAddr=%q, want %q", cfg.StatusAddr, DefaultStatusAddr)
	}
	if cfg.WebRTCUDPPortRange != nil {
		t.Fatalf("expected WebRTCUDPPortRange unset, got %+v", *cfg.WebRTCUDPPortRange)
	}
	if !cfg.WebRTCUDPListenIP.Equal(net.IPv4zero) {
		t.Fatalf("WebRTCUDPListenIP=%v, want 0.0.0.0", cfg.WebRTCUDPListenIP)
	}
	if cfg.WebRTCNAT1To1IPCandidateType != NAT1To1CandidateTypeHost {
		t.Fatalf("WebRTCNAT1To1IPCandidateType=%q, want %q", cfg.WebRTCNAT1To1IPCandidateType, NAT1To1CandidateTypeHost)
	}
	if len(cfg.WebRTCNAT1To1IPs) != 0 {
		t.Fatalf("expected WebRTCNAT1To1IPs empty, got %v", cfg.WebRTCNAT1To1IPs)
	}
	if cfg.Role != DefaultRole || cfg.VideoCodec != DefaultVideoCodec || cfg.AudioCodec != DefaultAudioCodec {
		t.Fatalf("unexpected media defaults: role=%q video=%q audio=%q", cfg.Role, cfg.VideoCodec, cfg.AudioCodec)
	}
	if cfg.VideoBitRate != 0 || cfg.AudioBitRate != 0 {
		t.Fatalf("bit rates should default to 0 (server default)")
	}
	if cfg.SoraClient != DefaultSoraClient {
		t.Fatalf("SoraClient=%q, want %q", cfg.SoraClient, DefaultSoraClient)
	}
	if cfg.LibWebRTC == "" || cfg.Environment == "" {
		t.Fatalf("identification defaults should be derived: libwebrtc=%q environment=%q", cfg.LibWebRTC, cfg.Environment)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Fatalf("MaxSignalingMessageBytes=%d, want %d", cfg.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	}
	if cfg.Metadata != nil || cfg.MetadataError() != nil {
		t.Fatalf("metadata should be unset: %s %v", cfg.Metadata, cfg.MetadataError())
	}
	if cfg.ICEConfigError() != nil || len(cfg.ICEServers) != 0 {
		t.Fatalf("ICE servers should be empty: %v %v", cfg.ICEServers, cfg.ICEConfigError())
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(baseEnv(nil), []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want info", cfg.LogLevel)
	}
}

func TestLogFormatExplicitOverride(t *testing.T) {
	cfg, err := load(baseEnv(nil), []string{"--mode", "prod", "--log-format", "pretty"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatPretty {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatPretty)
	}
}

func TestRequiresSignalingURL(t *testing.T) {
	_, err := load(lookupMap(nil), nil)
	if err == nil || !strings.Contains(err.Error(), envVarSignalingURL) {
		t.Fatalf("err=%v, want mention of %s", err, envVarSignalingURL)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(baseEnv(map[string]string{
		envVarRole:         "sendonly",
		envVarVideoBitRate: "500",
		envVarMultistream:  "false",
	}), []string{
		"--role", "downstream",
		"--video-bit-rate", "1500",
		"--audio-bit-rate", "64",
		"--multistream",
		"--insecure",
		"--channel-id", "override",
		"--status-addr", "",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Role != "recvonly" {
		t.Fatalf("Role=%q, want recvonly", cfg.Role)
	}
	if cfg.VideoBitRate != 1500 || cfg.AudioBitRate != 64 {
		t.Fatalf("bit rates=%d/%d, want 1500/64", cfg.VideoBitRate, cfg.AudioBitRate)
	}
	if !cfg.Multistream || !cfg.Insecure {
		t.Fatalf("multistream=%v insecure=%v, want both true", cfg.Multistream, cfg.Insecure)
	}
	if cfg.ChannelID != "override" {
		t.Fatalf("ChannelID=%q, want override", cfg.ChannelID)
	}
	if cfg.StatusAddr != "" {
		t.Fatalf("StatusAddr=%q, want empty (disabled)", cfg.StatusAddr)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string][]string{
		"role":          {"--role", "both"},
		"mode":          {"--mode", "staging"},
		"log format":    {"--log-format", "xml"},
		"log level":     {"--log-level", "trace"},
		"bit rate":      {"--video-bit-rate", "-1"},
		"message bytes": {"--max-signaling-message-bytes", "0"},
		"shutdown":      {"--shutdown-timeout", "0s"},
		"listen ip":     {"--webrtc-udp-listen-ip", "not-an-ip"},
		"nat ips":       {"--webrtc-nat-1to1-ips", "host.example"},
		"candidate":     {"--webrtc-nat-1to1-ip-candidate-type", "relay"},
	}
	for name, args := range cases {
		if _, err := load(baseEnv(nil), args); err == nil {
			t.Fatalf("%s: expected error for %v", name, args)
		}
	}

	if _, err := load(baseEnv(map[string]string{envVarInsecure: "maybe"}), nil); err == nil {
		t.Fatalf("expected error for invalid %s", envVarInsecure)
	}
}

func TestWebRTCUDPPortRange_RequiresBoth(t *testing.T) {
	_, err := load(baseEnv(map[string]string{
		envVarWebRTCUDPPortMin: "40000",
	}), nil)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestWebRTCUDPPortRange(t *testing.T) {
	cfg, err := load(baseEnv(map[string]string{
		envVarWebRTCUDPPortMin: "40000",
		envVarWebRTCUDPPortMax: "40010",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WebRTCUDPPortRange == nil || cfg.WebRTCUDPPortRange.Min != 40000 || cfg.WebRTCUDPPortRange.Max != 40010 {
		t.Fatalf("WebRTCUDPPortRange=%+v", cfg.WebRTCUDPPortRange)
	}

	if _, err := load(baseEnv(nil), []string{"--webrtc-udp-port-min", "5000", "--webrtc-udp-port-max", "4000"}); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestWebRTCNAT1To1IPs(t *testing.T) {
	cfg, err := load(baseEnv(nil), []string{
		"--webrtc-nat-1to1-ips", "203.0.113.1, 2001:db8::1",
		"--webrtc-nat-1to1-ip-candidate-type", "srflx",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.WebRTCNAT1To1IPs) != 2 || cfg.WebRTCNAT1To1IPs[1] != "2001:db8::1" {
		t.Fatalf("WebRTCNAT1To1IPs=%v", cfg.WebRTCNAT1To1IPs)
	}
	if cfg.WebRTCNAT1To1IPCandidateType != NAT1To1CandidateTypeSrflx {
		t.Fatalf("candidate type=%q, want srflx", cfg.WebRTCNAT1To1IPCandidateType)
	}
}

func TestMetadataInline(t *testing.T) {
	cfg, err := load(baseEnv(nil), []string{"--metadata", `{"access_token":"abc"}`})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(cfg.Metadata) != `{"access_token":"abc"}` || cfg.MetadataError() != nil {
		t.Fatalf("Metadata=%s err=%v", cfg.Metadata, cfg.MetadataError())
	}
}

func TestMetadataInvalidIsDroppedNotFatal(t *testing.T) {
	cfg, err := load(baseEnv(map[string]string{envVarMetadata: `{"access_token":`}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Metadata != nil {
		t.Fatalf("invalid metadata kept: %s", cfg.Metadata)
	}
	if cfg.MetadataError() == nil {
		t.Fatalf("expected MetadataError")
	}
}

func TestMetadataFileAllowsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.jsonc")
	data := "{\n  // issued by the auth service\n  \"access_token\": \"abc\",\n}\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := load(baseEnv(nil), []string{"--metadata-file", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MetadataError() != nil {
		t.Fatalf("MetadataError: %v", cfg.MetadataError())
	}
	if !strings.Contains(string(cfg.Metadata), `"access_token": "abc"`) {
		t.Fatalf("Metadata=%s", cfg.Metadata)
	}
	if strings.Contains(string(cfg.Metadata), "//") {
		t.Fatalf("comments not stripped: %s", cfg.Metadata)
	}
}

func TestMetadataFileMissing(t *testing.T) {
	_, err := load(baseEnv(nil), []string{"--metadata-file", filepath.Join(t.TempDir(), "missing.json")})
	if err == nil {
		t.Fatalf("expected error for missing metadata file")
	}
}

func TestMetadataConflict(t *testing.T) {
	_, err := load(baseEnv(map[string]string{envVarMetadata: `{}`}), []string{"--metadata-file", "x.json"})
	if !errors.Is(err, errMetadataConflict) {
		t.Fatalf("err=%v, want errMetadataConflict", err)
	}
}

func TestICEServersConfigErrorIsDeferred(t *testing.T) {
	cfg, err := load(baseEnv(map[string]string{
		envTurnURLs: "turn:turn.example.com:3478",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICEConfigError for TURN without credentials")
	}
}

func TestICEServersFromFlags(t *testing.T) {
	cfg, err := load(baseEnv(nil), []string{"--stun-urls", "stun:a.example.com,stun:b.example.com"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ICEServers) != 1 || len(cfg.ICEServers[0].URLs) != 2 {
		t.Fatalf("ICEServers=%#v", cfg.ICEServers)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON, LogFormatPretty} {
		logger, err := NewLogger(Config{LogFormat: format, LogLevel: slog.LevelWarn})
		if err != nil || logger == nil {
			t.Fatalf("NewLogger(%s): %v", format, err)
		}
	}
	if _, err := NewLogger(Config{LogFormat: "xml"}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestPtermLogLevel(t *testing.T) {
	if ptermLogLevel(slog.LevelDebug) == ptermLogLevel(slog.LevelError) {
		t.Fatalf("debug and error should map to different pterm levels")
	}
	if ptermLogLevel(slog.LevelWarn+1) != ptermLogLevel(slog.LevelError) {
		t.Fatalf("levels above warn should map to error")
	}
}
