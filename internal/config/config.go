package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/tidwall/jsonc"
)

const (
	envVarMode            = "AERO_WEBRTC_SIGNALING_CLIENT_MODE"
	envVarLogFormat       = "AERO_WEBRTC_SIGNALING_CLIENT_LOG_FORMAT"
	envVarLogLevel        = "AERO_WEBRTC_SIGNALING_CLIENT_LOG_LEVEL"
	envVarStatusAddr      = "AERO_WEBRTC_SIGNALING_CLIENT_STATUS_ADDR"
	envVarShutdownTimeout = "AERO_WEBRTC_SIGNALING_CLIENT_SHUTDOWN_TIMEOUT"

	// Signaling session.
	envVarSignalingURL  = "AERO_SIGNALING_URL"
	envVarChannelID     = "AERO_SIGNALING_CHANNEL_ID"
	envVarRole          = "AERO_SIGNALING_ROLE"
	envVarMultistream   = "AERO_SIGNALING_MULTISTREAM"
	envVarMetadata      = "AERO_SIGNALING_METADATA"
	envVarMetadataFile  = "AERO_SIGNALING_METADATA_FILE"
	envVarVideoCodec    = "AERO_SIGNALING_VIDEO_CODEC"
	envVarVideoBitRate  = "AERO_SIGNALING_VIDEO_BIT_RATE"
	envVarAudioCodec    = "AERO_SIGNALING_AUDIO_CODEC"
	envVarAudioBitRate  = "AERO_SIGNALING_AUDIO_BIT_RATE"
	envVarInsecure      = "AERO_SIGNALING_INSECURE"
	envVarSoraClient    = "AERO_SIGNALING_SORA_CLIENT"
	envVarLibWebRTC     = "AERO_SIGNALING_LIBWEBRTC"
	envVarEnvironment   = "AERO_SIGNALING_ENVIRONMENT"
	envVarMaxMessageLen = "MAX_SIGNALING_MESSAGE_BYTES"

	DefaultStatusAddr                    = "127.0.0.1:8081"
	DefaultShutdown                      = 15 * time.Second
	DefaultMode                     Mode = ModeDev
	DefaultRole                          = "recvonly"
	DefaultVideoCodec                    = "VP8"
	DefaultAudioCodec                    = "OPUS"
	DefaultSoraClient                    = "aero-webrtc-signaling-client"
	DefaultMaxSignalingMessageBytes      = int64(1 << 20)
	pionWebRTCModulePath                 = "github.com/pion/webrtc/v4"
)

var errMetadataConflict = errors.New("metadata and metadata file are mutually exclusive")

type Config struct {
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode
	// StatusAddr is the listen address of the local status server. Empty
	// disables it.
	StatusAddr string

	// Signaling session.
	SignalingURL string
	ChannelID    string
	// Role is one of sendonly, recvonly or sendrecv.
	Role        string
	Multistream bool
	// Metadata is forwarded verbatim in the connect message. Nil when unset
	// or when the configured value was not valid JSON (see MetadataError).
	Metadata     json.RawMessage
	VideoCodec   string
	VideoBitRate int
	AudioCodec   string
	AudioBitRate int
	// Insecure disables TLS certificate verification for wss:// URLs.
	Insecure    bool
	SoraClient  string
	LibWebRTC   string
	Environment string

	MaxSignalingMessageBytes int64

	// ICEServers are added to the list received in each offer.
	ICEServers []webrtc.ICEServer

	// ICE socket settings, see network.go. A nil port range leaves port
	// selection to the OS.
	WebRTCUDPPortRange           *UDPPortRange
	WebRTCNAT1To1IPs             []string
	WebRTCNAT1To1IPCandidateType NAT1To1IPCandidateType

	// WebRTCUDPListenIP limits ICE to one local address; unspecified means all.
	WebRTCUDPListenIP net.IP

	iceConfigErr error
	metadataErr  error
}

func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

// MetadataError reports why configured metadata was dropped. Invalid metadata
// does not fail Load; callers are expected to log it.
func (c Config) MetadataError() error {
	return c.metadataErr
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	statusAddr := envOrDefault(lookup, envVarStatusAddr, DefaultStatusAddr)
	signalingURL := envOrDefault(lookup, envVarSignalingURL, "")
	channelID := envOrDefault(lookup, envVarChannelID, "")
	roleStr := envOrDefault(lookup, envVarRole, DefaultRole)
	metadataStr := envOrDefault(lookup, envVarMetadata, "")
	metadataFile := envOrDefault(lookup, envVarMetadataFile, "")
	videoCodec := envOrDefault(lookup, envVarVideoCodec, DefaultVideoCodec)
	audioCodec := envOrDefault(lookup, envVarAudioCodec, DefaultAudioCodec)
	soraClient := envOrDefault(lookup, envVarSoraClient, DefaultSoraClient)
	libWebRTC := envOrDefault(lookup, envVarLibWebRTC, defaultLibWebRTC())
	environment := envOrDefault(lookup, envVarEnvironment, defaultEnvironment())
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	multistream, err := envBoolOrDefault(lookup, envVarMultistream, false)
	if err != nil {
		return Config{}, err
	}
	insecure, err := envBoolOrDefault(lookup, envVarInsecure, false)
	if err != nil {
		return Config{}, err
	}
	videoBitRate, err := envIntOrDefault(lookup, envVarVideoBitRate, 0)
	if err != nil {
		return Config{}, err
	}
	audioBitRate, err := envIntOrDefault(lookup, envVarAudioBitRate, 0)
	if err != nil {
		return Config{}, err
	}

	maxSignalingMessageBytes := DefaultMaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxMessageLen); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxMessageLen, raw, err)
		}
		maxSignalingMessageBytes = n
	}

	shutdownTimeout := DefaultShutdown
	if raw, ok := lookup(envVarShutdownTimeout); ok && raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarShutdownTimeout, raw, err)
		}
		shutdownTimeout = d
	}

	network, err := networkSettingsFromEnv(lookup)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("aero-webrtc-signaling-client", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text, json or pretty")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")
	fs.StringVar(&statusAddr, "status-addr", statusAddr, "Local status HTTP listen address; empty disables (env "+envVarStatusAddr+")")

	fs.StringVar(&signalingURL, "signaling-url", signalingURL, "Signaling server URL, ws:// or wss:// (env "+envVarSignalingURL+")")
	fs.StringVar(&channelID, "channel-id", channelID, "Channel to join (env "+envVarChannelID+")")
	fs.StringVar(&roleStr, "role", roleStr, "Media role: sendonly, recvonly or sendrecv (env "+envVarRole+")")
	fs.BoolVar(&multistream, "multistream", multistream, "Request a multistream session (env "+envVarMultistream+")")
	fs.StringVar(&metadataStr, "metadata", metadataStr, "Inline JSON metadata sent with connect (env "+envVarMetadata+")")
	fs.StringVar(&metadataFile, "metadata-file", metadataFile, "Path to JSON (comments allowed) metadata sent with connect (env "+envVarMetadataFile+")")
	fs.StringVar(&videoCodec, "video-codec", videoCodec, "Requested video codec (env "+envVarVideoCodec+")")
	fs.IntVar(&videoBitRate, "video-bit-rate", videoBitRate, "Requested video bit rate in kbps (0 = server default; env "+envVarVideoBitRate+")")
	fs.StringVar(&audioCodec, "audio-codec", audioCodec, "Requested audio codec (env "+envVarAudioCodec+")")
	fs.IntVar(&audioBitRate, "audio-bit-rate", audioBitRate, "Requested audio bit rate in kbps (0 = server default; env "+envVarAudioBitRate+")")
	fs.BoolVar(&insecure, "insecure", insecure, "Skip TLS certificate verification for wss:// (env "+envVarInsecure+")")
	fs.StringVar(&soraClient, "sora-client", soraClient, "Client identification string (env "+envVarSoraClient+")")
	fs.StringVar(&libWebRTC, "libwebrtc", libWebRTC, "WebRTC library identification string (env "+envVarLibWebRTC+")")
	fs.StringVar(&environment, "environment", environment, "Free-form environment description (env "+envVarEnvironment+")")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max inbound signaling WS message size in bytes (env "+envVarMaxMessageLen+")")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "Extra ICE server JSON config (AERO_ICE_SERVERS_JSON)")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs (AERO_STUN_URLS)")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs (AERO_TURN_URLS)")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username (AERO_TURN_USERNAME)")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential (AERO_TURN_CREDENTIAL)")

	network.register(fs)

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}

	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	role, err := parseRole(roleStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/--role: %w", envVarRole, err)
	}

	signalingURL = strings.TrimSpace(signalingURL)
	if signalingURL == "" {
		return Config{}, fmt.Errorf("%s/--signaling-url must be set", envVarSignalingURL)
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", envVarMaxMessageLen)
	}
	if videoBitRate < 0 {
		return Config{}, fmt.Errorf("%s/--video-bit-rate must be >= 0 (0 = server default)", envVarVideoBitRate)
	}
	if audioBitRate < 0 {
		return Config{}, fmt.Errorf("%s/--audio-bit-rate must be >= 0 (0 = server default)", envVarAudioBitRate)
	}
	if strings.TrimSpace(metadataStr) != "" && strings.TrimSpace(metadataFile) != "" {
		return Config{}, fmt.Errorf("%s/--metadata and %s/--metadata-file: %w", envVarMetadata, envVarMetadataFile, errMetadataConflict)
	}

	cfg := Config{
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,
		StatusAddr:      strings.TrimSpace(statusAddr),

		SignalingURL: signalingURL,
		ChannelID:    strings.TrimSpace(channelID),
		Role:         role,
		Multistream:  multistream,
		VideoCodec:   strings.TrimSpace(videoCodec),
		VideoBitRate: videoBitRate,
		AudioCodec:   strings.TrimSpace(audioCodec),
		AudioBitRate: audioBitRate,
		Insecure:     insecure,
		SoraClient:   soraClient,
		LibWebRTC:    libWebRTC,
		Environment:  environment,

		MaxSignalingMessageBytes: maxSignalingMessageBytes,
	}
	if err := network.apply(&cfg); err != nil {
		return Config{}, err
	}

	switch {
	case strings.TrimSpace(metadataFile) != "":
		data, err := os.ReadFile(strings.TrimSpace(metadataFile))
		if err != nil {
			return Config{}, fmt.Errorf("read %s/--metadata-file: %w", envVarMetadataFile, err)
		}
		cfg.Metadata, cfg.metadataErr = ParseMetadata(data)
	case strings.TrimSpace(metadataStr) != "":
		cfg.Metadata, cfg.metadataErr = ParseMetadata([]byte(metadataStr))
	}

	iceServers, err := parseICEServersFromValues(
		iceServersJSON,
		stunURLs,
		turnURLs,
		turnUsername,
		turnCredential,
	)
	if err != nil {
		cfg.iceConfigErr = err
	} else {
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

// ParseMetadata validates connect metadata. Comments and trailing commas are
// accepted and stripped; anything else that is not valid JSON is rejected.
func ParseMetadata(data []byte) (json.RawMessage, error) {
	stripped := jsonc.ToJSON(data)
	if !json.Valid(stripped) {
		return nil, errors.New("metadata is not valid JSON")
	}
	return json.RawMessage(stripped), nil
}

// defaultLibWebRTC reports the linked pion/webrtc version.
func defaultLibWebRTC() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == pionWebRTCModulePath && dep.Version != "" {
				return "pion/webrtc " + dep.Version
			}
		}
	}
	return "pion/webrtc/v4"
}

func defaultEnvironment() string {
	return fmt.Sprintf("%s/%s %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// parseRole normalizes the media role, accepting the upstream/downstream
// aliases.
func parseRole(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sendonly", "upstream":
		return "sendonly", nil
	case "recvonly", "downstream":
		return "recvonly", nil
	case "sendrecv":
		return "sendrecv", nil
	default:
		return "", fmt.Errorf("invalid role %q (expected sendonly, recvonly or sendrecv)", raw)
	}
}

