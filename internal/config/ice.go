package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "AERO_ICE_SERVERS_JSON"

	envStunURLs       = "AERO_STUN_URLS"
	envTurnURLs       = "AERO_TURN_URLS"
	envTurnUsername   = "AERO_TURN_USERNAME"
	envTurnCredential = "AERO_TURN_CREDENTIAL"
)

var (
	errICEMissingURLs      = errors.New("missing urls")
	errICEEmptyURL         = errors.New("urls must not contain empty entries")
	errICEMissingTURNCreds = errors.New("turn urls require username and credential")
)

// parseICEServersFromValues resolves the extra ICE servers configured for
// this client. A JSON list wins over the STUN/TURN convenience settings.
func parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(iceServersJSON); raw != "" {
		servers, err := ParseICEServersJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}
	return ParseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential)
}

// iceServerEntry is one RTCIceServer-shaped object. urls may be a single
// string or an array of strings.
type iceServerEntry struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

type urlList []string

func (l *urlList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*l = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("urls must be a string or an array of strings: %w", err)
	}
	*l = many
	return nil
}

func (e iceServerEntry) server() (webrtc.ICEServer, error) {
	server := webrtc.ICEServer{Username: strings.TrimSpace(e.Username)}
	// Blank entries are kept so validateICEServer rejects them.
	for _, u := range e.URLs {
		server.URLs = append(server.URLs, strings.TrimSpace(u))
	}
	if cred := strings.TrimSpace(e.Credential); cred != "" {
		server.Credential = cred
	}
	return server, validateICEServer(server)
}

func decodeICEEntries(raw []byte) ([]iceServerEntry, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var entries []iceServerEntry
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ParseICEServersJSON parses and validates AERO_ICE_SERVERS_JSON.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	return ParseICEServers([]byte(raw))
}

// ParseICEServers parses a JSON array of ICE servers and rejects the whole
// list if any entry is invalid. Empty input and JSON null yield no servers.
func ParseICEServers(raw []byte) ([]webrtc.ICEServer, error) {
	entries, err := decodeICEEntries(raw)
	if err != nil {
		return nil, err
	}
	out := make([]webrtc.ICEServer, 0, len(entries))
	for i, entry := range entries {
		server, err := entry.server()
		if err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

// ParseOfferICEServers parses the iceServers list of a server offer. Only a
// structurally broken list is an error; individual unusable entries are
// returned in skipped so one bad entry does not abort negotiation.
func ParseOfferICEServers(raw []byte) (servers []webrtc.ICEServer, skipped []error, err error) {
	entries, err := decodeICEEntries(raw)
	if err != nil {
		return nil, nil, err
	}
	for i, entry := range entries {
		server, err := entry.server()
		if err != nil {
			skipped = append(skipped, fmt.Errorf("iceServers[%d]: %w", i, err))
			continue
		}
		servers = append(servers, server)
	}
	return servers, skipped, nil
}

// ParseICEServersFromConvenienceEnv builds one STUN and one TURN entry from
// comma-separated URL lists.
func ParseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if urls := splitCommaSeparated(stunURLs); len(urls) > 0 {
		server := webrtc.ICEServer{URLs: urls}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}

	if urls := splitCommaSeparated(turnURLs); len(urls) > 0 {
		entry := iceServerEntry{URLs: urls, Username: turnUsername, Credential: turnCredential}
		server, err := entry.server()
		if errors.Is(err, errICEMissingTURNCreds) {
			return nil, fmt.Errorf("%s/%s: both must be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, server)
	}

	return servers, nil
}

func splitCommaSeparated(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errICEMissingURLs
	}

	needsCreds := false
	for _, u := range server.URLs {
		if strings.TrimSpace(u) == "" {
			return errICEEmptyURL
		}
		switch iceScheme(u) {
		case "stun", "stuns":
		case "turn", "turns":
			needsCreds = true
		default:
			return fmt.Errorf("unsupported url scheme: %q", u)
		}
	}

	if needsCreds {
		cred, _ := server.Credential.(string)
		if server.Username == "" || strings.TrimSpace(cred) == "" {
			return errICEMissingTURNCreds
		}
	}
	return nil
}

func iceScheme(u string) string {
	scheme, _, ok := strings.Cut(u, ":")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}
