package signaling

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the media direction requested in the connect message.
type Role string

const (
	RoleSendOnly Role = "sendonly"
	RoleRecvOnly Role = "recvonly"
	RoleSendRecv Role = "sendrecv"
)

// ParseRole accepts the wire names plus the upstream/downstream aliases used by
// older SDK configurations.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RoleSendOnly), "upstream":
		return RoleSendOnly, nil
	case string(RoleRecvOnly), "downstream":
		return RoleRecvOnly, nil
	case string(RoleSendRecv):
		return RoleSendRecv, nil
	default:
		return "", fmt.Errorf("invalid role %q (expected sendonly, recvonly or sendrecv)", raw)
	}
}

// MediaConfig selects the codec and optional bitrate for one media kind.
// BitRate 0 means "server default" and is omitted from the connect message.
type MediaConfig struct {
	Codec   string
	BitRate int
}

// Config describes one signaling session. It is copied by NewClient and never
// mutated afterwards.
type Config struct {
	URL         string
	Role        Role
	Multistream bool
	ChannelID   string
	// Metadata is forwarded verbatim. Empty or JSON null omits the field.
	Metadata json.RawMessage

	Video MediaConfig
	Audio MediaConfig

	// Insecure disables TLS certificate verification for wss:// URLs.
	Insecure bool

	// ClientID, LibWebRTC and Environment identify this client to the server
	// (sora_client, libwebrtc and environment in the connect message).
	ClientID    string
	LibWebRTC   string
	Environment string
}

func (c Config) clone() Config {
	if c.Metadata != nil {
		c.Metadata = append(json.RawMessage(nil), c.Metadata...)
	}
	return c
}

func (c Config) hasMetadata() bool {
	trimmed := strings.TrimSpace(string(c.Metadata))
	return trimmed != "" && trimmed != "null"
}
