package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/config"
)

type messageType string

const (
	messageTypeConnect   messageType = "connect"
	messageTypeOffer     messageType = "offer"
	messageTypeAnswer    messageType = "answer"
	messageTypeUpdate    messageType = "update"
	messageTypeCandidate messageType = "candidate"
	messageTypeNotify    messageType = "notify"
	messageTypePing      messageType = "ping"
	messageTypePong      messageType = "pong"
)

var (
	errMissingType   = errors.New("message missing type")
	errMissingSDP    = errors.New("message missing sdp")
	errMissingConfig = errors.New("offer message missing config")
)

type mediaBlock struct {
	CodecType string `json:"codec_type"`
	BitRate   int    `json:"bit_rate,omitempty"`
}

type connectMessage struct {
	Type        messageType     `json:"type"`
	Role        Role            `json:"role"`
	Multistream bool            `json:"multistream"`
	ChannelID   string          `json:"channel_id"`
	SoraClient  string          `json:"sora_client"`
	LibWebRTC   string          `json:"libwebrtc"`
	Environment string          `json:"environment"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Video       mediaBlock      `json:"video"`
	Audio       mediaBlock      `json:"audio"`
}

// answerMessage is used for outbound "answer" and "update" replies.
type answerMessage struct {
	Type messageType `json:"type"`
	SDP  string      `json:"sdp"`
}

type candidateMessage struct {
	Type      messageType `json:"type"`
	Candidate string      `json:"candidate"`
}

type pongMessage struct {
	Type  messageType     `json:"type"`
	Stats json.RawMessage `json:"stats,omitempty"`
}

type offerConfig struct {
	ICEServers json.RawMessage `json:"iceServers"`
}

type offerMessage struct {
	Type   messageType  `json:"type"`
	Config *offerConfig `json:"config"`
	SDP    string       `json:"sdp"`
}

type pingMessage struct {
	Type  messageType `json:"type"`
	Stats *bool       `json:"stats"`
}

// inboundMessage is the decoded, validated form of a server message.
type inboundMessage struct {
	Type messageType

	// offer, update
	SDP string
	// offer
	ICEServers []webrtc.ICEServer
	// offer: unusable iceServers entries that were left out
	SkippedICEServers []error
	// ping
	WantStats bool
	// notify
	Raw string
}

func newConnectMessage(cfg Config) connectMessage {
	msg := connectMessage{
		Type:        messageTypeConnect,
		Role:        cfg.Role,
		Multistream: cfg.Multistream,
		ChannelID:   cfg.ChannelID,
		SoraClient:  cfg.ClientID,
		LibWebRTC:   cfg.LibWebRTC,
		Environment: cfg.Environment,
		Video:       mediaBlock{CodecType: cfg.Video.Codec},
		Audio:       mediaBlock{CodecType: cfg.Audio.Codec},
	}
	if cfg.hasMetadata() {
		msg.Metadata = cfg.Metadata
	}
	if cfg.Video.BitRate != 0 {
		msg.Video.BitRate = cfg.Video.BitRate
	}
	if cfg.Audio.BitRate != 0 {
		msg.Audio.BitRate = cfg.Audio.BitRate
	}
	return msg
}

func encodeConnect(cfg Config) (string, error) {
	return encode(newConnectMessage(cfg))
}

// encodeSDP builds the reply to an offer (typ=answer) or update (typ=update).
func encodeSDP(typ messageType, sdp string) (string, error) {
	return encode(answerMessage{Type: typ, SDP: sdp})
}

func encodeCandidate(candidate string) (string, error) {
	return encode(candidateMessage{Type: messageTypeCandidate, Candidate: candidate})
}

// encodePong embeds stats verbatim. A nil report produces a bare pong.
func encodePong(stats []byte) (string, error) {
	return encode(pongMessage{Type: messageTypePong, Stats: stats})
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeMessage parses one inbound text frame. Unknown message types decode
// successfully with only Type set so callers can ignore them.
func decodeMessage(text string) (inboundMessage, error) {
	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return inboundMessage{}, err
	}
	if envelope.Type == nil {
		return inboundMessage{}, errMissingType
	}

	msg := inboundMessage{Type: messageType(*envelope.Type)}
	switch msg.Type {
	case messageTypeOffer:
		var offer offerMessage
		if err := json.Unmarshal([]byte(text), &offer); err != nil {
			return inboundMessage{}, err
		}
		if offer.Config == nil {
			return inboundMessage{}, errMissingConfig
		}
		if offer.SDP == "" {
			return inboundMessage{}, fmt.Errorf("offer: %w", errMissingSDP)
		}
		iceServers, skipped, err := config.ParseOfferICEServers(offer.Config.ICEServers)
		if err != nil {
			return inboundMessage{}, fmt.Errorf("offer config: %w", err)
		}
		msg.SDP = offer.SDP
		msg.ICEServers = iceServers
		msg.SkippedICEServers = skipped
	case messageTypeUpdate:
		var update answerMessage
		if err := json.Unmarshal([]byte(text), &update); err != nil {
			return inboundMessage{}, err
		}
		if update.SDP == "" {
			return inboundMessage{}, fmt.Errorf("update: %w", errMissingSDP)
		}
		msg.SDP = update.SDP
	case messageTypePing:
		var ping pingMessage
		if err := json.Unmarshal([]byte(text), &ping); err != nil {
			return inboundMessage{}, err
		}
		msg.WantStats = ping.Stats != nil && *ping.Stats
	case messageTypeNotify:
		msg.Raw = text
	}
	return msg, nil
}
