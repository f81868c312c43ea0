package signaling

import (
	"encoding/json"
	"reflect"
	"testing"
)

func FuzzDecodeMessage(f *testing.F) {
	f.Add(`{"type":"offer","config":{"iceServers":[{"urls":"stun:a.test"}]},"sdp":"v=0"}`)
	f.Add(`{"type":"offer","config":{"iceServers":[{"urls":["turn:b.test"],"username":"u","credential":"p"},{"urls":[]}]},"sdp":"v=0"}`)
	f.Add(`{"type":"update","sdp":"v=0"}`)
	f.Add(`{"type":"ping","stats":true}`)
	f.Add(`{"type":"ping"}`)
	f.Add(`{"type":"notify","event_type":"connection.created"}`)

	// Known-bad cases from unit tests and common mistakes.
	f.Add(`{"type":"offer","sdp":"v=0"}`)
	f.Add(`{"type":"offer","config":{"iceServers":{}},"sdp":"v=0"}`)
	f.Add(`{"type":"update"}`)
	f.Add(`{"type":"ping","stats":"yes"}`)
	f.Add(`{"type":1}`)
	f.Add(`{"type":"bogus"}`)
	f.Add(`{"type":"ping"}{"type":"ping"}`)
	f.Add(`null`)
	f.Add(`[]`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, text string) {
		msg1, err1 := decodeMessage(text)
		msg2, err2 := decodeMessage(text)
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("non-deterministic decode result: err1=%v err2=%v", err1, err2)
		}
		if err1 != nil {
			if !reflect.DeepEqual(msg1, inboundMessage{}) {
				t.Fatalf("failed decode returned a message: %#v", msg1)
			}
			return
		}
		if !reflect.DeepEqual(msg1, msg2) {
			t.Fatalf("non-deterministic decode output: msg1=%#v msg2=%#v", msg1, msg2)
		}

		// Only a single well-formed JSON value decodes.
		if !json.Valid([]byte(text)) {
			t.Fatalf("decode succeeded but json.Valid returned false")
		}

		switch msg1.Type {
		case messageTypeOffer, messageTypeUpdate:
			if msg1.SDP == "" {
				t.Fatalf("%s decoded without sdp", msg1.Type)
			}
		case messageTypeNotify:
			if msg1.Raw != text {
				t.Fatalf("notify raw=%q, want %q", msg1.Raw, text)
			}
		}
		if msg1.Type != messageTypeOffer && (msg1.ICEServers != nil || msg1.SkippedICEServers != nil) {
			t.Fatalf("%s carries ice servers: %#v", msg1.Type, msg1)
		}
		for i, s := range msg1.ICEServers {
			if len(s.URLs) == 0 {
				t.Fatalf("ice server %d has no urls", i)
			}
		}

		// Answers built from a decoded SDP must always encode.
		if msg1.SDP != "" {
			if _, err := encodeSDP(messageTypeAnswer, msg1.SDP); err != nil {
				t.Fatalf("encode answer: %v", err)
			}
		}
	})
}
