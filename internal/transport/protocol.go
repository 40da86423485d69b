// Package transport exposes the avatar WebSocket endpoint: token
// sources in, framed audio out.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// MessageType tags a protocol envelope.
type MessageType string

const (
	// Inbound
	TypeAsk       MessageType = "ask"       // run a model turn and speak the reply
	TypeSay       MessageType = "say"       // speak literal text
	TypeInterrupt MessageType = "interrupt" // cancel the current turn
	TypeVoice     MessageType = "voice"     // switch the active voice

	// Outbound
	TypeReady    MessageType = "ready"     // session parameters, sent once on connect
	TypeFrame    MessageType = "frame"     // one audio frame
	TypeTurnDone MessageType = "turn.done" // model stream finished
	TypeError    MessageType = "error"
)

// Envelope is the wire container for every message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AskPayload requests a conversation turn.
type AskPayload struct {
	Text string `json:"text"`
}

// SayPayload requests literal speech without a model turn.
type SayPayload struct {
	Text string `json:"text"`
}

// VoicePayload selects a voice by catalog identifier.
type VoicePayload struct {
	ID string `json:"id"`
}

// ReadyPayload announces the session's audio contract.
type ReadyPayload struct {
	SessionID  string            `json:"session_id"`
	SampleRate int               `json:"sample_rate"`
	Channels   int               `json:"channels"`
	FrameSize  int               `json:"frame_size"`
	Encoding   string            `json:"encoding"` // "pcm" or "ulaw"
	Voices     map[string]string `json:"voices"`
}

// FramePayload carries one fixed-size audio frame. Event is set on
// exactly one start and one end frame per utterance.
type FramePayload struct {
	Seq   uint64 `json:"seq"`
	Audio string `json:"audio"` // base64 of the wire-encoded samples
	Event string `json:"event,omitempty"`
}

// VoicePayloadAck reports the effective voice after a switch.
type VoicePayloadAck struct {
	ID string `json:"id"`
}

// ErrorPayload reports a non-fatal session error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Marshal encodes an envelope with its payload.
func Marshal(msgType MessageType, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := sonic.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("transport: marshal payload for %q: %w", msgType, err)
		}
		raw = b
	}
	return sonic.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Unmarshal decodes an envelope, returning its type and raw payload.
func Unmarshal(data []byte) (MessageType, json.RawMessage, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("transport: unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("transport: envelope missing type field")
	}
	return env.Type, env.Payload, nil
}

// UnmarshalPayload decodes a raw payload into a typed struct.
func UnmarshalPayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("transport: empty payload")
	}
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("transport: unmarshal payload: %w", err)
	}
	return v, nil
}
