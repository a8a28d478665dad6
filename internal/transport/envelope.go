// Package transport implements the two delivery channels the engine drives:
// the realtime websocket channel and the HTTP request/response fallback.
package transport

import (
	"encoding/json"
	"fmt"
)

// Event names on the realtime channel.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventNewMessage  = "newMessage"
)

// Envelope is the wire wrapper for every realtime frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RoomRequest is the payload for joinRoom and leaveRoom.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// SendRequest is the payload for sendMessage. ClientID carries the sender's
// temporary ID; a server that echoes it back in the broadcast lets the
// client reconcile by identity instead of by text matching.
type SendRequest struct {
	RoomID   string `json:"roomId"`
	Text     string `json:"text"`
	ClientID string `json:"clientId,omitempty"`
}

func EncodeEnvelope(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Type: event, Payload: raw})
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	return &env, nil
}
