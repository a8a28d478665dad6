package transport

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	data, err := EncodeEnvelope(EventSendMessage, SendRequest{
		RoomID:   "room-1",
		Text:     "hello",
		ClientID: "tmp_1",
	})
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Type != EventSendMessage {
		t.Errorf("type = %q, want %q", env.Type, EventSendMessage)
	}

	var req SendRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if req.RoomID != "room-1" || req.Text != "hello" || req.ClientID != "tmp_1" {
		t.Errorf("payload = %+v", req)
	}
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "not json at all"},
		{"missing type", `{"payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeEnvelope([]byte(tt.data)); err == nil {
				t.Error("DecodeEnvelope succeeded, want error")
			}
		})
	}
}

func TestSendRequestOmitsEmptyClientID(t *testing.T) {
	data, err := EncodeEnvelope(EventSendMessage, SendRequest{RoomID: "r", Text: "t"})
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(env.Payload, &raw); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if _, ok := raw["clientId"]; ok {
		t.Error("empty clientId serialized")
	}
}
