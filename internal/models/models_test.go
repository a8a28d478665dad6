package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageIsTemp(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"optimistic sending message", Message{TempID: "tmp_1", Status: StatusSending}, true},
		{"optimistic pending message", Message{TempID: "tmp_1", Status: StatusPending}, true},
		{"confirmed message keeps temp id", Message{ID: "m1", TempID: "tmp_1", Status: StatusConfirmed}, false},
		{"server message without temp id", Message{ID: "m1", Status: StatusConfirmed}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsTemp(); got != tt.want {
				t.Errorf("IsTemp() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageWireShape(t *testing.T) {
	msg := Message{
		ID:         "m1",
		TempID:     "tmp_local",
		RoomID:     "room-1",
		SenderID:   "u1",
		SenderName: "Alice",
		Text:       "hello",
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:     StatusConfirmed,
	}

	data, err := json.Marshal(&msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire map[string]interface{}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if wire["id"] != "m1" || wire["roomId"] != "room-1" || wire["text"] != "hello" {
		t.Errorf("unexpected wire payload: %s", data)
	}
	for _, hidden := range []string{"tempId", "status"} {
		if _, ok := wire[hidden]; ok {
			t.Errorf("client-local field %q leaked onto the wire", hidden)
		}
	}
}

func TestPendingEntryBlobCompatibility(t *testing.T) {
	// Blob written by the mobile client; tag names must keep parsing it.
	blob := `[{"tempId":"tmp_1700000000000_42","roomId":"room-9","text":"hi","createdAt":"2025-06-01T12:00:00Z"}]`

	var entries []PendingEntry
	if err := json.Unmarshal([]byte(blob), &entries); err != nil {
		t.Fatalf("unmarshal legacy blob: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].TempID != "tmp_1700000000000_42" || entries[0].RoomID != "room-9" {
		t.Errorf("entry fields not mapped: %+v", entries[0])
	}
}
