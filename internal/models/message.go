package models

import (
	"time"
)

type DeliveryStatus string

const (
	// StatusSending means the realtime emit went out and we are waiting
	// for the server's broadcast to confirm it.
	StatusSending DeliveryStatus = "sending"
	// StatusPending means the message sits in the pending queue with no
	// active transport; it will be retried on the next flush.
	StatusPending DeliveryStatus = "pending"
	// StatusConfirmed means the server acknowledged the message and the
	// local copy was replaced by the authoritative one. Terminal.
	StatusConfirmed DeliveryStatus = "confirmed"
)

// Message is one entry in a room timeline. Server-confirmed messages carry
// ID; optimistic local messages carry TempID until reconciliation collapses
// the two into a single entry.
type Message struct {
	ID         string    `json:"id,omitempty"`
	TempID     string    `json:"-"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`

	// Status is client-local delivery state, never sent on the wire.
	Status DeliveryStatus `json:"-"`
}

// IsTemp reports whether the message is still a client-side optimistic copy.
func (m *Message) IsTemp() bool {
	return m.TempID != "" && m.Status != StatusConfirmed
}

func (m *Message) Confirmed() bool {
	return m.Status == StatusConfirmed
}

// PendingEntry is the durable record of a message not yet confirmed by the
// server. The JSON tags match the blob layout the mobile app already writes,
// so a queue persisted by an older client replays cleanly.
type PendingEntry struct {
	TempID    string    `json:"tempId"`
	RoomID    string    `json:"roomId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
