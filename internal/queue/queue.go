// Package queue holds the durable pending-message queue: messages the user
// submitted that no transport has confirmed yet. The in-memory slice is the
// authoritative copy; every mutation writes the full snapshot back to the
// key-value store so a crash loses at most the in-flight mutation.
package queue

import (
	"encoding/json"
	"log"

	"github.com/classpoint/chat-client/internal/models"
	"github.com/classpoint/chat-client/internal/store"
)

// PendingKey is the storage key for the queue blob. It matches the key the
// mobile client writes, so queues persisted by either client interoperate.
const PendingKey = "chat_pending_messages_v1"

// PendingQueue is not safe for concurrent use on its own; the delivery
// engine is its only mutator and serializes access.
type PendingQueue struct {
	store   store.Store
	key     string
	entries []models.PendingEntry
}

func NewPendingQueue(s store.Store) *PendingQueue {
	return &PendingQueue{store: s, key: PendingKey}
}

// Load reads the persisted blob. A read failure or corrupt blob falls back
// to an empty queue; durability is degraded but the session keeps working.
func (q *PendingQueue) Load() {
	q.entries = nil
	if q.store == nil {
		return
	}

	raw, err := q.store.Get(q.key)
	if err != nil {
		log.Printf("pending queue: load failed, starting empty: %v", err)
		return
	}
	if raw == nil {
		return
	}

	var entries []models.PendingEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Printf("pending queue: corrupt blob, starting empty: %v", err)
		return
	}
	q.entries = entries
}

// persist writes the full snapshot. Last writer wins; a failed write is
// logged and dropped so the in-memory queue stays authoritative.
func (q *PendingQueue) persist() {
	if q.store == nil {
		return
	}

	blob, err := json.Marshal(q.snapshotNonNil())
	if err != nil {
		log.Printf("pending queue: marshal failed: %v", err)
		return
	}
	if err := q.store.Set(q.key, blob); err != nil {
		log.Printf("pending queue: persist failed: %v", err)
	}
}

func (q *PendingQueue) snapshotNonNil() []models.PendingEntry {
	if q.entries == nil {
		return []models.PendingEntry{}
	}
	return q.entries
}

// Append adds an entry and persists the queue.
func (q *PendingQueue) Append(entry models.PendingEntry) {
	q.entries = append(q.entries, entry)
	q.persist()
}

// Remove drops the entry with the given temporary ID, if present, and
// persists the queue. It reports whether an entry was removed.
func (q *PendingQueue) Remove(tempID string) bool {
	for i, e := range q.entries {
		if e.TempID == tempID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.persist()
			return true
		}
	}
	return false
}

// Contains reports whether an entry with the given temporary ID is queued.
func (q *PendingQueue) Contains(tempID string) bool {
	for _, e := range q.entries {
		if e.TempID == tempID {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current entries. Mutations made while a
// caller iterates the snapshot do not affect it.
func (q *PendingQueue) Snapshot() []models.PendingEntry {
	out := make([]models.PendingEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *PendingQueue) Len() int {
	return len(q.entries)
}
