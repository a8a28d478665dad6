// Package cache keeps a local copy of each room's confirmed history so the
// timeline is not empty when the client opens a room offline.
package cache

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/classpoint/chat-client/internal/models"
	"github.com/classpoint/chat-client/internal/store"
)

// HistoryCache stores room timelines in the key-value store. All methods are
// nil-safe so callers can run without a cache configured.
type HistoryCache struct {
	store store.Store
}

func NewHistoryCache(s store.Store) *HistoryCache {
	return &HistoryCache{store: s}
}

func historyKey(roomID string) string {
	return fmt.Sprintf("chat_history_%s", roomID)
}

// Get retrieves the cached timeline for a room. The second return value is
// false on a miss or a decode failure.
func (hc *HistoryCache) Get(roomID string) ([]models.Message, bool) {
	if hc == nil || hc.store == nil {
		return nil, false
	}
	data, err := hc.store.Get(historyKey(roomID))
	if err != nil || data == nil {
		return nil, false
	}

	var messages []models.Message
	if err := msgpack.Unmarshal(data, &messages); err != nil {
		return nil, false
	}
	return messages, true
}

// Set caches a room timeline, keeping only confirmed messages; optimistic
// entries are owned by the pending queue, not the cache.
func (hc *HistoryCache) Set(roomID string, messages []models.Message) error {
	if hc == nil || hc.store == nil {
		return nil
	}

	confirmed := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if !m.IsTemp() {
			confirmed = append(confirmed, m)
		}
	}

	data, err := msgpack.Marshal(confirmed)
	if err != nil {
		return err
	}
	return hc.store.Set(historyKey(roomID), data)
}

// Invalidate removes a room's cached timeline.
func (hc *HistoryCache) Invalidate(roomID string) error {
	if hc == nil || hc.store == nil {
		return nil
	}
	return hc.store.Delete(historyKey(roomID))
}
