// Package engine implements the message delivery core: optimistic timeline
// updates, the durable pending queue, realtime-first transport selection with
// HTTP fallback, and reconciliation of temporary messages with their
// server-confirmed counterparts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classpoint/chat-client/internal/models"
	"github.com/classpoint/chat-client/internal/queue"
)

var ErrNoRoom = errors.New("no room entered")

// RealtimeChannel is the socket leg of delivery.
type RealtimeChannel interface {
	Connected() bool
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	SendMessage(roomID, text, clientID string) error
	Close() error
}

// MessageAPI is the request/response leg: history loads and fallback sends.
type MessageAPI interface {
	FetchRoomMessages(ctx context.Context, roomID string) ([]models.Message, error)
	SendRoomMessage(ctx context.Context, roomID, text string) (*models.Message, error)
}

// History is the optional local history cache consulted when the initial
// fetch fails.
type History interface {
	Get(roomID string) ([]models.Message, bool)
	Set(roomID string, messages []models.Message) error
}

// Identity is the local user, for attributing optimistic messages.
type Identity struct {
	ID   string
	Name string
}

// Engine owns the timeline, the connection state and the pending queue for
// one room-viewing context. All state mutation is serialized by one mutex;
// transport callbacks and Submit calls funnel through the same entry points.
type Engine struct {
	rt      RealtimeChannel
	api     MessageAPI
	history History
	self    Identity

	mu        sync.Mutex
	queue     *queue.PendingQueue
	roomID    string
	connected bool
	closed    bool
	messages  []models.Message
	inflight  map[string]bool // temp IDs with a fallback request in the air
	onUpdate  func([]models.Message)
}

func New(rt RealtimeChannel, api MessageAPI, q *queue.PendingQueue, history History, self Identity) *Engine {
	return &Engine{
		rt:       rt,
		api:      api,
		history:  history,
		self:     self,
		queue:    q,
		inflight: make(map[string]bool),
	}
}

// OnUpdate registers the presentation callback, invoked with a snapshot of
// the timeline after every visible change. The callback runs on the calling
// goroutine and must not call back into the engine.
func (e *Engine) OnUpdate(fn func([]models.Message)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = fn
}

// EnterRoom binds the engine to a room: loads the persisted queue, fetches
// history (falling back to the local cache offline), materializes queued
// messages into the timeline and joins the realtime room. Calling it again
// for the same room only re-joins.
func (e *Engine) EnterRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrNoRoom
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("engine closed")
	}
	if e.roomID == roomID {
		connected := e.connected
		e.mu.Unlock()
		if connected {
			if err := e.rt.JoinRoom(roomID); err != nil {
				log.Printf("engine: rejoin room %s: %v", roomID, err)
			}
		}
		return nil
	}
	previous := e.roomID
	e.roomID = roomID
	e.queue.Load()
	connectedNow := e.connected
	e.mu.Unlock()

	if previous != "" && connectedNow {
		if err := e.rt.LeaveRoom(previous); err != nil {
			log.Printf("engine: leave room %s: %v", previous, err)
		}
	}

	history, err := e.api.FetchRoomMessages(ctx, roomID)
	if err != nil {
		log.Printf("engine: history fetch for room %s failed: %v", roomID, err)
		if e.history != nil {
			if cached, ok := e.history.Get(roomID); ok {
				history = cached
			}
		}
	} else if e.history != nil {
		if cacheErr := e.history.Set(roomID, history); cacheErr != nil {
			log.Printf("engine: history cache write failed: %v", cacheErr)
		}
	}

	e.mu.Lock()
	e.messages = history
	// Queued entries from a previous session stay visible as pending
	// until a flush confirms them.
	for _, entry := range e.queue.Snapshot() {
		if entry.RoomID != roomID {
			continue
		}
		e.messages = append(e.messages, models.Message{
			TempID:     entry.TempID,
			RoomID:     entry.RoomID,
			SenderID:   e.self.ID,
			SenderName: e.self.Name,
			Text:       entry.Text,
			CreatedAt:  entry.CreatedAt,
			Status:     models.StatusPending,
		})
	}
	connected := e.connected
	e.notifyLocked()
	e.mu.Unlock()

	if connected {
		if err := e.rt.JoinRoom(roomID); err != nil {
			log.Printf("engine: join room %s: %v", roomID, err)
		}
	}
	return nil
}

// Submit captures a user message: optimistic timeline append, then realtime
// emit when connected, else queue plus synchronous HTTP fallback. Delivery
// failures are never surfaced; the message stays visible as pending.
func (e *Engine) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.roomID == "" {
		e.mu.Unlock()
		return ErrNoRoom
	}

	now := time.Now()
	msg := models.Message{
		TempID:     newTempID(now),
		RoomID:     e.roomID,
		SenderID:   e.self.ID,
		SenderName: e.self.Name,
		Text:       text,
		CreatedAt:  now,
		Status:     models.StatusPending,
	}
	if e.connected {
		msg.Status = models.StatusSending
	}
	e.messages = append(e.messages, msg)
	e.notifyLocked()

	entry := models.PendingEntry{
		TempID:    msg.TempID,
		RoomID:    msg.RoomID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}

	if e.connected {
		err := e.rt.SendMessage(msg.RoomID, msg.Text, msg.TempID)
		if err == nil {
			// The optimistic copy stays until the broadcast
			// confirms it.
			e.mu.Unlock()
			return nil
		}
		log.Printf("engine: realtime send failed, queueing %s: %v", msg.TempID, err)
		e.setStatusLocked(msg.TempID, models.StatusPending)
		e.notifyLocked()
	}

	e.queue.Append(entry)
	e.mu.Unlock()

	e.fallbackDeliver(ctx, entry)
	return nil
}

// FlushPending replays a snapshot of the queue, preferring the realtime
// channel per entry and falling back to HTTP when disconnected. Entries that
// fail both paths stay queued for the next connectivity event.
func (e *Engine) FlushPending(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	snapshot := e.queue.Snapshot()
	e.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	log.Printf("engine: flushing %d pending messages", len(snapshot))

	for _, entry := range snapshot {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		// A concurrent flush may have delivered this entry already.
		if !e.queue.Contains(entry.TempID) {
			e.mu.Unlock()
			continue
		}

		// Connection can drop mid-flush; pick the transport per entry.
		if e.connected {
			if err := e.rt.SendMessage(entry.RoomID, entry.Text, entry.TempID); err != nil {
				log.Printf("engine: flush emit failed for %s: %v", entry.TempID, err)
				e.mu.Unlock()
				continue
			}
			// Confirmation arrives later via broadcast matching.
			e.queue.Remove(entry.TempID)
			e.setStatusLocked(entry.TempID, models.StatusSending)
			e.notifyLocked()
			e.mu.Unlock()
			continue
		}
		e.mu.Unlock()

		e.fallbackDeliver(ctx, entry)
	}
}

// fallbackDeliver attempts one HTTP delivery for a queued entry and, on
// success, collapses the optimistic message into the confirmed one.
func (e *Engine) fallbackDeliver(ctx context.Context, entry models.PendingEntry) {
	e.mu.Lock()
	if e.closed || e.inflight[entry.TempID] || !e.queue.Contains(entry.TempID) {
		e.mu.Unlock()
		return
	}
	e.inflight[entry.TempID] = true
	e.mu.Unlock()

	confirmed, err := e.api.SendRoomMessage(ctx, entry.RoomID, entry.Text)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, entry.TempID)
	if e.closed {
		return
	}
	if err != nil {
		// Stays queued; retried on the next connectivity event.
		log.Printf("engine: fallback send failed for %s: %v", entry.TempID, err)
		return
	}

	e.queue.Remove(entry.TempID)
	e.replaceByTempIDLocked(entry.TempID, *confirmed)
	e.cacheHistoryLocked()
	e.notifyLocked()
}

// HandleConnect marks the engine connected, re-establishes room membership
// and replays the pending queue. Wired to the socket's connect event.
func (e *Engine) HandleConnect() {
	e.handleConnected()
}

// HandleReconnect behaves like HandleConnect; server-side room membership
// does not survive a reconnect.
func (e *Engine) HandleReconnect(attempt int) {
	log.Printf("engine: reconnected (attempt %d)", attempt)
	e.handleConnected()
}

func (e *Engine) handleConnected() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.connected = true
	roomID := e.roomID
	e.notifyLocked()
	e.mu.Unlock()

	if roomID != "" {
		if err := e.rt.JoinRoom(roomID); err != nil {
			log.Printf("engine: join room %s on connect: %v", roomID, err)
		}
	}
	e.FlushPending(context.Background())
}

// HandleDisconnect marks the engine disconnected. The queue is left intact;
// new submissions queue until the next connect.
func (e *Engine) HandleDisconnect(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	log.Printf("engine: disconnected: %s", reason)
	e.connected = false
	e.notifyLocked()
}

// HandleConnectError is wired to the socket's connect_error event.
func (e *Engine) HandleConnectError(err error) {
	log.Printf("engine: connect error: %v", err)
}

// HandleBroadcast reconciles a server-pushed confirmed message with the
// timeline: a clientId echo matches by identity; otherwise the first
// unconfirmed same-room message with identical text is replaced in place.
// Unmatched messages are appended.
func (e *Engine) HandleBroadcast(msg models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || msg.RoomID != e.roomID {
		return
	}

	idx := -1
	if msg.TempID != "" {
		for i := range e.messages {
			if e.messages[i].TempID == msg.TempID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		for i := range e.messages {
			m := &e.messages[i]
			if m.IsTemp() && m.RoomID == msg.RoomID && m.Text == msg.Text {
				idx = i
				break
			}
		}
	}

	msg.Status = models.StatusConfirmed
	if idx >= 0 {
		tempID := e.messages[idx].TempID
		if tempID != "" {
			e.queue.Remove(tempID)
		}
		msg.TempID = tempID
		e.messages[idx] = msg
	} else {
		e.messages = append(e.messages, msg)
	}

	e.cacheHistoryLocked()
	e.notifyLocked()
}

// Close leaves the room, releases the realtime channel and tears the engine
// down. In-flight request callbacks no-op after Close.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	roomID := e.roomID
	connected := e.connected
	e.connected = false
	e.mu.Unlock()

	if connected && roomID != "" {
		if err := e.rt.LeaveRoom(roomID); err != nil {
			log.Printf("engine: leave room %s: %v", roomID, err)
		}
	}
	return e.rt.Close()
}

// Messages returns a snapshot of the timeline.
func (e *Engine) Messages() []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

func (e *Engine) Room() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roomID
}

func (e *Engine) replaceByTempIDLocked(tempID string, confirmed models.Message) {
	for i := range e.messages {
		if e.messages[i].TempID != tempID {
			continue
		}
		if e.messages[i].Confirmed() {
			// A broadcast already collapsed this one.
			return
		}
		confirmed.TempID = tempID
		confirmed.Status = models.StatusConfirmed
		e.messages[i] = confirmed
		return
	}
	// The optimistic copy is gone (queue restored from a session whose
	// timeline we never showed); surface the confirmed record instead.
	confirmed.Status = models.StatusConfirmed
	e.messages = append(e.messages, confirmed)
}

func (e *Engine) setStatusLocked(tempID string, status models.DeliveryStatus) {
	for i := range e.messages {
		if e.messages[i].TempID == tempID && !e.messages[i].Confirmed() {
			e.messages[i].Status = status
			return
		}
	}
}

func (e *Engine) cacheHistoryLocked() {
	if e.history == nil || e.roomID == "" {
		return
	}
	if err := e.history.Set(e.roomID, e.messages); err != nil {
		log.Printf("engine: history cache write failed: %v", err)
	}
}

func (e *Engine) notifyLocked() {
	if e.onUpdate == nil {
		return
	}
	snapshot := make([]models.Message, len(e.messages))
	copy(snapshot, e.messages)
	e.onUpdate(snapshot)
}

// newTempID is unique within the process lifetime, which is all
// reconciliation needs.
func newTempID(now time.Time) string {
	return fmt.Sprintf("tmp_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
