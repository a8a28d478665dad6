// Package testutil provides an in-process chat backend implementing the
// contract the client core consumes: the room history/send HTTP endpoints
// and the realtime websocket channel.
package testutil

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/classpoint/chat-client/internal/models"
	"github.com/classpoint/chat-client/internal/transport"
)

// broadcastMessage is the newMessage payload; ClientID is the optional echo
// of the sender's temporary ID.
type broadcastMessage struct {
	models.Message
	ClientID string `json:"clientId,omitempty"`
}

// FakeBackend is a real fiber server on a loopback listener, so both the
// HTTP client and the websocket client exercise their full network paths.
type FakeBackend struct {
	app  *fiber.App
	addr string

	// EchoClientID makes sendMessage broadcasts carry the sender's
	// clientId, modeling the reconciliation protocol extension.
	EchoClientID bool

	mu      sync.Mutex
	token   string
	nextID  int
	history map[string][]models.Message
	joins   []string
	leaves  []string
	conns   map[*websocket.Conn]bool
}

// StartFakeBackend boots the server and registers shutdown with t.Cleanup.
func StartFakeBackend(t *testing.T, token string) *FakeBackend {
	t.Helper()

	b := &FakeBackend{
		token:   token,
		history: map[string][]models.Message{},
		conns:   map[*websocket.Conn]bool{},
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/api/chat/room/:roomId", b.requireAuth, func(c *fiber.Ctx) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		msgs := b.history[c.Params("roomId")]
		if msgs == nil {
			msgs = []models.Message{}
		}
		return c.JSON(fiber.Map{"messages": msgs})
	})

	app.Post("/api/chat/room/:roomId", b.requireAuth, func(c *fiber.Ctx) error {
		var body struct {
			Text string `json:"text"`
		}
		if err := c.BodyParser(&body); err != nil || body.Text == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "text is required", "code": "invalid_body",
			})
		}
		msg := b.saveMessage(c.Params("roomId"), body.Text)
		return c.JSON(fiber.Map{"message": msg})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if c.Get("Authorization") != "Bearer "+b.token {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token", "code": "invalid_access_token",
			})
		}
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(b.handleSocket))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b.app = app
	b.addr = ln.Addr().String()

	go func() {
		if err := app.Listener(ln); err != nil {
			log.Printf("fake backend stopped: %v", err)
		}
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	// The listener is live before Listener returns control, but give the
	// accept loop a moment on slow CI machines.
	waitForListener(t, b.addr)
	return b
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("fake backend never came up on %s", addr)
}

func (b *FakeBackend) requireAuth(c *fiber.Ctx) error {
	if c.Get("Authorization") != "Bearer "+b.token {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid token", "code": "invalid_access_token",
		})
	}
	return c.Next()
}

// URL returns the HTTP base URL.
func (b *FakeBackend) URL() string {
	return "http://" + b.addr
}

// WSURL returns the websocket endpoint.
func (b *FakeBackend) WSURL() string {
	return "ws://" + b.addr + "/ws"
}

func (b *FakeBackend) saveMessage(roomID, text string) models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	msg := models.Message{
		ID:         fmt.Sprintf("srv-%d", b.nextID),
		RoomID:     roomID,
		SenderID:   "u1",
		SenderName: "Alice",
		Text:       text,
		CreatedAt:  time.Now().UTC(),
		Status:     models.StatusConfirmed,
	}
	b.history[roomID] = append(b.history[roomID], msg)
	return msg
}

// SeedHistory installs confirmed messages for a room.
func (b *FakeBackend) SeedHistory(roomID string, msgs ...models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[roomID] = append(b.history[roomID], msgs...)
}

// Joins returns the rooms clients joined, in order.
func (b *FakeBackend) Joins() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.joins))
	copy(out, b.joins)
	return out
}

// Leaves returns the rooms clients left, in order.
func (b *FakeBackend) Leaves() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.leaves))
	copy(out, b.leaves)
	return out
}

// History returns the stored messages for a room.
func (b *FakeBackend) History(roomID string) []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Message, len(b.history[roomID]))
	copy(out, b.history[roomID])
	return out
}

// Broadcast pushes a newMessage event to every connected client.
func (b *FakeBackend) Broadcast(msg models.Message) {
	b.broadcast(broadcastMessage{Message: msg})
}

func (b *FakeBackend) broadcast(payload broadcastMessage) {
	data, err := transport.EncodeEnvelope(transport.EventNewMessage, payload)
	if err != nil {
		log.Printf("fake backend: encode broadcast: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(b.conns, conn)
		}
	}
}

// DropConnections closes every websocket, simulating a transport outage.
func (b *FakeBackend) DropConnections() {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.conns = map[*websocket.Conn]bool{}
	b.mu.Unlock()

	for _, conn := range conns {
		// Under fasthttp, Close on a hijacked connection is a no-op until
		// the handler returns; expire the read deadline so handleSocket's
		// blocked ReadMessage fails and the server tears the TCP conn down.
		conn.SetReadDeadline(time.Now())
		conn.Close()
	}
}

func (b *FakeBackend) handleSocket(c *websocket.Conn) {
	b.mu.Lock()
	b.conns[c] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, c)
		b.mu.Unlock()
		c.Close()
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		env, err := transport.DecodeEnvelope(data)
		if err != nil {
			continue
		}

		switch env.Type {
		case transport.EventJoinRoom:
			var req transport.RoomRequest
			if err := json.Unmarshal(env.Payload, &req); err != nil {
				continue
			}
			b.mu.Lock()
			b.joins = append(b.joins, req.RoomID)
			b.mu.Unlock()
		case transport.EventLeaveRoom:
			var req transport.RoomRequest
			if err := json.Unmarshal(env.Payload, &req); err != nil {
				continue
			}
			b.mu.Lock()
			b.leaves = append(b.leaves, req.RoomID)
			b.mu.Unlock()
		case transport.EventSendMessage:
			var req transport.SendRequest
			if err := json.Unmarshal(env.Payload, &req); err != nil {
				continue
			}
			msg := b.saveMessage(req.RoomID, req.Text)
			out := broadcastMessage{Message: msg}
			if b.EchoClientID {
				out.ClientID = req.ClientID
			}
			b.broadcast(out)
		}
	}
}
