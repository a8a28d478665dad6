package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/classpoint/chat-client/internal/models"
)

// Handlers are the engine-side callbacks for realtime lifecycle and traffic.
// Nil handlers are skipped. Callbacks run on the socket's read goroutine.
type Handlers struct {
	OnConnect      func()
	OnDisconnect   func(reason string)
	OnReconnect    func(attempt int)
	OnConnectError func(err error)
	OnNewMessage   func(models.Message)
}

type Config struct {
	URL               string // ws:// or wss:// endpoint
	Token             string // bearer credential sent at connect time
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ReconnectAttempts == 0 {
		out.ReconnectAttempts = 5
	}
	if out.ReconnectDelay == 0 {
		out.ReconnectDelay = 2 * time.Second
	}
	if out.PingInterval == 0 {
		out.PingInterval = 30 * time.Second
	}
	if out.PongTimeout == 0 {
		out.PongTimeout = 90 * time.Second
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = 10 * time.Second
	}
	return out
}

// Socket is the realtime channel client. It owns one websocket connection at
// a time and re-establishes it after transport failures, up to the
// configured attempt cap.
type Socket struct {
	cfg      Config
	handlers Handlers

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	writeMu sync.Mutex
}

func NewSocket(cfg Config) *Socket {
	return &Socket{cfg: cfg.withDefaults()}
}

// SetHandlers must be called before Connect.
func (s *Socket) SetHandlers(h Handlers) {
	s.handlers = h
}

// Connect dials the endpoint and starts the read and keepalive loops. The
// OnConnect handler fires before Connect returns, so a pending-queue flush
// triggered by it observes a connected socket.
func (s *Socket) Connect() error {
	conn, err := s.dial()
	if err != nil {
		if s.handlers.OnConnectError != nil {
			s.handlers.OnConnectError(err)
		}
		return err
	}
	s.install(conn)
	if s.handlers.OnConnect != nil {
		s.handlers.OnConnect()
	}
	go s.readLoop(conn)
	go s.pingLoop(conn)
	return nil
}

func (s *Socket) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	return conn, nil
}

func (s *Socket) install(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close tears the socket down for good; no reconnect is attempted after it.
func (s *Socket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.connected = false
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Socket) JoinRoom(roomID string) error {
	return s.emit(EventJoinRoom, RoomRequest{RoomID: roomID})
}

func (s *Socket) LeaveRoom(roomID string) error {
	return s.emit(EventLeaveRoom, RoomRequest{RoomID: roomID})
}

func (s *Socket) SendMessage(roomID, text, clientID string) error {
	return s.emit(EventSendMessage, SendRequest{RoomID: roomID, Text: text, ClientID: clientID})
}

func (s *Socket) emit(event string, payload interface{}) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("emit %s: not connected", event)
	}

	data, err := EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleReadFailure(conn, err)
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			log.Printf("socket: dropping malformed frame: %v", err)
			continue
		}

		switch env.Type {
		case EventNewMessage:
			var payload struct {
				models.Message
				// A server that echoes the sender's clientId
				// enables identity-based reconciliation.
				ClientID string `json:"clientId"`
			}
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				log.Printf("socket: bad newMessage payload: %v", err)
				continue
			}
			msg := payload.Message
			msg.TempID = payload.ClientID
			msg.Status = models.StatusConfirmed
			if s.handlers.OnNewMessage != nil {
				s.handlers.OnNewMessage(msg)
			}
		default:
			// Unknown server events are ignored, not errors; the
			// server may be newer than this client.
		}
	}
}

func (s *Socket) handleReadFailure(conn *websocket.Conn, err error) {
	conn.Close()

	s.mu.Lock()
	// A stale read loop from a connection we already replaced must not
	// flap the current one.
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.connected = false
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}

	log.Printf("socket: connection lost: %v", err)
	if s.handlers.OnDisconnect != nil {
		s.handlers.OnDisconnect(err.Error())
	}
	s.reconnectLoop()
}

func (s *Socket) reconnectLoop() {
	for attempt := 1; attempt <= s.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(s.cfg.ReconnectDelay)

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		conn, err := s.dial()
		if err != nil {
			log.Printf("socket: reconnect attempt %d failed: %v", attempt, err)
			if s.handlers.OnConnectError != nil {
				s.handlers.OnConnectError(err)
			}
			continue
		}

		s.install(conn)
		log.Printf("socket: reconnected on attempt %d", attempt)
		if s.handlers.OnReconnect != nil {
			s.handlers.OnReconnect(attempt)
		}
		go s.readLoop(conn)
		go s.pingLoop(conn)
		return
	}
	log.Printf("socket: giving up after %d reconnect attempts", s.cfg.ReconnectAttempts)
}

// pingLoop keeps the connection alive. It stops when its connection is no
// longer the socket's current one.
func (s *Socket) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		current := s.conn == conn && s.connected
		s.mu.Unlock()
		if !current {
			return
		}

		s.writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(s.cfg.WriteTimeout))
		s.writeMu.Unlock()
		if err != nil {
			log.Printf("socket: ping failed: %v", err)
			return
		}
	}
}
