package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"github.com/classpoint/chat-client/internal/auth"
	"github.com/classpoint/chat-client/internal/cache"
	"github.com/classpoint/chat-client/internal/engine"
	"github.com/classpoint/chat-client/internal/models"
	"github.com/classpoint/chat-client/internal/queue"
	"github.com/classpoint/chat-client/internal/store"
	"github.com/classpoint/chat-client/internal/transport"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		log.Fatal("API_URL is required")
	}
	wsURL := os.Getenv("WS_URL")
	if wsURL == "" {
		log.Fatal("WS_URL is required")
	}
	roomID := os.Getenv("ROOM_ID")
	if roomID == "" {
		log.Fatal("ROOM_ID is required")
	}

	kv := openStore()
	creds := auth.NewCredentials(kv)

	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		if err := creds.Save(token); err != nil {
			log.Printf("WARNING: could not persist auth token: %v", err)
		}
	}
	token, err := creds.Token()
	if err != nil {
		log.Fatal("No auth token: set AUTH_TOKEN or log in first")
	}
	if creds.Expired(time.Now()) {
		log.Println("WARNING: stored auth token looks expired; the server may reject it")
	}

	self := engine.Identity{
		ID:   envOr("SENDER_ID", "me"),
		Name: envOr("SENDER_NAME", "You"),
	}

	api := transport.NewAPIClient(apiURL, token)
	sock := transport.NewSocket(transport.Config{URL: wsURL, Token: token})
	eng := engine.New(sock, api, queue.NewPendingQueue(kv), cache.NewHistoryCache(kv), self)

	// Connection state mirrored here so the render callback never calls
	// back into the engine.
	var connected atomic.Bool
	sock.SetHandlers(transport.Handlers{
		OnConnect: func() {
			connected.Store(true)
			eng.HandleConnect()
		},
		OnDisconnect: func(reason string) {
			connected.Store(false)
			eng.HandleDisconnect(reason)
		},
		OnReconnect: func(attempt int) {
			connected.Store(true)
			eng.HandleReconnect(attempt)
		},
		OnConnectError: eng.HandleConnectError,
		OnNewMessage:   eng.HandleBroadcast,
	})

	eng.OnUpdate(func(msgs []models.Message) {
		render(msgs, connected.Load())
	})

	if err := eng.EnterRoom(context.Background(), roomID); err != nil {
		log.Fatal("Failed to enter room: ", err)
	}

	// Connect after entering so the connect-triggered flush sees the room.
	if err := sock.Connect(); err != nil {
		log.Printf("WARNING: realtime connect failed, messages will queue: %v", err)
	}

	render(eng.Messages(), eng.Connected())
	fmt.Println("Type a message and press enter. /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "/quit" {
			break
		}
		if err := eng.Submit(context.Background(), line); err != nil {
			log.Printf("submit: %v", err)
		}
	}

	if err := eng.Close(); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// openStore prefers Redis when configured and reachable, matching the
// backend's degrade-to-no-cache behavior, except here the fallback is the
// file store because the pending queue must stay durable.
func openStore() store.Store {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rs := store.NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"), 0, 0)
		if err := rs.Ping(); err == nil {
			log.Println("Using Redis-backed store")
			return rs
		}
		log.Printf("WARNING: Redis unreachable at %s, falling back to file store", addr)
	}

	dir := envOr("STORE_DIR", ".chat-data")
	fs, err := store.NewFileStore(dir)
	if err != nil {
		log.Fatal("Failed to open file store: ", err)
	}
	return fs
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func render(msgs []models.Message, connected bool) {
	indicator := "○ offline"
	if connected {
		indicator = "● online"
	}
	fmt.Printf("\n--- %s ---\n", indicator)
	for _, m := range msgs {
		badge := ""
		switch m.Status {
		case models.StatusSending:
			badge = " (sending)"
		case models.StatusPending:
			badge = " (pending)"
		}
		fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format("15:04:05"), m.SenderName, m.Text, badge)
	}
}
