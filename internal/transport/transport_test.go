package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/classpoint/chat-client/internal/models"
	"github.com/classpoint/chat-client/internal/testutil"
	"github.com/classpoint/chat-client/internal/transport"
)

const testToken = "test-bearer-token"

func TestAPIClientFetchRoomMessages(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)
	backend.SeedHistory("room-1",
		models.Message{ID: "srv-a", RoomID: "room-1", SenderID: "u2", SenderName: "Bob", Text: "welcome", CreatedAt: time.Now().UTC()},
	)

	client := transport.NewAPIClient(backend.URL(), testToken)
	msgs, err := client.FetchRoomMessages(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("FetchRoomMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "srv-a" || msgs[0].Text != "welcome" {
		t.Errorf("messages = %+v", msgs)
	}
	if msgs[0].Status != models.StatusConfirmed {
		t.Errorf("history message status = %s, want confirmed", msgs[0].Status)
	}
}

func TestAPIClientFetchEmptyRoom(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)

	client := transport.NewAPIClient(backend.URL(), testToken)
	msgs, err := client.FetchRoomMessages(context.Background(), "room-empty")
	if err != nil {
		t.Fatalf("FetchRoomMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages = %+v, want none", msgs)
	}
}

func TestAPIClientSendRoomMessage(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)

	client := transport.NewAPIClient(backend.URL(), testToken)
	msg, err := client.SendRoomMessage(context.Background(), "room-1", "hello")
	if err != nil {
		t.Fatalf("SendRoomMessage: %v", err)
	}
	if msg.ID == "" || msg.Text != "hello" || msg.RoomID != "room-1" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Status != models.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", msg.Status)
	}

	if got := backend.History("room-1"); len(got) != 1 {
		t.Errorf("backend history = %+v, want the sent message", got)
	}
}

func TestAPIClientRejectedToken(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)

	client := transport.NewAPIClient(backend.URL(), "wrong-token")
	if _, err := client.FetchRoomMessages(context.Background(), "room-1"); err == nil {
		t.Error("FetchRoomMessages succeeded with a bad token")
	}
	if _, err := client.SendRoomMessage(context.Background(), "room-1", "hello"); err == nil {
		t.Error("SendRoomMessage succeeded with a bad token")
	}
}

// socketEvents collects handler callbacks for assertion.
type socketEvents struct {
	connects    chan struct{}
	disconnects chan string
	reconnects  chan int
	messages    chan models.Message
}

func newSocketEvents() *socketEvents {
	return &socketEvents{
		connects:    make(chan struct{}, 4),
		disconnects: make(chan string, 4),
		reconnects:  make(chan int, 4),
		messages:    make(chan models.Message, 16),
	}
}

func (ev *socketEvents) handlers() transport.Handlers {
	return transport.Handlers{
		OnConnect:    func() { ev.connects <- struct{}{} },
		OnDisconnect: func(reason string) { ev.disconnects <- reason },
		OnReconnect:  func(attempt int) { ev.reconnects <- attempt },
		OnNewMessage: func(msg models.Message) { ev.messages <- msg },
	}
}

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func dialSocket(t *testing.T, backend *testutil.FakeBackend, ev *socketEvents) *transport.Socket {
	t.Helper()
	sock := transport.NewSocket(transport.Config{
		URL:            backend.WSURL(),
		Token:          testToken,
		ReconnectDelay: 50 * time.Millisecond,
	})
	sock.SetHandlers(ev.handlers())
	if err := sock.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { sock.Close() })
	return sock
}

func TestSocketSendAndBroadcast(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)
	backend.EchoClientID = true
	ev := newSocketEvents()
	sock := dialSocket(t, backend, ev)

	waitFor(t, ev.connects, "connect")
	if !sock.Connected() {
		t.Fatal("Connected() = false after Connect")
	}

	if err := sock.JoinRoom("room-1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if err := sock.SendMessage("room-1", "hello", "tmp_abc"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msg := waitFor(t, ev.messages, "newMessage broadcast")
	if msg.Text != "hello" || msg.RoomID != "room-1" {
		t.Errorf("broadcast = %+v", msg)
	}
	if msg.Status != models.StatusConfirmed {
		t.Errorf("broadcast status = %s, want confirmed", msg.Status)
	}
	// The backend echoes clientId; the socket maps it to TempID.
	if msg.TempID != "tmp_abc" {
		t.Errorf("broadcast TempID = %q, want the echoed clientId", msg.TempID)
	}

	if joins := backend.Joins(); len(joins) != 1 || joins[0] != "room-1" {
		t.Errorf("backend joins = %v", joins)
	}
}

func TestSocketLeaveRoom(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)
	ev := newSocketEvents()
	sock := dialSocket(t, backend, ev)
	waitFor(t, ev.connects, "connect")

	if err := sock.JoinRoom("room-1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if err := sock.LeaveRoom("room-1"); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if leaves := backend.Leaves(); len(leaves) == 1 && leaves[0] == "room-1" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("backend leaves = %v, want [room-1]", backend.Leaves())
}

func TestSocketReconnects(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)
	ev := newSocketEvents()
	sock := dialSocket(t, backend, ev)
	waitFor(t, ev.connects, "connect")

	backend.DropConnections()

	waitFor(t, ev.disconnects, "disconnect")
	attempt := waitFor(t, ev.reconnects, "reconnect")
	if attempt < 1 {
		t.Errorf("reconnect attempt = %d, want >= 1", attempt)
	}
	if !sock.Connected() {
		t.Error("Connected() = false after reconnect")
	}

	// The re-established connection must carry traffic again.
	if err := sock.SendMessage("room-1", "after reconnect", "tmp_x"); err != nil {
		t.Fatalf("SendMessage after reconnect: %v", err)
	}
	msg := waitFor(t, ev.messages, "broadcast after reconnect")
	if msg.Text != "after reconnect" {
		t.Errorf("broadcast = %+v", msg)
	}
}

func TestSocketEmitWhileDisconnected(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)
	ev := newSocketEvents()

	sock := transport.NewSocket(transport.Config{
		URL:   backend.WSURL(),
		Token: testToken,
	})
	sock.SetHandlers(ev.handlers())

	if err := sock.SendMessage("room-1", "hello", "tmp_1"); err == nil {
		t.Error("SendMessage on an unconnected socket succeeded")
	}
}

func TestSocketRejectedToken(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)

	sock := transport.NewSocket(transport.Config{
		URL:   backend.WSURL(),
		Token: "wrong-token",
	})
	if err := sock.Connect(); err == nil {
		sock.Close()
		t.Error("Connect succeeded with a bad token")
	}
}

func TestSocketCloseStopsReconnect(t *testing.T) {
	backend := testutil.StartFakeBackend(t, testToken)
	ev := newSocketEvents()
	sock := dialSocket(t, backend, ev)
	waitFor(t, ev.connects, "connect")

	sock.Close()

	// No disconnect/reconnect storm after an explicit close.
	select {
	case <-ev.reconnects:
		t.Error("socket reconnected after Close")
	case <-time.After(300 * time.Millisecond):
	}
	if sock.Connected() {
		t.Error("Connected() = true after Close")
	}
}
