package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gramseva/marketfeed/internal/chat"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// deadURL returns a URL nothing is listening on.
func deadURL(t *testing.T) string {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()
	return url
}

// manualTimers captures scheduled reconnects so tests control time.
type manualTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	next   func()
	timer  *manualTimer
}

type manualTimer struct {
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (m *manualTimers) afterFunc(d time.Duration, f func()) timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	m.next = f
	m.timer = &manualTimer{}
	return m.timer
}

// fire runs the most recently scheduled callback unless it was stopped.
func (m *manualTimers) fire() bool {
	m.mu.Lock()
	f, tm := m.next, m.timer
	m.next = nil
	m.mu.Unlock()

	if f == nil || tm.stopped {
		return false
	}
	f()
	return true
}

func (m *manualTimers) scheduled() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

func testConfig(url string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = url
	return cfg
}

func readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, readUntilClosed)
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	// Connecting again while open is a no-op.
	if err := client.Connect(context.Background()); err != nil {
		t.Errorf("second Connect error = %v", err)
	}

	if err := client.Disconnect(); err != nil {
		t.Errorf("Disconnect failed: %v", err)
	}
	if client.State() != StateDisconnected {
		t.Errorf("State = %s after Disconnect", client.State())
	}
}

func TestClient_ListenersAndClientID(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		connected, _ := chat.Encode(chat.Connected{ID: "c-42", Users: []chat.User{{ID: "c-42", Name: "User-c-42"}}})
		conn.WriteMessage(websocket.TextMessage, connected)
		conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"reaction","payload":{}}`))
		msg, _ := chat.Encode(chat.Message{ID: "m1", Content: "hi", Sender: "user", Timestamp: "t"})
		conn.WriteMessage(websocket.TextMessage, msg)
		readUntilClosed(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)

	var mu sync.Mutex
	var got []chat.Event
	client.On(func(ev chat.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	client.On(func(chat.Event) { panic("broken listener") })

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	if got[0].Type() != chat.TypeConnected || got[1].Type() != chat.TypeMessage {
		t.Errorf("events = %v, %v", got[0].Type(), got[1].Type())
	}
	mu.Unlock()

	if client.ClientID() != "c-42" {
		t.Errorf("ClientID = %q, want c-42", client.ClientID())
	}
}

func TestClient_Unsubscribe(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			data, _ := chat.Encode(chat.Typing{User: chat.User{ID: "x"}, IsTyping: true})
			conn.WriteMessage(websocket.TextMessage, data)
		}
		readUntilClosed(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)

	var removed, kept int
	var mu sync.Mutex
	off := client.On(func(chat.Event) { mu.Lock(); removed++; mu.Unlock() })
	client.On(func(chat.Event) { mu.Lock(); kept++; mu.Unlock() })
	off()

	client.Connect(context.Background())
	defer client.Disconnect()

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return kept == 3 })

	mu.Lock()
	defer mu.Unlock()
	if removed != 0 {
		t.Errorf("removed listener called %d times", removed)
	}
}

func TestClient_SendMessageAndTyping(t *testing.T) {
	received := make(chan []byte, 2)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		data, _ := chat.Encode(chat.Connected{ID: "c-7"})
		conn.WriteMessage(websocket.TextMessage, data)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	waitFor(t, func() bool { return client.ClientID() == "c-7" })

	sent, err := client.SendMessage("Wheat at 2175?", map[string]string{"lang": "hi"})
	if err != nil {
		t.Fatalf("SendMessage error = %v", err)
	}
	if err := client.SendTyping(true); err != nil {
		t.Fatalf("SendTyping error = %v", err)
	}

	var frame map[string]json.RawMessage
	json.Unmarshal(<-received, &frame)
	if string(frame["type"]) != `"message"` || string(frame["sender"]) != `"user"` {
		t.Errorf("message frame = %v", frame)
	}
	if string(frame["id"]) != `"`+sent.ID+`"` {
		t.Errorf("id = %s, want %s", frame["id"], sent.ID)
	}
	if !strings.Contains(string(frame["user"]), `"c-7"`) {
		t.Errorf("user = %s, want relay-assigned id", frame["user"])
	}

	json.Unmarshal(<-received, &frame)
	if string(frame["type"]) != `"typing"` || string(frame["isTyping"]) != "true" {
		t.Errorf("typing frame = %v", frame)
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(testConfig("ws://localhost:1"), nil)

	if err := client.Send([]byte("test")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
	if _, err := client.SendMessage("hi", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendMessage error = %v, want ErrNotConnected", err)
	}
}

func TestClient_BackoffDelays(t *testing.T) {
	cfg := testConfig(deadURL(t))
	cfg.BaseInterval = 3000 * time.Millisecond

	timers := &manualTimers{}
	client := NewClient(cfg, nil)
	client.afterFunc = timers.afterFunc

	var retries []int
	client.OnRetry(func(attempt int, _ time.Duration) { retries = append(retries, attempt) })

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect to dead URL should fail")
	}
	timers.fire()
	timers.fire()

	want := []time.Duration{3 * time.Second, 6 * time.Second, 9 * time.Second}
	got := timers.scheduled()
	if len(got) != len(want) {
		t.Fatalf("scheduled delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if len(retries) != 3 || retries[2] != 3 {
		t.Errorf("retry attempts = %v, want [1 2 3]", retries)
	}
	if client.State() != StateReconnecting {
		t.Errorf("State = %s, want reconnecting", client.State())
	}
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	cfg := testConfig(deadURL(t))
	cfg.MaxAttempts = 2

	timers := &manualTimers{}
	client := NewClient(cfg, nil)
	client.afterFunc = timers.afterFunc

	var states []State
	client.OnStateChange(func(_, to State) { states = append(states, to) })

	client.Connect(context.Background())
	for timers.fire() {
	}

	if client.State() != StateFailed {
		t.Fatalf("State = %s, want failed", client.State())
	}
	if n := len(timers.scheduled()); n != 2 {
		t.Errorf("scheduled %d reconnects, want 2", n)
	}
	if last := states[len(states)-1]; last != StateFailed {
		t.Errorf("last transition = %s, want failed", last)
	}

	// A fresh Connect restarts the sequence from attempt zero.
	client.Connect(context.Background())
	if client.Attempts() != 1 {
		t.Errorf("Attempts after fresh Connect = %d, want 1", client.Attempts())
	}
}

func TestClient_ConnectFromFailedReleasesToken(t *testing.T) {
	cfg := testConfig(deadURL(t))
	cfg.MaxAttempts = 1

	timers := &manualTimers{}
	client := NewClient(cfg, nil)
	client.afterFunc = timers.afterFunc

	client.Connect(context.Background())
	for timers.fire() {
	}
	if client.State() != StateFailed {
		t.Fatalf("State = %s, want failed", client.State())
	}

	client.mu.Lock()
	previous := client.token
	client.mu.Unlock()

	client.Connect(context.Background())

	select {
	case <-previous.Done():
	default:
		t.Error("token from the failed sequence is still live")
	}

	client.mu.Lock()
	current := client.token
	client.mu.Unlock()
	if current.Err() != nil {
		t.Errorf("new token already cancelled: %v", current.Err())
	}
}

func TestClient_DisconnectCancelsReconnect(t *testing.T) {
	closeServerSide := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		<-closeServerSide
	})
	defer server.Close()

	timers := &manualTimers{}
	client := NewClient(testConfig(wsURL(server)), nil)
	client.afterFunc = timers.afterFunc

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	close(closeServerSide)

	waitFor(t, func() bool { return client.State() == StateReconnecting })

	client.Disconnect()

	if timers.fire() {
		t.Error("reconnect fired after Disconnect")
	}
	if client.State() != StateDisconnected {
		t.Errorf("State = %s, want disconnected", client.State())
	}
}

func TestClient_ReconnectResetsAttempts(t *testing.T) {
	var mu sync.Mutex
	connections := 0
	server := mockWSServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		connections++
		first := connections == 1
		mu.Unlock()
		if first {
			return // drop the first connection immediately
		}
		readUntilClosed(conn)
	})
	defer server.Close()

	timers := &manualTimers{}
	client := NewClient(testConfig(wsURL(server)), nil)
	client.afterFunc = timers.afterFunc

	client.Connect(context.Background())
	waitFor(t, func() bool { return client.State() == StateReconnecting })

	if client.Attempts() != 1 {
		t.Errorf("Attempts = %d, want 1", client.Attempts())
	}
	timers.fire()

	if !client.IsConnected() {
		t.Fatalf("State = %s, want open", client.State())
	}
	if client.Attempts() != 0 {
		t.Errorf("Attempts after reopen = %d, want 0", client.Attempts())
	}
	client.Disconnect()
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateDisconnected, StateOpen, false},
		{StateConnecting, StateOpen, true},
		{StateOpen, StateReconnecting, true},
		{StateReconnecting, StateConnecting, true},
		{StateReconnecting, StateOpen, false},
		{StateFailed, StateConnecting, true},
		{StateFailed, StateReconnecting, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	if cfg.URL != "ws://localhost:4000" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.BaseInterval != 3*time.Second {
		t.Errorf("BaseInterval = %v, want 3s", cfg.BaseInterval)
	}
	if cfg.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d, want 10", cfg.MaxAttempts)
	}
}
