package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gramseva/marketfeed/internal/bus"
	"github.com/gramseva/marketfeed/internal/model"
	"github.com/gramseva/marketfeed/internal/notify"
)

// Stream frame types.
const (
	FramePrices         = "prices"
	FrameAlert          = "alert"
	FrameToast          = "toast"
	FrameToastDismiss   = "toast_dismiss"
	FrameDesktop        = "desktop"
	FrameDesktopDismiss = "desktop_dismiss"
	FrameSound          = "sound"
)

const (
	subscriberID = "gateway-stream"
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
)

// Frame is one message on the stream.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SoundFrame carries an encoded notification tone. Wav is base64 in JSON.
type SoundFrame struct {
	Wav []byte `json:"wav"`
}

// Feed delivers price snapshots. Subscribe must deliver the current snapshot
// before returning. *market.Service satisfies it.
type Feed interface {
	Subscribe(id string, cb func([]model.PriceRecord))
	Unsubscribe(id string)
}

// Hub fans out market events to browser sockets. It also stands in for the
// desktop and sound outputs of the notification service, forwarding them to
// the browser.
type Hub struct {
	feed       Feed
	permission notify.Permission
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	pingPeriod time.Duration

	mu      sync.RWMutex
	clients map[string]*streamClient
	closed  bool

	wg sync.WaitGroup
}

type streamClient struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub creates a hub. permission is the answer given to desktop
// permission requests. Sockets are refused until SetFeed is called.
func NewHub(permission notify.Permission, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		permission: permission,
		logger:     logger.With("component", "stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingPeriod: pongWait * 9 / 10,
		clients:    make(map[string]*streamClient),
	}
}

// SetFeed sets the price feed replayed to each new socket.
func (h *Hub) SetFeed(f Feed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feed = f
}

// SetPingInterval overrides the keepalive ping interval. It must be set
// before the first connection and be shorter than a minute.
func (h *Hub) SetPingInterval(d time.Duration) {
	if d > 0 && d < pongWait {
		h.pingPeriod = d
	}
}

// Attach subscribes the hub to alert and toast events.
func (h *Hub) Attach(b *bus.Bus) {
	bus.OnAlert(b, subscriberID, func(a model.MarketAlert) {
		h.Broadcast(FrameAlert, a)
	})
	bus.OnToast(b, subscriberID, func(t model.ToastMessage) {
		h.Broadcast(FrameToast, t)
	})
	bus.OnToastDismissed(b, subscriberID, func(id string) {
		h.Broadcast(FrameToastDismiss, map[string]string{"id": id})
	})
}

// Detach removes the hub's bus subscriptions.
func (h *Hub) Detach(b *bus.Bus) {
	b.Unsubscribe(bus.KindAlertRaised, subscriberID)
	b.Unsubscribe(bus.KindToastRequested, subscriberID)
	b.Unsubscribe(bus.KindToastDismissed, subscriberID)
}

// RequestPermission returns the configured permission.
func (h *Hub) RequestPermission(context.Context) notify.Permission {
	if h.permission == "" {
		return notify.PermissionDefault
	}
	return h.permission
}

// Show forwards a desktop notification to every browser.
func (h *Hub) Show(n notify.DesktopNotification) {
	h.Broadcast(FrameDesktop, n)
}

// Close asks every browser to close a desktop notification.
func (h *Hub) Close(id string) {
	h.Broadcast(FrameDesktopDismiss, map[string]string{"id": id})
}

// Play forwards the notification tone to every browser.
func (h *Hub) Play(wav []byte) error {
	h.Broadcast(FrameSound, SoundFrame{Wav: wav})
	return nil
}

// Clients returns the number of connected sockets.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a frame to every connected socket. It returns the number
// of sockets the frame was queued for.
func (h *Hub) Broadcast(frameType string, data any) int {
	msg, err := json.Marshal(Frame{Type: frameType, Data: data})
	if err != nil {
		h.logger.Error("failed to encode frame", "type", frameType, "error", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*streamClient, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if h.enqueue(c, msg) {
			n++
		}
	}
	return n
}

// enqueue never blocks. A client whose buffer is full is disconnected.
func (h *Hub) enqueue(c *streamClient, msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		h.logger.Warn("stream client too slow, disconnecting", "client_id", c.id)
		c.close()
		return false
	}
}

// ServeHTTP upgrades the request and streams until the socket closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed, feed := h.closed, h.feed
	h.mu.RUnlock()
	if closed || feed == nil {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		id:   model.NewID(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.wg.Add(1)
	go h.writeLoop(c)

	// The feed replays the current snapshot into the buffer before the
	// client can see any broadcast.
	feed.Subscribe(c.id, func(records []model.PriceRecord) {
		msg, err := json.Marshal(Frame{Type: FramePrices, Data: records})
		if err != nil {
			return
		}
		h.enqueue(c, msg)
	})

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		feed.Unsubscribe(c.id)
		c.close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Debug("stream client connected", "client_id", c.id)

	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	feed.Unsubscribe(c.id)
	c.close()

	h.logger.Debug("stream client disconnected", "client_id", c.id)
}

// readLoop discards inbound frames and keeps the read deadline alive.
func (h *Hub) readLoop(c *streamClient) {
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *streamClient) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// Shutdown closes every socket and waits for the write loops to exit.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*streamClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
