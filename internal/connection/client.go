package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gramseva/marketfeed/internal/chat"
)

// timer is the subset of *time.Timer the client needs.
type timer interface {
	Stop() bool
}

// Client is a reconnecting WebSocket connection to the chat relay.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	dialer websocket.Dialer

	afterFunc func(time.Duration, func()) timer
	onRetry   func(attempt int, delay time.Duration)

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	state      State
	attempts   int
	conn       *websocket.Conn
	lastPingAt time.Time
	clientID   string
	token      context.Context
	cancel     context.CancelFunc
	retry      timer

	listenersMu    sync.RWMutex
	listeners      map[int]func(chat.Event)
	stateListeners map[int]func(from, to State)
	nextListener   int
}

// NewClient creates a disconnected client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "transport", "url", cfg.URL),
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		state:          StateDisconnected,
		listeners:      make(map[int]func(chat.Event)),
		stateListeners: make(map[int]func(from, to State)),
	}
}

// OnRetry sets a hook called whenever a reconnect is scheduled.
func (c *Client) OnRetry(fn func(attempt int, delay time.Duration)) {
	c.onRetry = fn
}

// Connect dials the relay. It is a no-op while a connection is open or being
// established. From Disconnected or Failed it resets the attempt counter.
//
// A failed first dial is returned but still schedules a reconnect; ctx bounds
// the whole reconnect sequence.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateOpen, StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.token, c.cancel = context.WithCancel(ctx)
	c.attempts = 0
	token := c.token
	from, ok := c.transitionLocked(StateConnecting)
	c.mu.Unlock()

	if ok {
		c.emitState(from, StateConnecting)
	}
	return c.dial(token)
}

// Disconnect closes the connection and cancels any pending reconnect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	conn := c.conn
	c.conn = nil
	from, ok := c.transitionLocked(StateDisconnected)
	c.mu.Unlock()

	if ok {
		c.emitState(from, StateDisconnected)
	}

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

// Attempts returns the number of reconnects since the last successful open.
func (c *Client) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

// ClientID returns the id assigned by the relay, or "" before the connected
// frame arrives.
func (c *Client) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// On registers a listener for inbound events and returns a function that
// removes it.
func (c *Client) On(cb func(chat.Event)) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	id := c.nextListener
	c.nextListener++
	c.listeners[id] = cb

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

// OnStateChange registers a listener for state transitions and returns a
// function that removes it.
func (c *Client) OnStateChange(cb func(from, to State)) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	id := c.nextListener
	c.nextListener++
	c.stateListeners[id] = cb

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.stateListeners, id)
	}
}

// SendMessage sends a chat message as the local user and returns it.
func (c *Client) SendMessage(content string, meta any) (chat.Message, error) {
	var rawMeta json.RawMessage
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return chat.Message{}, fmt.Errorf("encode meta: %w", err)
		}
		rawMeta = b
	}

	msg := chat.NewMessage(c.localUser(), content, rawMeta, time.Now())
	data, err := chat.EncodeClientMessage(msg)
	if err != nil {
		return chat.Message{}, err
	}
	return msg, c.Send(data)
}

// SendTyping sends a typing indicator as the local user.
func (c *Client) SendTyping(isTyping bool) error {
	data, err := chat.EncodeClientTyping(c.localUser(), isTyping)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *Client) localUser() chat.User {
	id := c.ClientID()
	if id == "" {
		id = "local"
	}
	return chat.User{ID: id, Name: "You"}
}

// Send writes raw bytes to the connection.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.RUnlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// -----------------------------------------------------------------------------
// Lifecycle internals
// -----------------------------------------------------------------------------

func (c *Client) dial(token context.Context) error {
	dialCtx, cancel := context.WithTimeout(token, c.cfg.HandshakeTimeout)
	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, nil)
	cancel()

	if err != nil {
		c.logger.Debug("dial failed", "error", err)
		c.handleClose(token, nil)
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if token.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.attempts = 0
	c.lastPingAt = time.Now()
	from, ok := c.transitionLocked(StateOpen)
	c.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()

		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	done := make(chan struct{})
	go c.readLoop(token, conn, done)
	go c.heartbeatLoop(conn, done)

	if ok {
		c.emitState(from, StateOpen)
	}
	c.logger.Info("transport connected")
	return nil
}

// handleClose reacts to a lost or failed connection by scheduling a
// reconnect, or by parking in Failed once attempts are exhausted.
func (c *Client) handleClose(token context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	if token.Err() != nil {
		c.mu.Unlock()
		return
	}
	if conn != nil && c.conn != conn {
		// A newer connection has replaced this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil

	if c.attempts >= c.cfg.MaxAttempts {
		from, ok := c.transitionLocked(StateFailed)
		attempts := c.attempts
		c.mu.Unlock()

		if ok {
			c.emitState(from, StateFailed)
		}
		c.logger.Warn("giving up reconnecting", "attempts", attempts)
		return
	}

	c.attempts++
	attempt := c.attempts
	delay := c.cfg.BaseInterval * time.Duration(attempt)
	from, ok := c.transitionLocked(StateReconnecting)
	c.retry = c.afterFunc(delay, func() { c.reconnect(token) })
	c.mu.Unlock()

	if ok {
		c.emitState(from, StateReconnecting)
	}
	if c.onRetry != nil {
		c.onRetry(attempt, delay)
	}
	c.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (c *Client) reconnect(token context.Context) {
	c.mu.Lock()
	if token.Err() != nil || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	from, ok := c.transitionLocked(StateConnecting)
	c.mu.Unlock()

	if ok {
		c.emitState(from, StateConnecting)
	}
	c.dial(token)
}

// transitionLocked moves to the given state if the table allows it.
func (c *Client) transitionLocked(to State) (State, bool) {
	from := c.state
	if !CanTransition(from, to) {
		return from, false
	}
	c.state = to
	return from, true
}

func (c *Client) emitState(from, to State) {
	c.listenersMu.RLock()
	cbs := make([]func(from, to State), 0, len(c.stateListeners))
	for _, cb := range c.stateListeners {
		cbs = append(cbs, cb)
	}
	c.listenersMu.RUnlock()

	c.logger.Debug("state change", "from", from, "to", to)
	for _, cb := range cbs {
		c.safeCall(func() { cb(from, to) })
	}
}

// readLoop reads frames until the connection fails.
func (c *Client) readLoop(token context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(token, conn)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	ev, err := chat.Decode(data)
	if err != nil {
		c.logger.Debug("dropping frame", "error", err)
		return
	}

	if connected, ok := ev.(chat.Connected); ok {
		c.mu.Lock()
		c.clientID = connected.ID
		c.mu.Unlock()
	}

	c.listenersMu.RLock()
	cbs := make([]func(chat.Event), 0, len(c.listeners))
	for _, cb := range c.listeners {
		cbs = append(cbs, cb)
	}
	c.listenersMu.RUnlock()

	for _, cb := range cbs {
		c.safeCall(func() { cb(ev) })
	}
}

func (c *Client) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panicked", "error", fmt.Sprint(r))
		}
	}()
	fn()
}

// heartbeatLoop closes the connection when the relay stops pinging.
func (c *Client) heartbeatLoop(conn *websocket.Conn, done <-chan struct{}) {
	if c.cfg.PingTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(c.cfg.PingTimeout / 3)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
					"error", ErrStaleConnection,
				)
				conn.Close()
				return
			}
		}
	}
}
