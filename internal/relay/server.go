package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gramseva/marketfeed/internal/chat"
	"github.com/gramseva/marketfeed/internal/model"
)

// Recorder receives relay metrics.
type Recorder interface {
	SetRelayClients(n int)
	RecordRelayFrame(frameType string)
}

type nopRecorder struct{}

func (nopRecorder) SetRelayClients(int)      {}
func (nopRecorder) RecordRelayFrame(string) {}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the clock used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// client is one connected socket.
type client struct {
	user    chat.User
	conn    *websocket.Conn
	writeMu sync.Mutex
	alive   atomic.Bool
}

func (c *client) write(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(data, timeout)
}

func (c *client) writeLocked(data []byte, timeout time.Duration) error {
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// Server is the chat relay. It implements http.Handler.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	order   []*client // join order, for the presence list

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a relay.
func NewServer(cfg Config, opts ...Option) *Server {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}

	s := &Server{
		cfg:      cfg,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		now:      time.Now,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "relay")
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start begins the liveness sweep.
func (s *Server) Start(ctx context.Context) error {
	s.wg.Add(1)
	go s.sweepLoop()
	s.logger.Info("relay started", "sweep_interval", s.cfg.SweepInterval)
	return nil
}

// Stop ends the sweep and closes every connection.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.order))
	for _, c := range s.order {
		conns = append(conns, c.conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled. A bind
// failure is returned immediately.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s}

	if err := s.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("realtime chat relay listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.Stop(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.Shutdown(shutdownCtx)
	return s.Stop(shutdownCtx)
}

// Clients returns the connected users in join order.
func (s *Server) Clients() []chat.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]chat.User, len(s.order))
	for i, c := range s.order {
		users[i] = c.user
	}
	return users
}

// ServeHTTP upgrades the request and relays frames until the socket closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "relay stopping", http.StatusServiceUnavailable)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return
	}

	c := newClient(conn)

	// Hold the write lock so no broadcast reaches c before its welcome.
	c.writeMu.Lock()
	users := s.register(c)
	welcome, _ := chat.Encode(chat.Connected{ID: c.user.ID, Users: users})
	if err := c.writeLocked(welcome, s.cfg.WriteTimeout); err != nil {
		s.logger.Debug("welcome failed", "conn", c.user.ID, "error", err)
	}
	c.writeMu.Unlock()
	s.recorder.RecordRelayFrame(string(chat.TypeConnected))
	s.broadcast(chat.Presence{Event: chat.PresenceJoin, User: c.user}, c)

	s.readLoop(c)

	s.unregister(c)
	conn.Close()
	s.broadcast(chat.Presence{Event: chat.PresenceLeave, User: c.user}, c)
}

func newClient(conn *websocket.Conn) *client {
	id := model.NewID()
	c := &client{
		user: chat.User{ID: id, Name: "User-" + id[len(id)-4:]},
		conn: conn,
	}
	c.alive.Store(true)
	conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})
	return c
}

// register adds c and returns the presence list including it.
func (s *Server) register(c *client) []chat.User {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.order = append(s.order, c)
	users := make([]chat.User, len(s.order))
	for i, other := range s.order {
		users[i] = other.user
	}
	n := len(s.order)
	s.mu.Unlock()

	s.recorder.SetRelayClients(n)
	s.logger.Info("client connected", "conn", c.user.ID, "clients", n)
	return users
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	for i, other := range s.order {
		if other == c {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	n := len(s.order)
	s.mu.Unlock()

	s.recorder.SetRelayClients(n)
	s.logger.Info("client disconnected", "conn", c.user.ID, "clients", n)
}

func (s *Server) readLoop(c *client) {
	c.conn.SetReadLimit(s.cfg.ReadLimit)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				s.logger.Warn("frame exceeds read limit", "conn", c.user.ID, "limit", s.cfg.ReadLimit)
			}
			return
		}

		ev, err := chat.DecodeClient(data, s.now())
		if err != nil {
			s.logger.Debug("dropping frame", "conn", c.user.ID, "error", err)
			continue
		}

		switch ev.Type() {
		case chat.TypeMessage:
			s.broadcast(ev, nil)
		case chat.TypeTyping:
			s.broadcast(ev, c)
		}
	}
}

// broadcast sends ev to every client except exclude.
func (s *Server) broadcast(ev chat.Event, exclude *client) int {
	data, err := chat.Encode(ev)
	if err != nil {
		s.logger.Error("encode frame", "type", ev.Type(), "error", err)
		return 0
	}

	s.mu.RLock()
	targets := make([]*client, 0, len(s.order))
	for _, c := range s.order {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.write(data, s.cfg.WriteTimeout); err != nil {
			s.logger.Debug("send failed", "conn", c.user.ID, "error", err)
			continue
		}
		sent++
	}
	s.recorder.RecordRelayFrame(string(ev.Type()))
	return sent
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep terminates connections that did not answer the previous ping and
// pings the rest. It returns the number terminated.
func (s *Server) Sweep() int {
	s.mu.RLock()
	targets := append([]*client(nil), s.order...)
	s.mu.RUnlock()

	terminated := 0
	for _, c := range targets {
		if !c.alive.Load() {
			s.logger.Info("terminating unresponsive client", "conn", c.user.ID)
			c.conn.Close()
			terminated++
			continue
		}
		c.alive.Store(false)
		if err := c.ping(s.cfg.WriteTimeout); err != nil {
			s.logger.Debug("ping failed", "conn", c.user.ID, "error", err)
		}
	}
	return terminated
}
