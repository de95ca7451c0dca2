package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/gramseva/marketfeed/internal/notify"
)

// Payload kinds.
const (
	KindNews         = "news"
	KindMarketStatus = "market_status"
)

// ErrUnknownKind is returned for a payload with an unrecognised kind.
var ErrUnknownKind = errors.New("unknown payload kind")

// Handler receives decoded payloads. *notify.Service satisfies it.
type Handler interface {
	HandleMarketNews(title, msg string, importance notify.Importance)
	HandleMarketStatus(open bool)
}

// Payload is the JSON body of a notification.
type Payload struct {
	Kind       string            `json:"kind"`
	Title      string            `json:"title,omitempty"`
	Message    string            `json:"message,omitempty"`
	Importance notify.Importance `json:"importance,omitempty"`
	Open       *bool             `json:"open,omitempty"`
}

// Config holds listener configuration.
type Config struct {
	DSN                  string
	Channel              string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration // Idle time before pinging the connection
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Channel:              "market_news",
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
	}
}

// notifier is the subset of *pq.Listener the listener drives.
type notifier interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

type dialFunc func(cfg Config, onEvent pq.EventCallbackType) notifier

func dialPQ(cfg Config, onEvent pq.EventCallbackType) notifier {
	return pq.NewListener(cfg.DSN, cfg.MinReconnectInterval, cfg.MaxReconnectInterval, onEvent)
}

// Listener consumes notifications from one channel.
type Listener struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
	dial    dialFunc

	conn   notifier
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Listener.
func New(cfg Config, handler Handler, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.MinReconnectInterval <= 0 {
		cfg.MinReconnectInterval = def.MinReconnectInterval
	}
	if cfg.MaxReconnectInterval <= 0 {
		cfg.MaxReconnectInterval = def.MaxReconnectInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	return &Listener{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "news", "channel", cfg.Channel),
		dial:    dialPQ,
	}
}

// Start opens the connection, issues LISTEN and begins dispatching.
func (l *Listener) Start(ctx context.Context) error {
	conn := l.dial(l.cfg, l.onEvent)
	if err := conn.Listen(l.cfg.Channel); err != nil {
		conn.Close()
		return fmt.Errorf("listen %s: %w", l.cfg.Channel, err)
	}
	l.conn = conn
	l.ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go l.run()

	l.logger.Info("news listener started")
	return nil
}

// Stop closes the connection and waits for the dispatch loop.
func (l *Listener) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			return fmt.Errorf("close listener: %w", err)
		}
	}
	l.logger.Info("news listener stopped")
	return nil
}

func (l *Listener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("listener connection attempt failed", "err", err)
	case pq.ListenerEventDisconnected:
		l.logger.Warn("listener disconnected", "err", err)
	case pq.ListenerEventReconnected:
		l.logger.Info("listener reconnected")
	}
}

func (l *Listener) run() {
	defer l.wg.Done()

	ping := time.NewTimer(l.cfg.PingInterval)
	defer ping.Stop()

	notifications := l.conn.NotificationChannel()
	for {
		select {
		case <-l.ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			// A nil notification follows a reconnect; anything sent while
			// disconnected is lost.
			if n != nil {
				if err := l.Dispatch([]byte(n.Extra)); err != nil {
					l.logger.Warn("dropping notification", "err", err)
				}
			}
			ping.Reset(l.cfg.PingInterval)
		case <-ping.C:
			if err := l.conn.Ping(); err != nil {
				l.logger.Warn("listener ping failed", "err", err)
			}
			ping.Reset(l.cfg.PingInterval)
		}
	}
}

// Dispatch decodes one payload and calls the matching handler.
func (l *Listener) Dispatch(data []byte) error {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch p.Kind {
	case KindNews:
		if p.Title == "" {
			return fmt.Errorf("news payload without title")
		}
		l.handler.HandleMarketNews(p.Title, p.Message, p.Importance)
	case KindMarketStatus:
		if p.Open == nil {
			return fmt.Errorf("market_status payload without open")
		}
		l.handler.HandleMarketStatus(*p.Open)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	return nil
}
