package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gramseva/marketfeed/internal/bus"
	"github.com/gramseva/marketfeed/internal/model"
)

const subscriberID = "redis-snapshot"

// Snapshot is the cached document.
type Snapshot struct {
	At      time.Time           `json:"at"`
	Records []model.PriceRecord `json:"records"`
}

// Client is the subset of the redis client the publisher uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Config holds publisher configuration.
type Config struct {
	Key          string
	TTL          time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Key:          "prices:snapshot",
		TTL:          2 * time.Minute,
		WriteTimeout: 5 * time.Second,
	}
}

// Publisher writes each tick's snapshot to Redis. Bus callbacks only stash
// the latest snapshot; a background goroutine does the write, so a slow
// Redis never holds up the tick. Intermediate snapshots may be skipped.
type Publisher struct {
	cfg    Config
	client Client
	logger *slog.Logger

	mu      sync.Mutex
	latest  *Snapshot
	wake    chan struct{}
	written int64
	errors  int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to redisURL and verifies the connection.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// New creates a Publisher.
func New(cfg Config, client Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Publisher{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "cache", "key", cfg.Key),
		wake:   make(chan struct{}, 1),
	}
}

// Attach subscribes the publisher to tick snapshots.
func (p *Publisher) Attach(b *bus.Bus) {
	bus.OnPriceUpdate(b, subscriberID, func(u bus.PriceUpdate) {
		p.Offer(Snapshot{At: u.At, Records: u.Records})
	})
}

// Detach removes the bus subscription.
func (p *Publisher) Detach(b *bus.Bus) {
	b.Unsubscribe(bus.KindPriceUpdate, subscriberID)
}

// Offer replaces the pending snapshot.
func (p *Publisher) Offer(s Snapshot) {
	p.mu.Lock()
	p.latest = &s
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start begins the write loop.
func (p *Publisher) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot publisher started", "ttl", p.cfg.TTL)
	return nil
}

// Stop ends the write loop and writes any pending snapshot.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	err := p.Flush(ctx)

	p.mu.Lock()
	written, failed := p.written, p.errors
	p.mu.Unlock()
	p.logger.Info("snapshot publisher stopped", "written", written, "errors", failed)
	return err
}

func (p *Publisher) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
			ctx, cancel := context.WithTimeout(p.ctx, p.cfg.WriteTimeout)
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn("snapshot write failed", "err", err)
			}
			cancel()
		}
	}
}

// Flush writes the pending snapshot, if any.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	s := p.latest
	p.latest = nil
	p.mu.Unlock()

	if s == nil {
		return nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.cfg.Key, data, p.cfg.TTL).Err(); err != nil {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		return fmt.Errorf("redis SET %s: %w", p.cfg.Key, err)
	}

	p.mu.Lock()
	p.written++
	p.mu.Unlock()
	return nil
}

// Written returns the number of successful writes.
func (p *Publisher) Written() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Load reads the cached snapshot. ok is false when the key is absent or
// expired.
func Load(ctx context.Context, client Client, key string) (Snapshot, bool, error) {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("redis GET %s: %w", key, err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return s, true, nil
}
