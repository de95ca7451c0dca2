package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StorageKey is the key the configuration blob is stored under.
const StorageKey = "notificationConfig"

// Config toggles each notification channel and helper.
type Config struct {
	Enabled      bool `json:"enabled"`
	Sound        bool `json:"sound"`
	Desktop      bool `json:"desktop"`
	PriceAlerts  bool `json:"priceAlerts"`
	VolumeAlerts bool `json:"volumeAlerts"`
	MarketNews   bool `json:"marketNews"`
}

// DefaultConfig enables everything except desktop notifications.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Sound:        true,
		Desktop:      false,
		PriceAlerts:  true,
		VolumeAlerts: true,
		MarketNews:   true,
	}
}

// ConfigStore persists the notification configuration.
type ConfigStore interface {
	// Load returns the saved config. ok is false when nothing has been saved.
	Load(ctx context.Context) (cfg Config, ok bool, err error)
	Save(ctx context.Context, cfg Config) error
}

// MemoryStore keeps the config in memory.
type MemoryStore struct {
	mu    sync.Mutex
	cfg   Config
	saved bool
}

func (m *MemoryStore) Load(context.Context) (Config, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, m.saved, nil
}

func (m *MemoryStore) Save(_ context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg, m.saved = cfg, true
	return nil
}

// FileStore keeps the config in a JSON document keyed by StorageKey, so other
// settings can share the file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(context.Context) (Config, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.readLocked()
	if err != nil {
		return Config{}, false, err
	}
	raw, ok := doc[StorageKey]
	if !ok {
		return Config{}, false, nil
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("decode %s: %w", StorageKey, err)
	}
	return cfg, true, nil
}

func (f *FileStore) Save(_ context.Context, cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.readLocked()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", StorageKey, err)
	}
	doc[StorageKey] = raw

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func (f *FileStore) readLocked() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	doc := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", f.path, err)
	}
	return doc, nil
}

// redisKV is the subset of the redis client used by RedisStore.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the config under a Redis key.
type RedisStore struct {
	client redisKV
	key    string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL, key string) (*RedisStore, error) {
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

	return newRedisStore(client, key), nil
}

func newRedisStore(client redisKV, key string) *RedisStore {
	if key == "" {
		key = StorageKey
	}
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Load(ctx context.Context) (Config, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Config{}, false, nil
	}
	if err != nil {
		return Config{}, false, fmt.Errorf("redis GET %s: %w", r.key, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return cfg, true, nil
}

func (r *RedisStore) Save(ctx context.Context, cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.key, err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", r.key, err)
	}
	return nil
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
