package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/gramseva/marketfeed/internal/alerts"
	"github.com/gramseva/marketfeed/internal/api"
	"github.com/gramseva/marketfeed/internal/bus"
	"github.com/gramseva/marketfeed/internal/cache"
	"github.com/gramseva/marketfeed/internal/config"
	"github.com/gramseva/marketfeed/internal/database"
	"github.com/gramseva/marketfeed/internal/gateway"
	"github.com/gramseva/marketfeed/internal/market"
	"github.com/gramseva/marketfeed/internal/metrics"
	"github.com/gramseva/marketfeed/internal/model"
	"github.com/gramseva/marketfeed/internal/news"
	"github.com/gramseva/marketfeed/internal/notify"
	"github.com/gramseva/marketfeed/internal/poller"
	"github.com/gramseva/marketfeed/internal/relay"
	"github.com/gramseva/marketfeed/internal/version"
	"github.com/gramseva/marketfeed/internal/writer"
)

// stopper is implemented by every background component.
type stopper interface {
	Stop(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "configs/marketd.yaml", "path to config file")
	flag.Parse()

	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting marketd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("marketd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("marketd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b := bus.New(
		bus.WithLogger(logger),
		bus.WithPanicHook(func(kind bus.Kind, id string) {
			m.RecordSubscriberPanic(string(kind))
		}),
	)

	checks := make(map[string]gateway.HealthCheck)
	var stoppers []stopper
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Redis is shared by the snapshot cache and the notification store.
	var rdb *redis.Client
	if cfg.Cache.Enabled {
		client, err := cache.Dial(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		rdb = client
		closers = append(closers, func() { rdb.Close() })
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	records := initialRecords(ctx, cfg, rdb, logger)

	hub := gateway.NewHub(notify.Permission(cfg.Notifications.DesktopPermission), logger)
	hub.SetPingInterval(cfg.HTTP.StreamPing)

	store, closeStore, err := notificationStore(ctx, cfg.Notifications)
	if err != nil {
		return err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	notifications := notify.NewService(store, b,
		notify.WithDesktop(hub),
		notify.WithPlayer(hub),
		notify.WithRecorder(m),
		notify.WithHistory(cfg.Notifications.ToastRetention),
		notify.WithLogger(logger),
	)

	engine := alerts.NewEngine(alerts.Config{
		SpikePercent:    cfg.Alerts.SpikePercent,
		HighPercent:     cfg.Alerts.HighPercent,
		VolumeThreshold: cfg.Alerts.VolumeThreshold,
		Retention:       cfg.Alerts.Retention,
	}, b, notifications, logger)
	engine.SetRecorder(m)

	svc := market.NewService(market.Config{
		TickInterval: cfg.Market.TickInterval,
		MaxDelta:     cfg.Market.MaxDelta,
		PriceFloor:   int(cfg.Market.PriceFloor),
		VolumeFloor:  cfg.Market.VolumeFloor,
		VolumeWalk:   int(cfg.Market.VolumeWalk),
	}, market.NewStore(records...), b,
		market.WithRand(market.NewRand(cfg.Market.Seed)),
		market.WithEvaluator(engine),
		market.WithObserver(m),
		market.WithLogger(logger),
	)

	hub.SetFeed(svc)
	hub.Attach(b)

	if err := notifications.Start(ctx); err != nil {
		return fmt.Errorf("start notifications: %w", err)
	}
	stoppers = append(stoppers, notifications)

	// Optional: chat relay mounted on the gateway.
	var chat http.Handler
	if cfg.Relay.Enabled {
		relayCfg := relay.DefaultConfig()
		relayCfg.SweepInterval = cfg.Relay.SweepInterval
		rs := relay.NewServer(relayCfg, relay.WithLogger(logger), relay.WithRecorder(m))
		if err := rs.Start(ctx); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
		stoppers = append(stoppers, rs)
		chat = rs
	}

	// Optional: TimescaleDB persistence.
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Timescale.Host,
			"port", cfg.Database.Timescale.Port,
			"database", cfg.Database.Timescale.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database.Timescale)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		closers = append(closers, pool.Close)
		checks["timescaledb"] = pool.Ping

		if err := database.EnsureSchema(ctx, pool, logger); err != nil {
			return err
		}

		w := writer.New(writer.Config{
			BatchSize:     cfg.Writers.BatchSize,
			FlushInterval: cfg.Writers.FlushInterval,
			BufferSize:    cfg.Writers.BufferSize,
		}, pool, logger)
		w.SetRecorder(m)
		w.Attach(b)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start writer: %w", err)
		}
		stoppers = append(stoppers, w)
	}

	// Optional: Redis snapshot cache.
	if rdb != nil {
		pub := cache.New(cache.Config{Key: cfg.Cache.Key, TTL: cfg.Cache.TTL}, rdb, logger)
		pub.Attach(b)
		if err := pub.Start(ctx); err != nil {
			return fmt.Errorf("start snapshot cache: %w", err)
		}
		stoppers = append(stoppers, pub)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start market: %w", err)
	}
	stoppers = append(stoppers, svc)

	// Optional: Agmarknet price feed.
	if cfg.Agmarknet.Enabled {
		client := api.NewClient(cfg.Agmarknet.BaseURL, cfg.Agmarknet.APIKey,
			api.WithLogger(logger),
			api.WithTimeout(cfg.Agmarknet.Timeout),
			api.WithRetries(cfg.Agmarknet.MaxRetries, time.Second),
			api.WithResource(cfg.Agmarknet.ResourceID),
		)
		p := poller.New(poller.Config{
			Interval:    cfg.Agmarknet.PollInterval,
			Concurrency: cfg.Agmarknet.Concurrency,
			Timeout:     cfg.Agmarknet.Timeout,
			Commodities: cfg.Agmarknet.Commodities,
		}, client, svc, logger)
		p.SetRecorder(m)
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
		stoppers = append(stoppers, p)
	}

	// Optional: market news over LISTEN/NOTIFY.
	if cfg.News.Enabled {
		l := news.New(news.Config{
			DSN:                  cfg.News.DSN,
			Channel:              cfg.News.Channel,
			MinReconnectInterval: cfg.News.MinReconnectInterval,
			MaxReconnectInterval: cfg.News.MaxReconnectInterval,
		}, notifications, logger)
		if err := l.Start(ctx); err != nil {
			return fmt.Errorf("start news listener: %w", err)
		}
		stoppers = append(stoppers, l)
	}

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: gateway.NewRouter(gateway.Deps{
			Prices:        svc,
			Alerts:        engine,
			Notifications: notifications,
			Stream:        hub,
			Chat:          chat,
			Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			MetricsPath:   cfg.Metrics.Path,
			Checks:        checks,
		}, logger),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gateway listening",
			"addr", cfg.HTTP.Addr,
			"health_url", fmt.Sprintf("http://localhost%s/health", cfg.HTTP.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()

		if err := hub.Shutdown(shutdownCtx); err != nil {
			logger.Warn("stream shutdown", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown", "error", err)
		}

		// Stop in reverse start order so producers stop before the writer
		// and cache make their final flush.
		for i := len(stoppers) - 1; i >= 0; i-- {
			if err := stoppers[i].Stop(shutdownCtx); err != nil {
				logger.Warn("component shutdown", "error", err)
			}
		}
		return nil
	})

	logger.Info("marketd running",
		"instance_id", cfg.Instance.ID,
		"records", len(records),
		"relay", cfg.Relay.Enabled,
		"database", cfg.Database.Enabled,
		"cache", cfg.Cache.Enabled,
		"agmarknet", cfg.Agmarknet.Enabled,
		"news", cfg.News.Enabled,
	)

	return g.Wait()
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// initialRecords resumes from the cached snapshot when one is available and
// falls back to the seed table.
func initialRecords(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *slog.Logger) []model.PriceRecord {
	if rdb != nil {
		snap, ok, err := cache.Load(ctx, rdb, cfg.Cache.Key)
		switch {
		case err != nil:
			logger.Warn("failed to load cached snapshot, using seed", "error", err)
		case ok && len(snap.Records) > 0:
			logger.Info("resuming from cached snapshot", "records", len(snap.Records), "at", snap.At)
			return snap.Records
		}
	}
	return market.SeedRecords(time.Now())
}

func notificationStore(ctx context.Context, cfg config.NotificationsConfig) (notify.ConfigStore, func(), error) {
	switch cfg.Store {
	case "file":
		return notify.NewFileStore(cfg.FilePath), nil, nil
	case "redis":
		rs, err := notify.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, nil, fmt.Errorf("notification store: %w", err)
		}
		return rs, func() { rs.Close() }, nil
	default:
		return &notify.MemoryStore{}, nil, nil
	}
}
