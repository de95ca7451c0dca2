// chatrelay runs the realtime chat relay on its own.
// Usage: go run ./cmd/chatrelay
//
// Environment variables:
//
//	CHAT_WS_PORT        - Listen port (default 4000)
//	CHAT_SWEEP_INTERVAL - Liveness sweep interval (default 30s)
//	CHAT_METRICS_PORT   - Serve Prometheus metrics on this port (default off)
//	LOG_LEVEL           - debug, info, warn or error (default info)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gramseva/marketfeed/internal/metrics"
	"github.com/gramseva/marketfeed/internal/relay"
	"github.com/gramseva/marketfeed/internal/version"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := relay.LoadEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting chat relay",
		"version", version.Version,
		"port", cfg.Port,
		"sweep_interval", cfg.SweepInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []relay.Option{relay.WithLogger(logger)}

	if cfg.MetricsPort > 0 {
		reg := prometheus.NewRegistry()
		opts = append(opts, relay.WithRecorder(metrics.New(reg)))

		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			logger.Info("metrics listening", "port", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer metricsServer.Close()
	}

	srv := relay.NewServer(cfg, opts...)
	if err := srv.ListenAndServe(ctx, cfg.Addr()); err != nil {
		logger.Error("chat relay failed", "error", err)
		os.Exit(1)
	}

	logger.Info("chat relay stopped")
}
