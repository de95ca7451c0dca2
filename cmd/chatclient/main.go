// chatclient connects to the chat relay, prints everything it receives and
// sends each line typed on stdin as a chat message. Connection changes are
// reported as toasts.
// Usage: go run ./cmd/chatclient --url ws://localhost:4000
//
// The relay URL may also come from CHAT_WS_URL or the transport section of
// a marketd config file.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gramseva/marketfeed/internal/bus"
	"github.com/gramseva/marketfeed/internal/chat"
	"github.com/gramseva/marketfeed/internal/config"
	"github.com/gramseva/marketfeed/internal/connection"
	"github.com/gramseva/marketfeed/internal/metrics"
	"github.com/gramseva/marketfeed/internal/model"
	"github.com/gramseva/marketfeed/internal/notify"
)

func main() {
	configPath := flag.String("config", "", "optional marketd config file for the transport section")
	url := flag.String("url", "", "relay URL (overrides config and CHAT_WS_URL)")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	verbose := flag.Bool("verbose", false, "log transport internals")
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	clientCfg := connection.DefaultClientConfig()
	clientCfg.URL = cfg.Transport.URL
	clientCfg.BaseInterval = cfg.Transport.BaseInterval
	clientCfg.MaxAttempts = cfg.Transport.MaxAttempts
	clientCfg.PingTimeout = cfg.Transport.PingTimeout
	if env := os.Getenv("CHAT_WS_URL"); env != "" {
		clientCfg.URL = env
	}
	if *url != "" {
		clientCfg.URL = *url
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := bus.New(bus.WithLogger(logger))
	notifications := notify.NewService(&notify.MemoryStore{}, b, notify.WithLogger(logger))
	notifications.SubscribeToToasts("console", printToast)
	if err := notifications.Start(ctx); err != nil {
		logger.Error("failed to start notifications", "error", err)
		os.Exit(1)
	}

	client := connection.NewClient(clientCfg, logger)

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		client.OnRetry(func(attempt int, delay time.Duration) {
			m.RecordReconnect()
		})
		go func() {
			err := http.ListenAndServe(*metricsAddr, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	client.OnStateChange(func(from, to connection.State) {
		switch {
		case to == connection.StateOpen:
			notifications.HandleConnectionStatus(true)
		case from == connection.StateOpen && to != connection.StateDisconnected:
			notifications.HandleConnectionStatus(false)
		case to == connection.StateFailed:
			fmt.Fprintln(os.Stderr, "giving up after", client.Attempts(), "attempts")
		}
	})

	client.On(printEvent)

	if err := client.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, retrying in background", "error", err)
	}

	go readInput(ctx, client, logger)

	<-ctx.Done()

	client.Disconnect()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	notifications.Stop(stopCtx)
}

func readInput(ctx context.Context, client *connection.Client, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		client.SendTyping(true)
		if _, err := client.SendMessage(line, nil); err != nil {
			logger.Warn("send failed", "error", err)
		}
		client.SendTyping(false)
	}
}

func printEvent(ev chat.Event) {
	ts := time.Now().Format("15:04:05")
	switch e := ev.(type) {
	case chat.Connected:
		fmt.Printf("[%s] connected as %s, %d online\n", ts, e.ID, len(e.Users))
	case chat.Presence:
		verb := "joined"
		if e.Event == chat.PresenceLeave {
			verb = "left"
		}
		fmt.Printf("[%s] %s %s\n", ts, e.User.Name, verb)
	case chat.Typing:
		if e.IsTyping {
			fmt.Printf("[%s] %s is typing...\n", ts, e.User.Name)
		}
	case chat.Message:
		name := e.Sender
		if e.User != nil {
			name = e.User.Name
		}
		fmt.Printf("[%s] %s: %s\n", ts, name, e.Content)
	}
}

func printToast(t model.ToastMessage) {
	fmt.Fprintf(os.Stderr, "** %s: %s - %s\n", strings.ToUpper(string(t.Type)), t.Title, t.Message)
}
