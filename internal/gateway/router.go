package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gramseva/marketfeed/internal/market"
	"github.com/gramseva/marketfeed/internal/model"
	"github.com/gramseva/marketfeed/internal/notify"
	"github.com/gramseva/marketfeed/internal/version"
)

// Prices answers price queries. *market.Service satisfies it.
type Prices interface {
	GetCurrentPrices(commodity, market string) []model.PriceRecord
	GetPriceComparison(commodity string) (market.PriceComparison, error)
	GetMarketAnalytics(commodity string, period market.Period) (market.MarketAnalytics, error)
	GetHistoricalData(commodity string, period market.Period) []market.HistoryPoint
	GetMarketSummary() market.MarketSummary
}

// Alerts manages alert history. *alerts.Engine satisfies it.
type Alerts interface {
	Alerts() []model.MarketAlert
	Unread() int
	SetPriceAlert(commodity string, targetPrice int, direction model.Direction) (model.MarketAlert, error)
	MarkRead(id string) bool
}

// Notifications manages toast and notification settings. *notify.Service
// satisfies it.
type Notifications interface {
	GetConfig() notify.Config
	SaveConfig(ctx context.Context, cfg notify.Config) error
	TestNotifications()
	ClearAll() int
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the services the gateway routes to. Chat, Metrics and Checks are
// optional.
type Deps struct {
	Prices        Prices
	Alerts        Alerts
	Notifications Notifications
	Stream        *Hub

	Chat        http.Handler // mounted at /chat
	Metrics     http.Handler
	MetricsPath string
	Checks      map[string]HealthCheck
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{deps: d, logger: logger.With("component", "gateway")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(h.logger))

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/prices", h.getPrices)
		r.Get("/prices/compare/{commodity}", h.comparePrices)
		r.Get("/analytics/{commodity}", h.getAnalytics)
		r.Get("/history/{commodity}", h.getHistory)
		r.Get("/summary", h.getSummary)

		r.Get("/alerts", h.getAlerts)
		r.Post("/alerts", h.createAlert)
		r.Post("/alerts/{id}/read", h.markAlertRead)

		r.Get("/notifications/config", h.getNotificationConfig)
		r.Put("/notifications/config", h.putNotificationConfig)
		r.Post("/notifications/test", h.testNotifications)
		r.Delete("/toasts", h.clearToasts)
	})

	if d.Stream != nil {
		r.Get("/ws", d.Stream.ServeHTTP)
	}
	if d.Chat != nil {
		r.Handle("/chat", d.Chat)
	}
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, d.Metrics)
	}

	return r
}

// LoggingMiddleware logs each request with its status and duration.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// The chi wrapper keeps http.Hijacker for websocket upgrades.
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Version: version.Version}
	if len(h.deps.Checks) > 0 {
		resp.Components = make(map[string]string, len(h.deps.Checks))
	}
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Components[name] = "error: " + err.Error()
			continue
		}
		resp.Components[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
