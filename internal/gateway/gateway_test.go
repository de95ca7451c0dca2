package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gramseva/marketfeed/internal/alerts"
	"github.com/gramseva/marketfeed/internal/bus"
	"github.com/gramseva/marketfeed/internal/market"
	"github.com/gramseva/marketfeed/internal/model"
	"github.com/gramseva/marketfeed/internal/notify"
)

var fixedNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

type testEnv struct {
	bus     *bus.Bus
	market  *market.Service
	alerts  *alerts.Engine
	notify  *notify.Service
	hub     *Hub
	server  *httptest.Server
	metrics atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	b := bus.New()
	svc := market.NewService(market.DefaultConfig(), market.NewStore(market.SeedRecords(fixedNow)...), b,
		market.WithRand(market.NewRand(42)),
		market.WithClock(func() time.Time { return fixedNow }),
	)
	hub := NewHub(notify.PermissionGranted, nil)
	hub.SetFeed(svc)
	hub.Attach(b)

	ns := notify.NewService(&notify.MemoryStore{}, b,
		notify.WithDesktop(hub),
		notify.WithPlayer(hub),
	)
	engine := alerts.NewEngine(alerts.DefaultConfig(), b, ns, nil)

	env := &testEnv{bus: b, market: svc, alerts: engine, notify: ns, hub: hub}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.metrics.Add(1)
		w.Write([]byte("# metrics\n"))
	})

	env.server = httptest.NewServer(NewRouter(Deps{
		Prices:        svc,
		Alerts:        engine,
		Notifications: ns,
		Stream:        hub,
		Metrics:       metrics,
		MetricsPath:   "/metrics",
	}, nil))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hub.Shutdown(ctx)
		env.server.Close()
		ns.Stop(ctx)
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode[HealthResponse](t, resp)
	if body.Status != "healthy" || body.Components != nil {
		t.Errorf("body = %v", body)
	}

	if resp := env.do(t, http.MethodGet, "/metrics", ""); resp.StatusCode != http.StatusOK || env.metrics.Load() != 1 {
		t.Errorf("metrics status = %d, calls = %d", resp.StatusCode, env.metrics.Load())
	}
}

func TestHealth_Checks(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthCheck
		status int
	}{
		{
			name:   "all ok",
			checks: map[string]HealthCheck{"timescaledb": func(context.Context) error { return nil }},
			status: http.StatusOK,
		},
		{
			name: "one failing",
			checks: map[string]HealthCheck{
				"timescaledb": func(context.Context) error { return nil },
				"redis":       func(context.Context) error { return errors.New("connection refused") },
			},
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(Deps{Checks: tt.checks}, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var body HealthResponse
			json.Unmarshal(rec.Body.Bytes(), &body)
			if len(body.Components) != len(tt.checks) {
				t.Errorf("components = %v", body.Components)
			}
			if body.Components["timescaledb"] != "ok" {
				t.Errorf("timescaledb = %q", body.Components["timescaledb"])
			}
		})
	}
}

func TestGetPrices(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 6},
		{"commodity", "?commodity=wheat", 1},
		{"market", "?market=maharashtra", 2},
		{"both", "?commodity=onion&market=nashik", 1},
		{"none", "?commodity=saffron", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/api/prices"+tt.query, "")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			records := decode[[]model.PriceRecord](t, resp)
			if len(records) != tt.want {
				t.Errorf("got %d records, want %d", len(records), tt.want)
			}
		})
	}
}

func TestQueries(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"compare", "/api/prices/compare/Wheat", http.StatusOK},
		{"compare unknown", "/api/prices/compare/Saffron", http.StatusNotFound},
		{"analytics", "/api/analytics/Rice?period=year", http.StatusOK},
		{"analytics default period", "/api/analytics/Rice", http.StatusOK},
		{"analytics unknown", "/api/analytics/Saffron", http.StatusNotFound},
		{"analytics bad period", "/api/analytics/Rice?period=decade", http.StatusBadRequest},
		{"history", "/api/history/Cotton?period=last30", http.StatusOK},
		{"history bad period", "/api/history/Cotton?period=week", http.StatusBadRequest},
		{"summary", "/api/summary", http.StatusOK},
		{"unknown route", "/api/nothing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, "")
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestQueryBodies(t *testing.T) {
	env := newTestEnv(t)

	history := decode[[]market.HistoryPoint](t, env.do(t, http.MethodGet, "/api/history/Cotton", ""))
	if len(history) != 30 {
		t.Errorf("history has %d points, want 30", len(history))
	}

	summary := decode[market.MarketSummary](t, env.do(t, http.MethodGet, "/api/summary", ""))
	if summary.TotalCommodities != 6 || len(summary.TopGainers) != 3 {
		t.Errorf("summary = %+v", summary)
	}

	errResp := decode[ErrorResponse](t, env.do(t, http.MethodGet, "/api/prices/compare/Saffron", ""))
	if errResp.Error != "no_data" {
		t.Errorf("error = %+v", errResp)
	}
}

func TestAlertsAPI(t *testing.T) {
	env := newTestEnv(t)

	bad := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"missing commodity", `{"targetPrice":2500,"direction":"above"}`},
		{"bad direction", `{"commodity":"Wheat","targetPrice":2500,"direction":"sideways"}`},
		{"bad target", `{"commodity":"Wheat","targetPrice":0,"direction":"below"}`},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/alerts", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}

	resp := env.do(t, http.MethodPost, "/api/alerts", `{"commodity":"Wheat","targetPrice":2500,"direction":"above"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decode[model.MarketAlert](t, resp)
	if created.AlertType != model.AlertPriceTarget || created.Market != alerts.AllMarkets {
		t.Errorf("created = %+v", created)
	}

	list := decode[AlertsResponse](t, env.do(t, http.MethodGet, "/api/alerts", ""))
	if len(list.Alerts) != 1 || list.Unread != 1 {
		t.Fatalf("list = %+v", list)
	}

	if resp := env.do(t, http.MethodPost, "/api/alerts/"+created.ID+"/read", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("mark read status = %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/alerts/missing/read", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("mark unknown status = %d", resp.StatusCode)
	}

	list = decode[AlertsResponse](t, env.do(t, http.MethodGet, "/api/alerts", ""))
	if list.Unread != 0 {
		t.Errorf("unread = %d after mark read", list.Unread)
	}
}

func TestNotificationsAPI(t *testing.T) {
	env := newTestEnv(t)

	cfg := decode[notify.Config](t, env.do(t, http.MethodGet, "/api/notifications/config", ""))
	if cfg != notify.DefaultConfig() {
		t.Errorf("config = %+v, want defaults", cfg)
	}

	cfg.Desktop = true
	cfg.Sound = false
	body, _ := json.Marshal(cfg)
	resp := env.do(t, http.MethodPut, "/api/notifications/config", string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	if got := env.notify.GetConfig(); !got.Desktop || got.Sound {
		t.Errorf("config not applied: %+v", got)
	}

	if resp := env.do(t, http.MethodPut, "/api/notifications/config", "nope"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body status = %d", resp.StatusCode)
	}

	if resp := env.do(t, http.MethodPost, "/api/notifications/test", ""); resp.StatusCode != http.StatusAccepted {
		t.Errorf("test status = %d", resp.StatusCode)
	}
	if n := len(env.notify.ActiveToasts()); n != 1 {
		t.Errorf("active toasts = %d, want 1", n)
	}

	cleared := decode[map[string]int](t, env.do(t, http.MethodDelete, "/api/toasts", ""))
	if cleared["cleared"] != 1 {
		t.Errorf("cleared = %v", cleared)
	}
}

// -----------------------------------------------------------------------------
// Stream
// -----------------------------------------------------------------------------

type rawFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) rawFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f rawFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

// readUntil skips frames until one of frameType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) rawFrame {
	t.Helper()
	for i := 0; i < 20; i++ {
		if f := readFrame(t, conn); f.Type == frameType {
			return f
		}
	}
	t.Fatalf("no %s frame", frameType)
	return rawFrame{}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStream_SnapshotFirst(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env)

	first := readFrame(t, conn)
	if first.Type != FramePrices {
		t.Fatalf("first frame = %s, want prices", first.Type)
	}
	var records []model.PriceRecord
	json.Unmarshal(first.Data, &records)
	if len(records) != 6 {
		t.Errorf("snapshot has %d records, want 6", len(records))
	}

	waitFor(t, func() bool { return env.hub.Clients() == 1 })

	env.market.Tick()
	if f := readFrame(t, conn); f.Type != FramePrices {
		t.Errorf("frame after tick = %s, want prices", f.Type)
	}
}

func TestStream_ToastAndSound(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env)
	readFrame(t, conn)
	waitFor(t, func() bool { return env.hub.Clients() == 1 })

	id := env.notify.ShowToast(model.ToastMessage{Type: model.ToastInfo, Title: "Mandi holiday"})

	toast := readUntil(t, conn, FrameToast)
	var got model.ToastMessage
	json.Unmarshal(toast.Data, &got)
	if got.ID != id || got.Title != "Mandi holiday" {
		t.Errorf("toast = %+v", got)
	}

	sound := readUntil(t, conn, FrameSound)
	var sf SoundFrame
	json.Unmarshal(sound.Data, &sf)
	if len(sf.Wav) < 44 || string(sf.Wav[:4]) != "RIFF" {
		t.Errorf("sound frame is not a WAV (%d bytes)", len(sf.Wav))
	}

	env.notify.Dismiss(id)
	dismiss := readUntil(t, conn, FrameToastDismiss)
	if !strings.Contains(string(dismiss.Data), id) {
		t.Errorf("dismiss = %s", dismiss.Data)
	}
}

func TestStream_AlertAndDesktop(t *testing.T) {
	env := newTestEnv(t)
	env.notify.Start(context.Background())
	env.notify.SaveConfig(context.Background(), notify.Config{Enabled: true, Desktop: true, PriceAlerts: true})

	conn := dialStream(t, env)
	readFrame(t, conn)
	waitFor(t, func() bool { return env.hub.Clients() == 1 })

	// A 12% jump raises a high priority spike with a desktop notification.
	env.alerts.Evaluate(model.PriceRecord{
		Commodity: "Onion", Market: "Maharashtra (Nashik)",
		Price: 3136, PriceChange: 336, PriceChangePercent: 12, Volume: 100,
	})

	alert := readUntil(t, conn, FrameAlert)
	var a model.MarketAlert
	json.Unmarshal(alert.Data, &a)
	if a.AlertType != model.AlertPriceSpike || a.Priority != model.PriorityHigh {
		t.Errorf("alert = %+v", a)
	}

	desktop := readUntil(t, conn, FrameDesktop)
	var n notify.DesktopNotification
	json.Unmarshal(desktop.Data, &n)
	if !strings.Contains(n.Title, "Onion") {
		t.Errorf("desktop = %+v", n)
	}
}

func TestStream_NoFeed(t *testing.T) {
	server := httptest.NewServer(NewRouter(Deps{Stream: NewHub("", nil)}, nil))
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestStream_Shutdown(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env)
	readFrame(t, conn)
	waitFor(t, func() bool { return env.hub.Clients() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := env.hub.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the socket to close")
	}

	resp := env.do(t, http.MethodGet, "/ws", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d, want 503", resp.StatusCode)
	}
}
