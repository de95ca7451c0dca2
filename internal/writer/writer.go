package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gramseva/marketfeed/internal/bus"
	"github.com/gramseva/marketfeed/internal/model"
)

// Table names.
const (
	TablePriceTicks   = "price_ticks"
	TableMarketAlerts = "market_alerts"
)

// subscriberID is the bus id the writer registers under.
const subscriberID = "timescale-writer"

// Config holds batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultConfig returns the default batching settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Metrics counts writes for one table.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Dropped   int64
	Flushes   int64
}

// BatchSender is satisfied by *pgxpool.Pool.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Recorder receives flush results.
type Recorder interface {
	RecordFlush(table string, rows int, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordFlush(string, int, error) {}

type tickRow struct {
	Ts          time.Time
	Commodity   string
	Market      string
	State       string
	District    string
	Price       int
	PriceChange int
	ChangePct   float64
	Volume      int
	Trend       string
	Source      string
}

type alertRow struct {
	ID        string
	Ts        time.Time
	Commodity string
	Market    string
	AlertType string
	Priority  string
	Message   string
}

const insertTick = `
	INSERT INTO price_ticks (ts, commodity, market, state, district, price, price_change, price_change_pct, volume, trend, source)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (commodity, market, ts) DO NOTHING
`

const insertAlert = `
	INSERT INTO market_alerts (id, ts, commodity, market, alert_type, priority, message)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

// Writer persists tick snapshots and raised alerts.
type Writer struct {
	cfg      Config
	logger   *slog.Logger
	db       BatchSender
	recorder Recorder

	ticks  *table[tickRow]
	alerts *table[alertRow]
	full   chan struct{}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Writer.
func New(cfg Config, db BatchSender, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}

	return &Writer{
		cfg:      cfg,
		logger:   logger.With("component", "writer"),
		db:       db,
		recorder: nopRecorder{},
		ticks: newTable(TablePriceTicks, insertTick, cfg.BufferSize, func(r tickRow) []any {
			return []any{r.Ts, r.Commodity, r.Market, r.State, r.District, r.Price,
				r.PriceChange, r.ChangePct, r.Volume, r.Trend, r.Source}
		}),
		alerts: newTable(TableMarketAlerts, insertAlert, cfg.BufferSize, func(r alertRow) []any {
			return []any{r.ID, r.Ts, r.Commodity, r.Market, r.AlertType, r.Priority, r.Message}
		}),
		full: make(chan struct{}, 1),
	}
}

// SetRecorder sets the metrics recorder.
func (w *Writer) SetRecorder(r Recorder) {
	if r != nil {
		w.recorder = r
	}
}

// Attach subscribes the writer to snapshots and alerts on b.
func (w *Writer) Attach(b *bus.Bus) {
	bus.OnPriceUpdate(b, subscriberID, func(u bus.PriceUpdate) {
		w.AddSnapshot(u.Records)
	})
	bus.OnAlert(b, subscriberID, w.AddAlert)
}

// Detach removes the writer's subscriptions from b.
func (w *Writer) Detach(b *bus.Bus) {
	b.Unsubscribe(bus.KindPriceUpdate, subscriberID)
	b.Unsubscribe(bus.KindAlertRaised, subscriberID)
}

// AddSnapshot queues one row per record.
func (w *Writer) AddSnapshot(records []model.PriceRecord) {
	for _, r := range records {
		w.ticks.push(transformTick(r))
	}
	w.signalIfFull(w.ticks.pending())
}

// AddAlert queues an alert row.
func (w *Writer) AddAlert(a model.MarketAlert) {
	w.alerts.push(transformAlert(a))
	w.signalIfFull(w.alerts.pending())
}

func (w *Writer) signalIfFull(pending int) {
	if pending < w.cfg.BatchSize {
		return
	}
	select {
	case w.full <- struct{}{}:
	default:
	}
}

func transformTick(r model.PriceRecord) tickRow {
	return tickRow{
		Ts:          r.Timestamp,
		Commodity:   r.Commodity,
		Market:      r.Market,
		State:       r.State,
		District:    r.District,
		Price:       r.Price,
		PriceChange: r.PriceChange,
		ChangePct:   r.PriceChangePercent,
		Volume:      r.Volume,
		Trend:       string(r.Trend),
		Source:      string(r.Source),
	}
}

func transformAlert(a model.MarketAlert) alertRow {
	return alertRow{
		ID:        a.ID,
		Ts:        a.Timestamp,
		Commodity: a.Commodity,
		Market:    a.Market,
		AlertType: string(a.AlertType),
		Priority:  string(a.Priority),
		Message:   a.Message,
	}
}

// Start begins the flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing what is queued.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("writer stopped")
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
	}

	// Final flush
	w.Flush(ctx)
	return nil
}

// Flush writes everything queued for both tables.
func (w *Writer) Flush(ctx context.Context) {
	if err := w.ticks.flush(ctx, w.db, w.cfg.BatchSize, w.recorder); err != nil {
		w.logger.Error("batch insert failed", "table", TablePriceTicks, "error", err)
	}
	if err := w.alerts.flush(ctx, w.db, w.cfg.BatchSize, w.recorder); err != nil {
		w.logger.Error("batch insert failed", "table", TableMarketAlerts, "error", err)
	}
}

// Stats returns per-table metrics.
func (w *Writer) Stats() map[string]Metrics {
	return map[string]Metrics{
		TablePriceTicks:   w.ticks.stats(),
		TableMarketAlerts: w.alerts.stats(),
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Flush(w.ctx)
		case <-w.full:
			w.Flush(w.ctx)
		}
	}
}
