package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gramseva/marketfeed/internal/api"
	"github.com/gramseva/marketfeed/internal/market"
	"github.com/gramseva/marketfeed/internal/model"
)

// Fetcher returns every mandi record for a commodity.
type Fetcher interface {
	GetAllPrices(ctx context.Context, commodity string) ([]api.MandiRecord, error)
}

// Sink accepts observations. *market.Service satisfies it.
type Sink interface {
	Ingest(obs market.Observation) bool
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(market.Observation) bool

func (f SinkFunc) Ingest(obs market.Observation) bool {
	return f(obs)
}

// Recorder counts poll results.
type Recorder interface {
	RecordPoll(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordPoll(string) {}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 15m)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-commodity timeout (default: 30s)
	Commodities []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Minute,
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

// Result summarizes one poll cycle.
type Result struct {
	Commodities int
	Fetched     int64
	Errors      int64
	Ingested    int64
}

// Poller periodically fetches mandi prices.
type Poller struct {
	cfg      Config
	fetcher  Fetcher
	sink     Sink
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, fetcher Fetcher, sink Sink, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:      cfg,
		fetcher:  fetcher,
		sink:     sink,
		recorder: nopRecorder{},
		logger:   logger.With("component", "poller"),
		now:      time.Now,
	}
}

// SetRecorder sets the metrics recorder.
func (p *Poller) SetRecorder(r Recorder) {
	if r != nil {
		p.recorder = r
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("agmarknet poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"commodities", len(p.cfg.Commodities),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
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
		p.logger.Info("agmarknet poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.PollAll(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.PollAll(p.ctx)
		}
	}
}

// PollAll fetches every configured commodity with bounded concurrency.
// A failing commodity is logged and does not stop the others.
func (p *Poller) PollAll(ctx context.Context) Result {
	start := time.Now()
	res := Result{Commodities: len(p.cfg.Commodities)}
	if res.Commodities == 0 {
		p.logger.Debug("no commodities to poll")
		return res
	}

	var fetched, errs, ingested atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, commodity := range p.cfg.Commodities {
		g.Go(func() error {
			n, err := p.pollCommodity(gctx, commodity)
			if err != nil {
				p.logger.Warn("failed to poll commodity",
					"commodity", commodity,
					"err", err,
				)
				p.recorder.RecordPoll("error")
				errs.Add(1)
				return nil
			}
			p.recorder.RecordPoll("ok")
			fetched.Add(1)
			ingested.Add(int64(n))
			return nil
		})
	}

	g.Wait()

	res.Fetched = fetched.Load()
	res.Errors = errs.Load()
	res.Ingested = ingested.Load()

	p.logger.Info("poll cycle complete",
		"commodities", res.Commodities,
		"fetched", res.Fetched,
		"errors", res.Errors,
		"ingested", res.Ingested,
		"duration", time.Since(start),
	)
	return res
}

// pollCommodity fetches one commodity and ingests the latest quote per market.
func (p *Poller) pollCommodity(ctx context.Context, commodity string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	records, err := p.fetcher.GetAllPrices(ctx, commodity)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", commodity, err)
	}

	ingested := 0
	for _, obs := range Latest(records, p.now()) {
		if p.sink.Ingest(obs) {
			ingested++
		}
	}
	return ingested, nil
}

// Latest normalizes records and keeps the most recent arrival for each
// commodity/market, in first-seen order. Rows without a price are skipped.
func Latest(records []api.MandiRecord, now time.Time) []market.Observation {
	byKey := make(map[string]int)
	var out []market.Observation

	for _, r := range records {
		q, err := r.Normalize()
		if err != nil {
			continue
		}
		obs := toObservation(q, now)

		if i, ok := byKey[obs.Key()]; ok {
			if obs.ObservedAt.After(out[i].ObservedAt) {
				out[i] = obs
			}
			continue
		}
		byKey[obs.Key()] = len(out)
		out = append(out, obs)
	}
	return out
}

// MarketLabel renders a market the way the store names them, "State (Market)".
func MarketLabel(state, mandi string) string {
	if state == "" {
		return mandi
	}
	return state + " (" + mandi + ")"
}

func toObservation(q api.Quote, now time.Time) market.Observation {
	observed := q.ArrivalDate
	if observed.IsZero() {
		observed = now
	}
	return market.Observation{
		Commodity:  q.Commodity,
		Variety:    q.Variety,
		Market:     MarketLabel(q.State, q.Market),
		State:      q.State,
		District:   q.District,
		Price:      q.ModalPrice,
		Unit:       "Quintal",
		Quality:    quality(q.Grade),
		Source:     model.SourceAPMC,
		ObservedAt: observed,
	}
}

func quality(grade string) model.Quality {
	switch model.Quality(grade) {
	case model.QualityFAQ, model.QualityGood, model.QualityAverage, model.QualityPoor:
		return model.Quality(grade)
	default:
		return model.QualityFAQ
	}
}
