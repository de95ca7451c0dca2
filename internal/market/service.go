package market

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gramseva/marketfeed/internal/buffer"
	"github.com/gramseva/marketfeed/internal/bus"
	"github.com/gramseva/marketfeed/internal/model"
)

// Config holds update loop configuration.
type Config struct {
	TickInterval time.Duration
	MaxDelta     float64 // largest absolute price move per tick
	PriceFloor   int
	VolumeFloor  int
	VolumeWalk   int // width of the volume random walk
}

// DefaultConfig returns the reference simulation parameters.
func DefaultConfig() Config {
	return Config{
		TickInterval: 30 * time.Second,
		MaxDelta:     50,
		PriceFloor:   100,
		VolumeFloor:  50,
		VolumeWalk:   100,
	}
}

// Evaluator inspects each record after it has been committed to the store.
type Evaluator interface {
	Evaluate(record model.PriceRecord)
}

// Observer receives tick measurements.
type Observer interface {
	ObserveTick(duration time.Duration, records int)
	SetSubscribers(n int)
}

// Observation is an externally sourced price for one commodity/market.
type Observation struct {
	Commodity  string
	Variety    string
	Market     string
	State      string
	District   string
	Price      int
	Volume     int
	Unit       string
	Quality    model.Quality
	Source     model.Source
	ObservedAt time.Time
}

// Key returns the store key the observation applies to.
func (o Observation) Key() string {
	return model.RecordKey(o.Commodity, o.Market)
}

// Option configures a Service.
type Option func(*Service)

// WithRand sets the randomness source.
func WithRand(r Rand) Option {
	return func(s *Service) { s.rand = r }
}

// WithEvaluator sets the alert evaluator called for every mutated record.
func WithEvaluator(e Evaluator) Option {
	return func(s *Service) { s.evaluator = e }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNetPricer sets how comparison net prices are computed.
func WithNetPricer(p NetPricer) Option {
	return func(s *Service) { s.pricer = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service runs the update loop over a Store and serves queries against it.
type Service struct {
	cfg    Config
	store  *Store
	bus    *bus.Bus
	logger *slog.Logger

	rand      Rand
	evaluator Evaluator
	observer  Observer
	pricer    NetPricer
	now       func() time.Time

	pending *buffer.Queue[Observation]

	// tickMu serializes ticks. publishMu orders price publishes against
	// subscribe replay and is never held while alert handlers run.
	tickMu    sync.Mutex
	publishMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a service over store publishing on b.
func NewService(cfg Config, store *Store, b *bus.Bus, opts ...Option) *Service {
	if store == nil {
		store = NewStore()
	}
	if b == nil {
		b = bus.New()
	}

	s := &Service{
		cfg:     cfg,
		store:   store,
		bus:     b,
		logger:  slog.Default(),
		now:     time.Now,
		pending: buffer.NewQueue[Observation](64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rand == nil {
		s.rand = NewRand(0)
	}
	if s.pricer == nil {
		s.pricer = randomNetPricer{r: s.rand}
	}
	s.logger = s.logger.With("component", "market")
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *Store {
	return s.store
}

// Start begins the periodic update loop.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", s.cfg.TickInterval)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(s.ctx)
	}()

	s.logger.Info("market service started",
		"records", s.store.Len(),
		"interval", s.cfg.TickInterval,
	)
	return nil
}

// Stop halts the update loop and waits for an in-flight tick to finish.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.pending.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("market service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick mutates every record once, publishes the resulting snapshot and then
// evaluates alerts for the mutated records. It returns the snapshot, or nil
// when the store is empty.
//
// Alert and toast handlers triggered by evaluation may call Subscribe.
func (s *Service) Tick() []model.PriceRecord {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	now := s.now()

	observed, inserts := s.takeObservations(now)
	if s.store.Len() == 0 && len(inserts) == 0 {
		return nil
	}

	updated := s.store.apply(func(p model.PriceRecord) model.PriceRecord {
		if obs, ok := observed[p.Key()]; ok {
			return s.applyObservation(p, obs, now)
		}
		return s.perturb(p, now)
	}, inserts)

	s.publishMu.Lock()
	snapshot := s.store.Snapshot()
	s.bus.Publish(bus.PriceUpdate{Records: snapshot, At: now})
	s.publishMu.Unlock()

	if s.evaluator != nil {
		for _, rec := range updated {
			s.evaluate(rec)
		}
	}

	if s.observer != nil {
		s.observer.ObserveTick(time.Since(start), len(snapshot))
	}
	s.logger.Debug("tick complete",
		"records", len(snapshot),
		"observed", len(observed)+len(inserts),
	)
	return snapshot
}

func (s *Service) evaluate(rec model.PriceRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("alert evaluation panicked",
				"commodity", rec.Commodity,
				"market", rec.Market,
				"error", fmt.Sprint(r),
			)
		}
	}()
	s.evaluator.Evaluate(rec)
}

// perturb applies one random-walk step to p.
func (s *Service) perturb(p model.PriceRecord, now time.Time) model.PriceRecord {
	delta := (s.rand.Float64() - 0.5) * 2 * s.cfg.MaxDelta
	p = s.move(p, delta, now)

	walk := int(math.Floor((s.rand.Float64() - 0.5) * float64(s.cfg.VolumeWalk)))
	p.Volume = max(s.cfg.VolumeFloor, p.Volume+walk)
	return p
}

// applyObservation moves p to an observed price instead of a random one.
func (s *Service) applyObservation(p model.PriceRecord, obs Observation, now time.Time) model.PriceRecord {
	p = s.move(p, float64(obs.Price-p.Price), now)
	if obs.Volume > 0 {
		p.Volume = max(s.cfg.VolumeFloor, obs.Volume)
	}
	if obs.Source != "" {
		p.Source = obs.Source
	}
	if obs.Quality != "" {
		p.Quality = obs.Quality
	}
	return p
}

// move sets the derived price fields for a move of delta units.
func (s *Service) move(p model.PriceRecord, delta float64, now time.Time) model.PriceRecord {
	prev := float64(p.Price)
	next := math.Max(float64(s.cfg.PriceFloor), prev+delta)

	var pct float64
	if prev > 0 {
		pct = model.Round2((next - prev) / prev * 100)
	}

	p.Price = int(math.Round(next))
	p.PriceChange = int(math.Round(delta))
	p.PriceChangePercent = pct
	p.Trend = model.ClassifyTrend(delta)
	p.Timestamp = now
	return p
}

// Ingest queues an external observation for the next tick. It returns false
// when the observation is incomplete or the service has stopped.
func (s *Service) Ingest(obs Observation) bool {
	if obs.Commodity == "" || obs.Market == "" || obs.Price <= 0 {
		return false
	}
	return s.pending.Push(obs)
}

// takeObservations drains queued observations. Known keys are returned in
// observed; unknown keys become new records. The last observation per key wins.
func (s *Service) takeObservations(now time.Time) (map[string]Observation, []model.PriceRecord) {
	batch := s.pending.Drain(0)
	if len(batch) == 0 {
		return nil, nil
	}

	observed := make(map[string]Observation, len(batch))
	fresh := make(map[string]Observation)
	var freshOrder []string

	for _, obs := range batch {
		key := obs.Key()
		if _, known := s.store.Get(key); known {
			observed[key] = obs
			continue
		}
		if _, seen := fresh[key]; !seen {
			freshOrder = append(freshOrder, key)
		}
		fresh[key] = obs
	}

	inserts := make([]model.PriceRecord, 0, len(freshOrder))
	for _, key := range freshOrder {
		inserts = append(inserts, s.newRecord(fresh[key], now))
	}
	return observed, inserts
}

func (s *Service) newRecord(obs Observation, now time.Time) model.PriceRecord {
	rec := model.PriceRecord{
		ID:        model.NewID(),
		Commodity: obs.Commodity,
		Variety:   obs.Variety,
		Market:    obs.Market,
		State:     obs.State,
		District:  obs.District,
		Price:     max(s.cfg.PriceFloor, obs.Price),
		Unit:      obs.Unit,
		Timestamp: now,
		Volume:    max(s.cfg.VolumeFloor, obs.Volume),
		Quality:   obs.Quality,
		Source:    obs.Source,
		Trend:     model.TrendStable,
	}
	if rec.Unit == "" {
		rec.Unit = "Quintal"
	}
	if rec.Quality == "" {
		rec.Quality = model.QualityFAQ
	}
	if rec.Source == "" {
		rec.Source = model.SourceAPMC
	}
	return rec
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// Subscribe registers cb under id and immediately delivers the current
// snapshot to it. Re-subscribing an id replaces its callback. The replay is
// guaranteed to arrive before any tick-driven delivery.
//
// Price callbacks run on the tick goroutine and must not call Subscribe or
// Tick. Alert and toast callbacks may call Subscribe.
func (s *Service) Subscribe(id string, cb func([]model.PriceRecord)) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	handler := func(ev bus.Event) {
		if u, ok := ev.(bus.PriceUpdate); ok {
			cb(u.Records)
		}
	}
	s.bus.Subscribe(bus.KindPriceUpdate, id, handler)
	s.bus.Deliver(bus.KindPriceUpdate, id, handler, bus.PriceUpdate{
		Records: s.store.Snapshot(),
		At:      s.now(),
	})

	s.reportSubscribers()
}

// Unsubscribe removes the price subscriber registered under id.
func (s *Service) Unsubscribe(id string) {
	s.bus.Unsubscribe(bus.KindPriceUpdate, id)
	s.reportSubscribers()
}

// SubscribeToAlerts registers cb for every raised MarketAlert. Callbacks run
// on the tick goroutine after the snapshot is published; they may call
// Subscribe but not Tick.
func (s *Service) SubscribeToAlerts(id string, cb func(model.MarketAlert)) {
	bus.OnAlert(s.bus, id, cb)
}

// UnsubscribeFromAlerts removes the alert subscriber registered under id.
func (s *Service) UnsubscribeFromAlerts(id string) {
	s.bus.Unsubscribe(bus.KindAlertRaised, id)
}

func (s *Service) reportSubscribers() {
	if s.observer != nil {
		s.observer.SetSubscribers(s.bus.Count(bus.KindPriceUpdate))
	}
}
