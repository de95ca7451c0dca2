// Package alerts derives market alerts from price mutations and keeps a
// bounded alert history.
package alerts

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gramseva/marketfeed/internal/buffer"
	"github.com/gramseva/marketfeed/internal/bus"
	"github.com/gramseva/marketfeed/internal/model"
)

// AllMarkets is the market name used for user price targets.
const AllMarkets = "All Markets"

var (
	ErrInvalidDirection = errors.New("direction must be above or below")
	ErrInvalidTarget    = errors.New("target price must be positive")
)

// Config holds alert thresholds.
type Config struct {
	SpikePercent    float64 // |change %| above this raises a price_spike
	HighPercent     float64 // |change %| above this makes the spike high priority
	VolumeThreshold int     // volume above this triggers a volume notification
	Retention       int     // alert history capacity
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		SpikePercent:    5,
		HighPercent:     10,
		VolumeThreshold: 800,
		Retention:       500,
	}
}

// Notifier surfaces alert side effects to the user.
type Notifier interface {
	HandlePriceSpike(commodity, market string, changePercent float64, price int)
	HandleVolumeAlert(commodity, market string, volume, threshold int)
}

// Recorder counts raised alerts.
type Recorder interface {
	RecordAlert(alertType, priority string)
}

// Engine evaluates price records against static thresholds.
type Engine struct {
	cfg      Config
	bus      *bus.Bus
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	history *buffer.Ring[model.MarketAlert]
}

// NewEngine creates an alert engine. notifier may be nil.
func NewEngine(cfg Config, b *bus.Bus, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if b == nil {
		b = bus.New()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}

	return &Engine{
		cfg:      cfg,
		bus:      b,
		notifier: notifier,
		logger:   logger.With("component", "alerts"),
		now:      time.Now,
		history:  buffer.NewRing[model.MarketAlert](cfg.Retention),
	}
}

// SetRecorder sets the metrics recorder.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// Evaluate applies the spike rule and then the volume rule to record.
func (e *Engine) Evaluate(record model.PriceRecord) {
	pct := record.PriceChangePercent
	abs := math.Abs(pct)

	if abs > e.cfg.SpikePercent {
		priority := model.PriorityMedium
		if abs > e.cfg.HighPercent {
			priority = model.PriorityHigh
		}

		direction := "increased"
		if pct < 0 {
			direction = "decreased"
		}

		alert := model.MarketAlert{
			ID:        model.NewID(),
			Commodity: record.Commodity,
			Market:    record.Market,
			AlertType: model.AlertPriceSpike,
			Message: fmt.Sprintf("%s price %s by %s%%",
				record.Commodity, direction, decimal.NewFromFloat(abs).String()),
			Priority:  priority,
			Timestamp: e.now(),
		}
		e.raise(alert)

		if e.notifier != nil {
			e.notifier.HandlePriceSpike(record.Commodity, record.Market, pct, record.Price)
		}
	}

	if record.Volume > e.cfg.VolumeThreshold && e.notifier != nil {
		e.notifier.HandleVolumeAlert(record.Commodity, record.Market, record.Volume, e.cfg.VolumeThreshold)
	}
}

func (e *Engine) raise(alert model.MarketAlert) {
	if e.history.Push(alert) {
		e.logger.Debug("alert history full, evicted oldest", "capacity", e.history.Cap())
	}
	if e.recorder != nil {
		e.recorder.RecordAlert(string(alert.AlertType), string(alert.Priority))
	}

	e.logger.Info("alert raised",
		"type", alert.AlertType,
		"commodity", alert.Commodity,
		"market", alert.Market,
		"priority", alert.Priority,
	)
	e.bus.Publish(bus.AlertRaised{Alert: alert})
}

// SetPriceAlert records a standing price target for commodity. The target is
// stored in the alert history but is not evaluated against later ticks.
func (e *Engine) SetPriceAlert(commodity string, targetPrice int, direction model.Direction) (model.MarketAlert, error) {
	if !direction.Valid() {
		return model.MarketAlert{}, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	if targetPrice <= 0 {
		return model.MarketAlert{}, fmt.Errorf("%w: %d", ErrInvalidTarget, targetPrice)
	}

	alert := model.MarketAlert{
		ID:          model.NewID(),
		Commodity:   commodity,
		Market:      AllMarkets,
		AlertType:   model.AlertPriceTarget,
		Message:     fmt.Sprintf("Alert when %s price goes %s ₹%d", commodity, direction, targetPrice),
		Priority:    model.PriorityMedium,
		Timestamp:   e.now(),
		TargetPrice: targetPrice,
		Direction:   direction,
	}
	e.history.Push(alert)

	e.logger.Info("price target set",
		"commodity", commodity,
		"target", targetPrice,
		"direction", direction,
	)
	return alert, nil
}

// Alerts returns the retained alert history, newest first.
func (e *Engine) Alerts() []model.MarketAlert {
	items := e.history.Items()
	slices.Reverse(items)
	return items
}

// Unread returns the number of retained alerts not yet marked read.
func (e *Engine) Unread() int {
	n := 0
	for _, a := range e.history.Items() {
		if !a.IsRead {
			n++
		}
	}
	return n
}

// MarkRead flags the alert with id as read. It reports whether the alert was
// found.
func (e *Engine) MarkRead(id string) bool {
	return e.history.Update(func(a *model.MarketAlert) bool {
		if a.ID != id {
			return false
		}
		a.IsRead = true
		return true
	})
}
