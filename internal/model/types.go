package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// Quality grades a commodity lot.
type Quality string

const (
	QualityFAQ     Quality = "FAQ"
	QualityGood    Quality = "Good"
	QualityAverage Quality = "Average"
	QualityPoor    Quality = "Poor"
)

// Source classifies where a price was discovered.
type Source string

const (
	SourceAPMC    Source = "APMC"
	SourcePrivate Source = "Private"
	SourceFPO     Source = "FPO"
	SourceDirect  Source = "Direct"
)

// Trend is derived from the absolute price delta of the last tick.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// TrendThreshold is the absolute delta (in price units) beyond which a move
// is classified as rising or falling.
const TrendThreshold = 10

// PriceRecord is the current price of one commodity in one market.
type PriceRecord struct {
	ID                 string    `json:"id"`
	Commodity          string    `json:"commodity"`
	Variety            string    `json:"variety,omitempty"`
	Market             string    `json:"market"`
	State              string    `json:"state"`
	District           string    `json:"district"`
	Price              int       `json:"price"`
	Unit               string    `json:"unit"`
	Timestamp          time.Time `json:"timestamp"`
	PriceChange        int       `json:"priceChange"`
	PriceChangePercent float64   `json:"priceChangePercent"`
	Volume             int       `json:"volume"`
	Quality            Quality   `json:"quality"`
	Source             Source    `json:"source"`
	Trend              Trend     `json:"trend"`
}

// Key returns the composite store key for the record.
func (p PriceRecord) Key() string {
	return RecordKey(p.Commodity, p.Market)
}

// RecordKey builds the store key for a (commodity, market) pair.
func RecordKey(commodity, market string) string {
	return commodity + "-" + market
}

// ClassifyTrend maps a price delta to a Trend.
func ClassifyTrend(delta float64) Trend {
	switch {
	case delta > TrendThreshold:
		return TrendRising
	case delta < -TrendThreshold:
		return TrendFalling
	default:
		return TrendStable
	}
}

// Round2 rounds v to two decimal places (half away from zero).
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

// AlertType identifies the rule that produced a MarketAlert.
type AlertType string

const (
	AlertPriceTarget AlertType = "price_target"
	AlertPriceDrop   AlertType = "price_drop"
	AlertPriceSpike  AlertType = "price_spike"
	AlertVolume      AlertType = "volume_alert"
)

// Priority ranks alerts for display.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Direction is the side of a user price target.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionAbove || d == DirectionBelow
}

// MarketAlert is a derived event about a commodity/market.
type MarketAlert struct {
	ID        string    `json:"id"`
	Commodity string    `json:"commodity"`
	Market    string    `json:"market"`
	AlertType AlertType `json:"alertType"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"isRead"`

	// Set only for price_target descriptors.
	TargetPrice int       `json:"targetPrice,omitempty"`
	Direction   Direction `json:"direction,omitempty"`
}

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// ToastType selects the visual style of a toast.
type ToastType string

const (
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
	ToastWarning ToastType = "warning"
	ToastInfo    ToastType = "info"
)

// ToastAction is a labelled button on a toast.
type ToastAction struct {
	Label  string `json:"label"`
	Action func() `json:"-"`
}

// ToastMessage is an ephemeral user-facing notification.
// When requesting a toast, a zero Duration takes the service default and a
// negative one keeps the toast until it is dismissed. Shown toasts that never
// expire carry a zero Duration, which the browser reads as sticky.
type ToastMessage struct {
	ID       string        `json:"id"`
	Type     ToastType     `json:"type"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"-"`
	Actions  []ToastAction `json:"actions,omitempty"`
}

// DurationMillis returns the duration in milliseconds for the browser wire format.
func (t ToastMessage) DurationMillis() int64 {
	return t.Duration.Milliseconds()
}

// NewID returns a time-ordered unique identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// MarshalJSON encodes the toast with its duration in milliseconds, the unit the
// browser toast container expects.
func (t ToastMessage) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID       string        `json:"id"`
		Type     ToastType     `json:"type"`
		Title    string        `json:"title"`
		Message  string        `json:"message"`
		Duration int64         `json:"duration,omitempty"`
		Actions  []ToastAction `json:"actions,omitempty"`
	}
	return json.Marshal(wire{
		ID:       t.ID,
		Type:     t.Type,
		Title:    t.Title,
		Message:  t.Message,
		Duration: t.DurationMillis(),
		Actions:  t.Actions,
	})
}
