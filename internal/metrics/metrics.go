package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketfeed"

// Metrics contains all Prometheus metrics for the market feed.
type Metrics struct {
	Ticks           prometheus.Counter
	TickDuration    prometheus.Histogram
	SnapshotRecords prometheus.Gauge
	Subscribers     prometheus.Gauge
	SubscriberPanic *prometheus.CounterVec

	Alerts *prometheus.CounterVec
	Toasts *prometheus.CounterVec

	RelayClients prometheus.Gauge
	RelayFrames  *prometheus.CounterVec
	Reconnects   prometheus.Counter

	PollResults  *prometheus.CounterVec
	WriterRows   *prometheus.CounterVec
	WriterErrors *prometheus.CounterVec
}

// New creates and registers all metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of completed price ticks",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time to mutate, evaluate and publish one tick",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		SnapshotRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_records",
			Help:      "Number of price records in the latest snapshot",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_subscribers",
			Help:      "Number of registered price snapshot subscribers",
		}),
		SubscriberPanic: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_panics_total",
			Help:      "Subscriber callbacks that panicked, by event kind",
		}, []string{"kind"}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Market alerts raised, by type and priority",
		}, []string{"type", "priority"}),
		Toasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toasts_total",
			Help:      "Toasts shown, by type",
		}, []string{"type"}),
		RelayClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_clients",
			Help:      "Connected chat relay clients",
		}),
		RelayFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_frames_total",
			Help:      "Frames relayed, by frame type",
		}, []string{"type"}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_reconnects_total",
			Help:      "Reconnect attempts scheduled by the transport client",
		}),
		PollResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agmarknet_polls_total",
			Help:      "Agmarknet commodity fetches, by result",
		}, []string{"result"}),
		WriterRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_rows_total",
			Help:      "Rows flushed to the database, by table",
		}, []string{"table"}),
		WriterErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_errors_total",
			Help:      "Failed database flushes, by table",
		}, []string{"table"}),
	}
}

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(d time.Duration, records int) {
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
	m.SnapshotRecords.Set(float64(records))
}

// SetSubscribers records the current number of price subscribers.
func (m *Metrics) SetSubscribers(n int) {
	m.Subscribers.Set(float64(n))
}

// RecordSubscriberPanic counts a recovered subscriber panic.
func (m *Metrics) RecordSubscriberPanic(kind string) {
	m.SubscriberPanic.WithLabelValues(kind).Inc()
}

// RecordAlert counts a raised alert.
func (m *Metrics) RecordAlert(alertType, priority string) {
	m.Alerts.WithLabelValues(alertType, priority).Inc()
}

// RecordToast counts a shown toast.
func (m *Metrics) RecordToast(toastType string) {
	m.Toasts.WithLabelValues(toastType).Inc()
}

// SetRelayClients records the connected relay client count.
func (m *Metrics) SetRelayClients(n int) {
	m.RelayClients.Set(float64(n))
}

// RecordRelayFrame counts a relayed frame.
func (m *Metrics) RecordRelayFrame(frameType string) {
	m.RelayFrames.WithLabelValues(frameType).Inc()
}

// RecordReconnect counts a scheduled reconnect.
func (m *Metrics) RecordReconnect() {
	m.Reconnects.Inc()
}

// RecordPoll counts one commodity fetch, result is "ok" or "error".
func (m *Metrics) RecordPoll(result string) {
	m.PollResults.WithLabelValues(result).Inc()
}

// RecordFlush counts rows written to table, or an error when err is non-nil.
func (m *Metrics) RecordFlush(table string, rows int, err error) {
	if err != nil {
		m.WriterErrors.WithLabelValues(table).Inc()
		return
	}
	m.WriterRows.WithLabelValues(table).Add(float64(rows))
}
