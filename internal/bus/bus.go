// Package bus implements the in-process event bus that fans market events out
// to registered handlers.
//
// Every consumer registers one handler per event kind under a caller-chosen
// id. Re-registering an id replaces the previous handler. Handlers run
// synchronously on the publishing goroutine; a handler that panics is logged
// and skipped without affecting the others.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gramseva/marketfeed/internal/model"
)

// Kind identifies an event variant.
type Kind string

const (
	KindPriceUpdate    Kind = "price_update"
	KindAlertRaised    Kind = "alert_raised"
	KindToastRequested Kind = "toast_requested"
	KindToastDismissed Kind = "toast_dismissed"
)

// Event is one of PriceUpdate, AlertRaised, ToastRequested or ToastDismissed.
type Event interface {
	Kind() Kind
}

// PriceUpdate carries the full snapshot after a tick, newest first.
type PriceUpdate struct {
	Records []model.PriceRecord
	At      time.Time
}

// AlertRaised carries a newly derived market alert.
type AlertRaised struct {
	Alert model.MarketAlert
}

// ToastRequested carries a toast to display.
type ToastRequested struct {
	Toast model.ToastMessage
}

// ToastDismissed tells displays to remove a toast.
type ToastDismissed struct {
	ID string
}

func (PriceUpdate) Kind() Kind    { return KindPriceUpdate }
func (AlertRaised) Kind() Kind    { return KindAlertRaised }
func (ToastRequested) Kind() Kind { return KindToastRequested }
func (ToastDismissed) Kind() Kind { return KindToastDismissed }

// Handler receives events of the kind it was registered for.
type Handler func(Event)

// PanicHook is called after a handler panic has been recovered.
type PanicHook func(kind Kind, id string)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithPanicHook sets a hook invoked when a handler panics.
func WithPanicHook(hook PanicHook) Option {
	return func(b *Bus) {
		b.onPanic = hook
	}
}

// Bus is a registry of handlers keyed by event kind and subscriber id.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind]map[string]Handler

	logger  *slog.Logger
	onPanic PanicHook
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[Kind]map[string]Handler),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for kind under id, replacing any previous handler.
func (b *Bus) Subscribe(kind Kind, id string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.handlers[kind]
	if !ok {
		subs = make(map[string]Handler)
		b.handlers[kind] = subs
	}
	subs[id] = h
}

// Unsubscribe removes the handler for kind registered under id.
func (b *Bus) Unsubscribe(kind Kind, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.handlers[kind]; ok {
		delete(subs, id)
	}
}

// Subscribed reports whether id has a handler for kind.
func (b *Bus) Subscribed(kind Kind, id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.handlers[kind][id]
	return ok
}

// Count returns the number of handlers registered for kind.
func (b *Bus) Count(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

// Publish delivers ev to every handler registered for its kind and returns
// how many handlers completed without panicking.
func (b *Bus) Publish(ev Event) int {
	kind := ev.Kind()

	b.mu.RLock()
	targets := make(map[string]Handler, len(b.handlers[kind]))
	for id, h := range b.handlers[kind] {
		targets[id] = h
	}
	b.mu.RUnlock()

	delivered := 0
	for id, h := range targets {
		if b.deliver(kind, id, h, ev) {
			delivered++
		}
	}
	return delivered
}

// Deliver invokes a single handler with the same isolation as Publish.
// Used for replay-on-subscribe.
func (b *Bus) Deliver(kind Kind, id string, h Handler, ev Event) bool {
	return b.deliver(kind, id, h, ev)
}

func (b *Bus) deliver(kind Kind, id string, h Handler, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				"kind", kind,
				"subscriber", id,
				"error", fmt.Sprint(r),
			)
			if b.onPanic != nil {
				b.onPanic(kind, id)
			}
			ok = false
		}
	}()

	h(ev)
	return true
}
