package bus

import "github.com/gramseva/marketfeed/internal/model"

// OnPriceUpdate registers a snapshot callback under id.
func OnPriceUpdate(b *Bus, id string, fn func(PriceUpdate)) {
	b.Subscribe(KindPriceUpdate, id, func(ev Event) {
		if u, ok := ev.(PriceUpdate); ok {
			fn(u)
		}
	})
}

// OnAlert registers an alert callback under id.
func OnAlert(b *Bus, id string, fn func(model.MarketAlert)) {
	b.Subscribe(KindAlertRaised, id, func(ev Event) {
		if a, ok := ev.(AlertRaised); ok {
			fn(a.Alert)
		}
	})
}

// OnToast registers a toast callback under id.
func OnToast(b *Bus, id string, fn func(model.ToastMessage)) {
	b.Subscribe(KindToastRequested, id, func(ev Event) {
		if t, ok := ev.(ToastRequested); ok {
			fn(t.Toast)
		}
	})
}

// OnToastDismissed registers a dismissal callback under id.
func OnToastDismissed(b *Bus, id string, fn func(string)) {
	b.Subscribe(KindToastDismissed, id, func(ev Event) {
		if d, ok := ev.(ToastDismissed); ok {
			fn(d.ID)
		}
	})
}
