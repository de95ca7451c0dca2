package news

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/gramseva/marketfeed/internal/notify"
)

type newsItem struct {
	title, msg string
	importance notify.Importance
}

type fakeHandler struct {
	mu     sync.Mutex
	news   []newsItem
	status []bool
}

func (h *fakeHandler) HandleMarketNews(title, msg string, importance notify.Importance) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.news = append(h.news, newsItem{title, msg, importance})
}

func (h *fakeHandler) HandleMarketStatus(open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = append(h.status, open)
}

func (h *fakeHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.news), len(h.status)
}

type fakeNotifier struct {
	ch        chan *pq.Notification
	listenErr error
	channel   string
	closed    bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan *pq.Notification, 8)}
}

func (f *fakeNotifier) Listen(channel string) error {
	f.channel = channel
	return f.listenErr
}

func (f *fakeNotifier) NotificationChannel() <-chan *pq.Notification { return f.ch }
func (f *fakeNotifier) Ping() error                                   { return nil }
func (f *fakeNotifier) Close() error {
	f.closed = true
	return nil
}

func newTestListener(h Handler, n *fakeNotifier) *Listener {
	l := New(Config{Channel: "market_news"}, h, nil)
	l.dial = func(Config, pq.EventCallbackType) notifier { return n }
	return l
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantNews   int
		wantStatus int
		wantErr    bool
	}{
		{"news", `{"kind":"news","title":"MSP revised","message":"Wheat MSP up","importance":"high"}`, 1, 0, false},
		{"news without importance", `{"kind":"news","title":"Rain forecast"}`, 1, 0, false},
		{"market open", `{"kind":"market_status","open":true}`, 0, 1, false},
		{"market closed", `{"kind":"market_status","open":false}`, 0, 1, false},
		{"status without open", `{"kind":"market_status"}`, 0, 0, true},
		{"news without title", `{"kind":"news","message":"x"}`, 0, 0, true},
		{"unknown kind", `{"kind":"weather"}`, 0, 0, true},
		{"malformed", `{not json`, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandler{}
			l := New(Config{}, h, nil)

			err := l.Dispatch([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			news, status := h.counts()
			if news != tt.wantNews || status != tt.wantStatus {
				t.Errorf("news = %d, status = %d, want %d and %d", news, status, tt.wantNews, tt.wantStatus)
			}
		})
	}
}

func TestDispatch_Fields(t *testing.T) {
	h := &fakeHandler{}
	l := New(Config{}, h, nil)

	l.Dispatch([]byte(`{"kind":"news","title":"MSP revised","message":"Wheat MSP up","importance":"high"}`))
	l.Dispatch([]byte(`{"kind":"market_status","open":false}`))

	if got := h.news[0]; got.title != "MSP revised" || got.msg != "Wheat MSP up" || got.importance != notify.ImportanceHigh {
		t.Errorf("news = %+v", got)
	}
	if h.status[0] {
		t.Error("status should be closed")
	}

	err := l.Dispatch([]byte(`{"kind":"weather"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind", err)
	}
}

func TestListener_DeliversNotifications(t *testing.T) {
	h := &fakeHandler{}
	n := newFakeNotifier()
	l := newTestListener(h, n)

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if n.channel != "market_news" {
		t.Errorf("listening on %q", n.channel)
	}

	n.ch <- nil // reconnect marker
	n.ch <- &pq.Notification{Channel: "market_news", Extra: `garbage`}
	n.ch <- &pq.Notification{Channel: "market_news", Extra: `{"kind":"market_status","open":true}`}
	n.ch <- &pq.Notification{Channel: "market_news", Extra: `{"kind":"news","title":"Mandi holiday"}`}

	deadline := time.Now().Add(2 * time.Second)
	for {
		news, status := h.counts()
		if news == 1 && status == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("news = %d, status = %d, want 1 and 1", news, status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !n.closed {
		t.Error("connection not closed on Stop")
	}
}

func TestListener_ListenFailure(t *testing.T) {
	n := newFakeNotifier()
	n.listenErr = errors.New("connection refused")
	l := newTestListener(&fakeHandler{}, n)

	if err := l.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !n.closed {
		t.Error("connection not closed after failed LISTEN")
	}
}
