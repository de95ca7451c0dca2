package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gramseva/marketfeed/internal/buffer"
	"github.com/gramseva/marketfeed/internal/bus"
	"github.com/gramseva/marketfeed/internal/model"
)

const (
	// DefaultToastDuration applies when a toast does not set one.
	DefaultToastDuration = 5 * time.Second
	// Persist keeps a toast until it is dismissed explicitly.
	Persist time.Duration = -1
	// DesktopTimeout is how long a desktop notification stays open.
	DesktopTimeout = 5 * time.Second
)

// timer is the subset of *time.Timer the service needs.
type timer interface {
	Stop() bool
}

// Recorder counts shown toasts.
type Recorder interface {
	RecordToast(toastType string)
}

// Option configures a Service.
type Option func(*Service)

// WithDesktop sets the desktop notification backend.
func WithDesktop(d Desktop) Option {
	return func(s *Service) { s.desktop = d }
}

// WithPlayer sets the sound output.
func WithPlayer(p Player) Option {
	return func(s *Service) { s.player = p }
}

// WithTone overrides the notification tone.
func WithTone(t Tone) Option {
	return func(s *Service) { s.tone = t }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithHistory sets how many shown toasts are retained.
func WithHistory(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.history = buffer.NewRing[model.ToastMessage](n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service renders domain events as toasts and desktop notifications.
type Service struct {
	store    ConfigStore
	bus      *bus.Bus
	desktop  Desktop
	player   Player
	recorder Recorder
	tone     Tone
	logger   *slog.Logger

	afterFunc func(time.Duration, func()) timer

	mu         sync.RWMutex
	cfg        Config
	permission Permission
	active     map[string]activeToast
	history    *buffer.Ring[model.ToastMessage]

	permissionOnce sync.Once
	wav            []byte
	wavOnce        sync.Once
	sounds         sync.WaitGroup
}

type activeToast struct {
	toast model.ToastMessage
	timer timer
}

// NewService creates a notification service with the default config. Start
// loads the persisted config.
func NewService(store ConfigStore, b *bus.Bus, opts ...Option) *Service {
	if store == nil {
		store = &MemoryStore{}
	}
	if b == nil {
		b = bus.New()
	}

	s := &Service{
		store:      store,
		bus:        b,
		tone:       DefaultTone(),
		logger:     slog.Default(),
		cfg:        DefaultConfig(),
		permission: PermissionDefault,
		active:     make(map[string]activeToast),
		history:    buffer.NewRing[model.ToastMessage](100),
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "notify")
	return s
}

// Start reloads the persisted config and requests desktop permission. A
// failed load keeps the defaults.
func (s *Service) Start(ctx context.Context) error {
	cfg, ok, err := s.store.Load(ctx)
	switch {
	case err != nil:
		s.logger.Warn("failed to load notification config, using defaults", "error", err)
	case ok:
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()
	}

	s.requestPermission(ctx)

	s.logger.Info("notification service started",
		"enabled", s.GetConfig().Enabled,
		"permission", s.Permission(),
	)
	return nil
}

// Stop cancels pending auto-dismiss timers and waits for sounds to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, a := range s.active {
		if a.timer != nil {
			a.timer.Stop()
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sounds.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("notification service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) requestPermission(ctx context.Context) {
	s.permissionOnce.Do(func() {
		if s.desktop == nil {
			return
		}
		p := s.desktop.RequestPermission(ctx)
		s.mu.Lock()
		s.permission = p
		s.mu.Unlock()
		if p != PermissionGranted {
			s.logger.Debug("desktop notifications unavailable", "permission", p)
		}
	})
}

// Permission returns the desktop permission state.
func (s *Service) Permission() Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permission
}

// CanShowNotifications reports whether desktop notifications are permitted.
func (s *Service) CanShowNotifications() bool {
	return s.desktop != nil && s.Permission() == PermissionGranted
}

// GetConfig returns a copy of the current config.
func (s *Service) GetConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SaveConfig replaces the config and persists it. The new config is in
// effect even when persisting fails.
func (s *Service) SaveConfig(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	if err := s.store.Save(ctx, cfg); err != nil {
		s.logger.Error("failed to persist notification config", "error", err)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Toasts
// -----------------------------------------------------------------------------

// ShowToast assigns an id, applies the default duration, publishes the toast
// to every toast subscriber and plays the notification tone. It returns the
// toast id.
func (s *Service) ShowToast(t model.ToastMessage) string {
	t.ID = model.NewID()
	switch {
	case t.Duration == 0:
		t.Duration = DefaultToastDuration
	case t.Duration < 0:
		t.Duration = 0
	}

	s.mu.Lock()
	entry := activeToast{toast: t}
	if t.Duration > 0 {
		id := t.ID
		entry.timer = s.afterFunc(t.Duration, func() { s.Dismiss(id) })
	}
	s.active[t.ID] = entry
	s.mu.Unlock()
	s.history.Push(t)

	if s.recorder != nil {
		s.recorder.RecordToast(string(t.Type))
	}

	s.bus.Publish(bus.ToastRequested{Toast: t})
	s.playSound()

	return t.ID
}

// Dismiss removes an active toast and tells displays to drop it.
func (s *Service) Dismiss(id string) bool {
	s.mu.Lock()
	a, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	s.bus.Publish(bus.ToastDismissed{ID: id})
	return true
}

// ClearAll dismisses every active toast and returns how many were removed.
func (s *Service) ClearAll() int {
	s.mu.RLock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if s.Dismiss(id) {
			n++
		}
	}
	return n
}

// ActiveToasts returns the toasts not yet dismissed.
func (s *Service) ActiveToasts() []model.ToastMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ToastMessage, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, a.toast)
	}
	return out
}

// History returns recently shown toasts, oldest first.
func (s *Service) History() []model.ToastMessage {
	return s.history.Items()
}

// SubscribeToToasts registers cb for every shown toast.
func (s *Service) SubscribeToToasts(id string, cb func(model.ToastMessage)) {
	bus.OnToast(s.bus, id, cb)
}

// UnsubscribeFromToasts removes the toast subscriber registered under id.
func (s *Service) UnsubscribeFromToasts(id string) {
	s.bus.Unsubscribe(bus.KindToastRequested, id)
}

func (s *Service) playSound() {
	if !s.GetConfig().Sound || s.player == nil {
		return
	}

	s.wavOnce.Do(func() { s.wav = s.tone.WAV() })

	s.sounds.Add(1)
	go func() {
		defer s.sounds.Done()
		if err := s.player.Play(s.wav); err != nil {
			s.logger.Warn("could not play notification sound", "error", err)
		}
	}()
}

// -----------------------------------------------------------------------------
// Desktop notifications
// -----------------------------------------------------------------------------

// ShowDesktopNotification displays a system notification when notifications
// and desktop delivery are enabled and permission was granted. It returns the
// notification id and whether it was shown. The notification closes itself
// after DesktopTimeout.
func (s *Service) ShowDesktopNotification(title, message, icon string) (string, bool) {
	cfg := s.GetConfig()
	if !cfg.Enabled || !cfg.Desktop || !s.CanShowNotifications() {
		return "", false
	}

	if icon == "" {
		icon = DefaultIcon
	}
	n := DesktopNotification{
		ID:     model.NewID(),
		Title:  title,
		Body:   message,
		Icon:   icon,
		Tag:    "market-alert",
		Silent: !cfg.Sound,
	}

	s.desktop.Show(n)
	s.afterFunc(DesktopTimeout, func() { s.desktop.Close(n.ID) })
	return n.ID, true
}
