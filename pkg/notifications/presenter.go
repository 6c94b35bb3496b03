package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/blicence/notifysync/pkg/logger"
)

// Alert is what a Presenter shows to the user.
type Alert struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Category Category       `json:"type"`
	Priority Priority       `json:"priority"`
	Channel  string         `json:"channelId"`
	Sound    bool           `json:"sound"`
	Vibrate  bool           `json:"vibrate"`
	Data     map[string]any `json:"data,omitempty"`
}

func newAlert(n Notification, cfg Config) Alert {
	return Alert{
		ID:       n.ID,
		Title:    n.Title,
		Message:  n.Message,
		Category: n.Type,
		Priority: n.Priority,
		Channel:  n.Type.Channel(),
		Sound:    cfg.SoundEnabled,
		Vibrate:  cfg.VibrationEnabled,
		Data:     n.Data,
	}
}

// Presenter shows alerts to the user, e.g. as system notifications.
type Presenter interface {
	Present(ctx context.Context, a Alert) error
}

// PermissionRequester is implemented by presenters that need the user's
// consent before presenting.
type PermissionRequester interface {
	RequestPermission(ctx context.Context) (bool, error)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, a Alert) error

func (f PresenterFunc) Present(ctx context.Context, a Alert) error { return f(ctx, a) }

// NoOpPresenter presents nothing.
type NoOpPresenter struct{}

func (NoOpPresenter) Present(context.Context, Alert) error { return nil }

// MultiPresenter presents through several presenters, best effort.
type MultiPresenter struct {
	presenters []Presenter
	logger     *slog.Logger
}

// MultiPresenterOption configures a MultiPresenter.
type MultiPresenterOption func(*MultiPresenter)

func WithMultiPresenterLogger(l *slog.Logger) MultiPresenterOption {
	return func(m *MultiPresenter) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewMultiPresenter(presenters []Presenter, opts ...MultiPresenterOption) *MultiPresenter {
	m := &MultiPresenter{presenters: presenters, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Present calls every presenter. Failures are logged and joined into the
// returned error; they never stop the remaining presenters.
func (m *MultiPresenter) Present(ctx context.Context, a Alert) error {
	var errs []error
	for i, p := range m.presenters {
		if err := p.Present(ctx, a); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "presenter failed",
				logger.NotificationID(a.ID),
				slog.Int("presenter_index", i),
				logger.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequestPermission asks every presenter that needs consent. Permission is
// granted unless one of them denies it or fails.
func (m *MultiPresenter) RequestPermission(ctx context.Context) (bool, error) {
	granted := true
	var errs []error
	for _, p := range m.presenters {
		pr, ok := p.(PermissionRequester)
		if !ok {
			continue
		}
		allowed, err := pr.RequestPermission(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		granted = granted && allowed && err == nil
	}
	return granted, errors.Join(errs...)
}

// ThrottledPresenter drops alerts above a rate limit with ErrThrottled.
type ThrottledPresenter struct {
	next    Presenter
	limiter *rate.Limiter
}

// NewThrottledPresenter allows limit alerts per second with the given burst.
func NewThrottledPresenter(next Presenter, limit rate.Limit, burst int) *ThrottledPresenter {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledPresenter{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (t *ThrottledPresenter) Present(ctx context.Context, a Alert) error {
	if !t.limiter.Allow() {
		return ErrThrottled
	}
	return t.next.Present(ctx, a)
}

// RequestPermission forwards to the wrapped presenter when it asks for consent.
func (t *ThrottledPresenter) RequestPermission(ctx context.Context) (bool, error) {
	if pr, ok := t.next.(PermissionRequester); ok {
		return pr.RequestPermission(ctx)
	}
	return true, nil
}

// LogPresenter writes alerts to a logger. The host binary uses it in place
// of a platform notification service.
type LogPresenter struct {
	logger *slog.Logger
}

func NewLogPresenter(l *slog.Logger) *LogPresenter {
	if l == nil {
		l = slog.Default()
	}
	return &LogPresenter{logger: l.With(logger.Component("presenter"))}
}

func (p *LogPresenter) Present(ctx context.Context, a Alert) error {
	level := slog.LevelInfo
	if a.Priority == PriorityHigh {
		level = slog.LevelWarn
	}
	p.logger.LogAttrs(ctx, level, a.Title,
		logger.NotificationID(a.ID),
		logger.Category(string(a.Category)),
		slog.String("channel", a.Channel),
		slog.String("priority", string(a.Priority)),
		slog.String("body", a.Message),
		slog.Bool("sound", a.Sound),
		slog.Bool("vibrate", a.Vibrate),
	)
	return nil
}

// JSONPresenter writes each alert as one JSON line, for a platform bridge
// (desktop notifier, companion app) reading the other end of a file or pipe.
type JSONPresenter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONPresenter(w io.Writer) *JSONPresenter {
	return &JSONPresenter{enc: json.NewEncoder(w)}
}

func (p *JSONPresenter) Present(_ context.Context, a Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(a); err != nil {
		return fmt.Errorf("notifications: write alert: %w", err)
	}
	return nil
}
