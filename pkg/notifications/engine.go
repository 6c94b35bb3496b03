package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/blicence/notifysync/pkg/connection"
	"github.com/blicence/notifysync/pkg/logger"
	"github.com/blicence/notifysync/pkg/metrics"
)

// Engine applies the Policy to inbound events and local requests, stores the
// resulting notifications and presents them.
type Engine struct {
	policy    *Policy
	store     *Store
	presenter Presenter
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	newID     func() string
	permitted atomic.Bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithPolicy(p *Policy) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

func WithPresenter(p Presenter) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.presenter = p
		}
	}
}

func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithEngineMetrics(c *metrics.Collector) EngineOption {
	return func(e *Engine) { e.metrics = c }
}

// WithEngineClock replaces time.Now, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator, for tests.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an Engine storing into store. Presentation is permitted
// from the start unless the presenter asks for consent, in which case
// RequestPermission must grant it first.
func NewEngine(store *Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		presenter: NoOpPresenter{},
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == nil {
		e.policy = NewPolicy(nil)
	}
	e.logger = e.logger.With(logger.Component("notifications"))
	_, needsConsent := e.presenter.(PermissionRequester)
	e.permitted.Store(!needsConsent)
	return e
}

func (e *Engine) Policy() *Policy { return e.policy }

// Permitted reports whether alerts are presented.
func (e *Engine) Permitted() bool { return e.permitted.Load() }

// RequestPermission asks the presenter for consent. A denial or an error
// disables presentation only; notifications are still stored.
func (e *Engine) RequestPermission(ctx context.Context) bool {
	pr, ok := e.presenter.(PermissionRequester)
	if !ok {
		e.permitted.Store(true)
		return true
	}
	granted, err := pr.RequestPermission(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "permission request failed", logger.Error(err))
		granted = false
	}
	if !granted {
		e.logger.InfoContext(ctx, "notification permission denied, alerts will not be shown")
	}
	e.permitted.Store(granted)
	return granted
}

// Process evaluates an inbound event. It returns the stored notification and
// true when one was created. Gated events return false and no error.
func (e *Engine) Process(ctx context.Context, ev connection.Message, cfg Config) (Notification, bool, error) {
	d, err := e.policy.Decide(ev, cfg)
	if err != nil {
		e.metrics.NotificationSuppressed("invalid")
		return Notification{}, false, err
	}
	if !d.Notify {
		e.suppressed(ctx, d.Reason, string(ev.Type))
		return Notification{}, false, nil
	}
	return e.create(ctx, d.Request, cfg), true, nil
}

// Notify creates a notification from a local request, gated by cfg like
// inbound events. A missing priority defaults to normal.
func (e *Engine) Notify(ctx context.Context, req Request, cfg Config) (Notification, bool, error) {
	if !req.Category.Valid() {
		return Notification{}, false, fmt.Errorf("%w: category %q", ErrInvalidRequest, req.Category)
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Message) == "" {
		return Notification{}, false, fmt.Errorf("%w: empty title and message", ErrInvalidRequest)
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if !req.Priority.Valid() {
		return Notification{}, false, fmt.Errorf("%w: priority %q", ErrInvalidRequest, req.Priority)
	}

	switch {
	case !cfg.Enabled:
		e.suppressed(ctx, ReasonDisabled, string(req.Category))
		return Notification{}, false, nil
	case !cfg.Allows(req.Category):
		e.suppressed(ctx, ReasonCategoryDisabled, string(req.Category))
		return Notification{}, false, nil
	}
	return e.create(ctx, req, cfg), true, nil
}

func (e *Engine) create(ctx context.Context, req Request, cfg Config) Notification {
	n := Notification{
		ID:        e.newID(),
		Title:     req.Title,
		Message:   req.Message,
		Type:      req.Category,
		Data:      req.Data,
		Timestamp: e.now(),
		Priority:  req.Priority,
	}
	if evicted := e.store.Append(n); len(evicted) > 0 {
		e.logger.DebugContext(ctx, "history full, evicted oldest", slog.Int("evicted", len(evicted)))
	}
	e.metrics.NotificationStored(string(n.Type))
	e.metrics.SetUnread(e.store.UnreadCount())

	e.present(ctx, n, cfg)
	return n
}

func (e *Engine) present(ctx context.Context, n Notification, cfg Config) {
	if !e.permitted.Load() {
		e.metrics.Presented("denied")
		return
	}
	err := e.safePresent(ctx, newAlert(n, cfg))
	switch {
	case err == nil:
		e.metrics.Presented("ok")
	case errors.Is(err, ErrThrottled):
		e.metrics.Presented("throttled")
		e.logger.DebugContext(ctx, "alert throttled", logger.NotificationID(n.ID))
	default:
		e.metrics.Presented("error")
		e.logger.WarnContext(ctx, "alert not presented, notification kept",
			logger.NotificationID(n.ID), logger.Error(err))
	}
}

// safePresent turns a presenter panic into an error so the stored
// notification outlives a broken platform presenter.
func (e *Engine) safePresent(ctx context.Context, a Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPresenterPanic, r)
		}
	}()
	return e.presenter.Present(ctx, a)
}

func (e *Engine) suppressed(ctx context.Context, reason, kind string) {
	e.metrics.NotificationSuppressed(reason)
	if reason == ReasonHeartbeat {
		return
	}
	e.logger.DebugContext(ctx, "notification suppressed", logger.Reason(reason), logger.EventType(kind))
}
