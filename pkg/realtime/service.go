package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/blicence/notifysync/pkg/async"
	"github.com/blicence/notifysync/pkg/broadcast"
	"github.com/blicence/notifysync/pkg/connection"
	"github.com/blicence/notifysync/pkg/logger"
	"github.com/blicence/notifysync/pkg/metrics"
	"github.com/blicence/notifysync/pkg/notifications"
	"github.com/blicence/notifysync/pkg/storage"
)

// Connection is the part of connection.Manager the Service depends on.
type Connection interface {
	Connect(ctx context.Context, identity string)
	Disconnect()
	Send(msg connection.Message) error
	Subscribe(t connection.EventType, fn func(connection.Message)) (unsubscribe func())
	OnStatus(fn func(connection.Status)) (unsubscribe func())
	Status() connection.Status
	Restore(ctx context.Context, kv storage.KV) bool
}

// Snapshot is a copy of the state shown to the user.
type Snapshot struct {
	Notifications []notifications.Notification `json:"notifications"`
	UnreadCount   int                          `json:"unreadCount"`
	Config        notifications.Config         `json:"config"`
	Connection    connection.Status            `json:"connectionStatus"`
	Initialized   bool                         `json:"initialized"`
}

type contextKey string

// ContextKeyUserID holds the session user id on the contexts the Service
// passes down while initializing and handling inbound events.
const ContextKeyUserID contextKey = "user_id"

type flusher interface {
	Flush(ctx context.Context) error
}

// Service wires the connection to the notification engine and store, and
// exposes the commands and queries a user interface needs. It is the only
// component that knows about all three.
type Service struct {
	conn        Connection
	kv          storage.KV
	logger      *slog.Logger
	metrics     *metrics.Collector
	presenter   notifications.Presenter
	policy      *notifications.Policy
	persister   storage.Persister
	ownedWriter *storage.Writer
	capacity    int
	watchBuffer int

	store    *notifications.Store
	engine   *notifications.Engine
	watchers *broadcast.MemoryBroadcaster[Snapshot]

	mu          sync.Mutex
	cfg         notifications.Config
	eventCtx    context.Context
	initialized bool
	closed      bool
	unsubscribe []func()

	// publishMu keeps snapshot construction and broadcast in one step so
	// watchers never see an older snapshot after a newer one.
	publishMu sync.Mutex
}

// New creates a Service. Nothing is loaded or connected until Initialize.
func New(conn Connection, kv storage.KV, opts ...Option) *Service {
	s := &Service{
		conn:        conn,
		kv:          kv,
		logger:      slog.Default(),
		capacity:    notifications.DefaultCapacity,
		watchBuffer: 16,
		cfg:         notifications.DefaultConfig(),
		eventCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("realtime"))

	if s.persister == nil {
		s.ownedWriter = storage.NewWriter(kv,
			storage.WithWriterLogger(s.logger),
			storage.WithErrorHook(func(key string, _ error) { s.metrics.PersistFailed(key) }),
		)
		s.persister = s.ownedWriter
	}

	s.store = notifications.NewStore(
		notifications.WithCapacity(s.capacity),
		notifications.WithStorePersister(s.persister),
		notifications.WithStoreLogger(s.logger),
	)
	s.engine = notifications.NewEngine(s.store,
		notifications.WithPolicy(s.policy),
		notifications.WithPresenter(s.presenter),
		notifications.WithEngineLogger(s.logger),
		notifications.WithEngineMetrics(s.metrics),
	)
	s.watchers = broadcast.NewMemoryBroadcaster[Snapshot](s.watchBuffer)
	return s
}

// Initialize loads the persisted config, history and connection status
// concurrently, asks for presentation permission, subscribes to every event
// type and connects as userID. Calls after the first successful one are
// no-ops. A persisted value that cannot be read is logged and replaced by
// its default.
func (s *Service) Initialize(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.mu.Unlock()

	ctx = context.WithValue(ctx, ContextKeyUserID, userID)

	cfgF := async.Go(ctx, func(ctx context.Context) (notifications.Config, error) {
		return notifications.LoadConfig(ctx, s.kv)
	})
	historyF := async.Go(ctx, func(ctx context.Context) (int, error) {
		return s.store.Load(ctx, s.kv), nil
	})
	statusF := async.Go(ctx, func(ctx context.Context) (bool, error) {
		return s.conn.Restore(ctx, s.kv), nil
	})
	if err := async.All(ctx, cfgF, historyF, statusF); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.mu.Lock()
			s.initialized = false
			s.mu.Unlock()
			return ctxErr
		}
		s.logger.WarnContext(ctx, "persisted state partially unreadable, using defaults", logger.Error(err))
	}

	cfg, _ := cfgF.Await(ctx)
	loaded, _ := historyF.Await(ctx)
	s.logger.DebugContext(ctx, "state restored", slog.Int("notifications", loaded))

	s.engine.RequestPermission(ctx)

	s.mu.Lock()
	s.cfg = cfg
	s.eventCtx = context.WithValue(context.Background(), ContextKeyUserID, userID)
	s.mu.Unlock()

	unsubs := make([]func(), 0, len(connection.EventTypes)+1)
	for _, t := range connection.EventTypes {
		unsubs = append(unsubs, s.conn.Subscribe(t, s.handleEvent))
	}
	s.mu.Lock()
	s.unsubscribe = unsubs
	s.mu.Unlock()

	// OnStatus replays the current status, which publishes the first snapshot.
	statusUnsub := s.conn.OnStatus(s.handleStatus)
	s.mu.Lock()
	s.unsubscribe = append(s.unsubscribe, statusUnsub)
	s.mu.Unlock()

	s.metrics.SetUnread(s.store.UnreadCount())
	s.logger.Info("notification sync initialized", logger.UserID(userID))

	s.conn.Connect(ctx, userID)
	return nil
}

func (s *Service) handleEvent(msg connection.Message) {
	s.mu.Lock()
	ctx, cfg := s.eventCtx, s.cfg
	s.mu.Unlock()

	_, created, err := s.engine.Process(ctx, msg, cfg)
	if err != nil {
		s.logger.WarnContext(ctx, "event discarded", logger.EventType(string(msg.Type)), logger.Error(err))
		return
	}
	if created {
		s.publish()
	}
}

func (s *Service) handleStatus(connection.Status) {
	s.publish()
}

// RefreshHistory reloads the history from storage after pending writes have
// been flushed, and returns the number of loaded notifications.
func (s *Service) RefreshHistory(ctx context.Context) int {
	if f, ok := s.persister.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			s.logger.WarnContext(ctx, "flush before refresh failed", logger.Error(err))
		}
	}
	n := s.store.Load(ctx, s.kv)
	s.afterStoreChange()
	return n
}

// MarkRead marks one notification read. It reports whether anything changed.
func (s *Service) MarkRead(id string) bool {
	changed := s.store.MarkRead(id)
	if changed {
		s.afterStoreChange()
	}
	return changed
}

// MarkAllRead marks every notification read and returns how many changed.
func (s *Service) MarkAllRead() int {
	n := s.store.MarkAllRead()
	if n > 0 {
		s.afterStoreChange()
	}
	return n
}

// ClearHistory removes every notification.
func (s *Service) ClearHistory() {
	s.store.Clear()
	s.afterStoreChange()
}

// UpdateConfig applies p, persists the result and returns it.
func (s *Service) UpdateConfig(p notifications.Patch) notifications.Config {
	s.mu.Lock()
	s.cfg = s.cfg.Apply(p)
	cfg := s.cfg
	s.persister.Put(notifications.ConfigKey, cfg)
	s.mu.Unlock()

	s.publish()
	return cfg
}

// SendTestNotification creates the sample notification for cat, subject to
// the same gating as any other notification.
func (s *Service) SendTestNotification(ctx context.Context, cat notifications.Category) (notifications.Notification, bool, error) {
	req, err := s.engine.Policy().Catalog().TestRequest(cat)
	if err != nil {
		return notifications.Notification{}, false, err
	}
	return s.Notify(ctx, req)
}

// Notify creates a local notification.
func (s *Service) Notify(ctx context.Context, req notifications.Request) (notifications.Notification, bool, error) {
	n, created, err := s.engine.Notify(ctx, req, s.Config())
	if created {
		s.publish()
	}
	return n, created, err
}

// Send writes msg to the backend. It fails with connection.ErrNotConnected
// while offline; nothing is queued.
func (s *Service) Send(msg connection.Message) error {
	return s.conn.Send(msg)
}

func (s *Service) Notifications(f notifications.Filter) []notifications.Notification {
	return s.store.Query(f)
}

func (s *Service) UnreadCount() int {
	return s.store.UnreadCount()
}

func (s *Service) ConnectionStatus() connection.Status {
	return s.conn.Status()
}

func (s *Service) Config() notifications.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg, initialized := s.cfg, s.initialized
	s.mu.Unlock()

	items, unread := s.store.View()
	return Snapshot{
		Notifications: items,
		UnreadCount:   unread,
		Config:        cfg,
		Connection:    s.conn.Status(),
		Initialized:   initialized,
	}
}

// Watch streams a Snapshot after every change until ctx is done or the
// Service shuts down. A watcher that falls behind loses its oldest pending
// snapshots; the newest is always delivered.
func (s *Service) Watch(ctx context.Context) broadcast.Subscriber[Snapshot] {
	return s.watchers.Subscribe(ctx)
}

// Shutdown unsubscribes from the connection, disconnects, closes watchers
// and flushes pending writes. It is safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unsubs := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
	s.conn.Disconnect()

	var errs []error
	if err := s.watchers.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.ownedWriter != nil {
		if err := s.ownedWriter.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	} else if f, ok := s.persister.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) afterStoreChange() {
	s.metrics.SetUnread(s.store.UnreadCount())
	s.publish()
}

func (s *Service) publish() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.watchers.Broadcast(broadcast.Message[Snapshot]{Data: s.Snapshot()})
}
