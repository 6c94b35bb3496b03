package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/blicence/notifysync/pkg/broadcast"
	"github.com/blicence/notifysync/pkg/logger"
	"github.com/blicence/notifysync/pkg/metrics"
	"github.com/blicence/notifysync/pkg/statemachine"
	"github.com/blicence/notifysync/pkg/storage"
)

// StatusKey is the storage key the last known Status is persisted under.
const StatusKey = "websocket_status"

// AllEvents subscribes to every message regardless of its type.
const AllEvents EventType = "*"

// Manager owns one duplex channel and keeps it alive: it dials, routes
// inbound messages to subscribers, sends heartbeats and reconnects after
// unexpected drops.
//
// Every channel and timer is bound to an epoch. Disconnect and every drop
// advance the epoch, so callbacks from stale channels and timers that fire
// late are ignored.
type Manager struct {
	cfg       Config
	dialer    Dialer
	logger    *slog.Logger
	metrics   *metrics.Collector
	persister storage.Persister
	backoff   BackoffStrategy
	now       func() time.Time

	messages *broadcast.Router[EventType, Message]
	statuses *broadcast.Router[struct{}, statusUpdate]

	mu          sync.Mutex
	lifecycle   *statemachine.Machine[State, trigger]
	status      Status
	epoch       uint64
	identity    string
	channel     Channel
	retry       *time.Timer
	stopBeat    chan struct{}
	lastInbound time.Time

	seq uint64

	// Status delivery is serialized through pending; whichever goroutine
	// finds delivering unset drains the queue without holding a lock while
	// subscribers run.
	deliverMu  sync.Mutex
	pending    []pendingStatus
	queued     uint64
	delivering bool
}

type statusUpdate struct {
	seq uint64
	st  Status
}

type pendingStatus struct {
	update statusUpdate
	to     *statusSubscriber // nil: every subscriber
}

// statusSubscriber drops updates older than the newest one it has seen.
// Its fields are only touched by the draining goroutine.
type statusSubscriber struct {
	fn   func(Status)
	from uint64
	seen bool
	last uint64
}

func (s *statusSubscriber) deliver(u statusUpdate) {
	if u.seq < s.from || (s.seen && u.seq <= s.last) {
		return
	}
	s.seen, s.last = true, u.seq
	s.fn(u.st)
}

// NewManager builds a disconnected Manager.
func NewManager(cfg Config, dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.backoff == nil {
		if m.cfg.ExponentialBackoff {
			m.backoff = DefaultExponentialBackoff(m.cfg.ReconnectInterval)
		} else {
			m.backoff = FixedBackoff{Interval: m.cfg.ReconnectInterval}
		}
	}
	m.logger = m.logger.With(logger.Component("connection"))

	m.messages = broadcast.NewRouter(broadcast.WithPanicHandler[EventType, Message](func(t EventType, rec any) {
		m.logger.Error("message subscriber panicked", logger.EventType(string(t)), slog.Any("panic", rec))
	}))
	m.statuses = broadcast.NewRouter(broadcast.WithPanicHandler[struct{}, statusUpdate](func(_ struct{}, rec any) {
		m.logger.Error("status subscriber panicked", slog.Any("panic", rec))
	}))

	m.lifecycle = newLifecycle(m.cfg.MaxReconnectAttempts, func(from, to State, t trigger) {
		m.logger.Debug("connection state changed",
			slog.String("from", string(from)), logger.State(string(to)), slog.String("trigger", string(t)))
	})
	m.status.State = StateDisconnected
	return m
}

// Connect dials the configured endpoint on behalf of identity. It is a no-op
// while connecting or connected, and it cancels a pending reconnect. Connect
// blocks for the duration of the dial; failures are reported through Status,
// never returned.
func (m *Manager) Connect(ctx context.Context, identity string) {
	m.mu.Lock()
	switch m.lifecycle.Current() {
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return
	}
	m.stopRetryLocked()
	m.identity = identity
	if !m.fireLocked(triggerDial, nil) {
		m.mu.Unlock()
		return
	}
	m.epoch++
	epoch := m.epoch
	seq, st := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(seq, st)
	m.dial(ctx, epoch)
}

// Disconnect closes the channel on purpose: timers are cancelled, no
// reconnect follows and the attempt counter is reset.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.epoch++
	m.stopRetryLocked()
	m.stopHeartbeatLocked()
	ch := m.channel
	m.channel = nil
	m.fireLocked(triggerDisconnect, nil)
	m.status.ReconnectAttempts = 0
	seq, st := m.snapshotLocked()
	m.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			m.logger.Debug("close channel", logger.Error(err))
		}
	}
	m.metrics.Disconnected()
	m.emit(seq, st)
	m.logger.Info("disconnected")
}

// Send writes msg immediately. While not connected the message is discarded
// and ErrNotConnected returned; there is no outbound queue.
func (m *Manager) Send(msg Message) error {
	m.mu.Lock()
	ch := m.channel
	connected := m.lifecycle.Current() == StateConnected
	m.mu.Unlock()

	if !connected || ch == nil {
		m.logger.Warn("not connected, message not sent", logger.EventType(string(msg.Type)))
		return ErrNotConnected
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("connection: encode message: %w", err)
	}
	if err := ch.Send(b); err != nil {
		return fmt.Errorf("connection: send: %w", err)
	}
	return nil
}

// Subscribe registers fn for messages of type t, or all messages when t is
// AllEvents. Handlers run synchronously on the receiving goroutine, type
// subscribers before AllEvents subscribers, each in registration order.
func (m *Manager) Subscribe(t EventType, fn func(Message)) (unsubscribe func()) {
	if t == AllEvents {
		return m.messages.SubscribeAll(fn)
	}
	return m.messages.Subscribe(t, fn)
}

// SubscribeAll is Subscribe(AllEvents, fn).
func (m *Manager) SubscribeAll(fn func(Message)) (unsubscribe func()) {
	return m.messages.SubscribeAll(fn)
}

// OnStatus registers fn for status changes and replays the current status to
// it. The replay and later changes share one ordered delivery queue, so fn
// never sees an older status after a newer one. The replay runs before
// OnStatus returns unless another goroutine is delivering at that moment.
func (m *Manager) OnStatus(fn func(Status)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	sub := &statusSubscriber{fn: fn, from: m.seq}
	unsubscribe = m.statuses.SubscribeAll(sub.deliver)
	replay := statusUpdate{seq: m.seq, st: m.statusLocked()}
	m.mu.Unlock()

	m.deliverMu.Lock()
	m.pending = append(m.pending, pendingStatus{update: replay, to: sub})
	m.drainLocked()
	return unsubscribe
}

// Status returns a copy of the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Restore loads the last persisted status. Attempt count, last connection
// time and last error are kept; the connection itself is never assumed open.
// Missing or unreadable data leaves the status untouched.
func (m *Manager) Restore(ctx context.Context, kv storage.KV) bool {
	var saved Status
	if err := storage.GetJSON(ctx, kv, StatusKey, &saved); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.WarnContext(ctx, "restore status failed", logger.StorageKey(StatusKey), logger.Error(err))
		}
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lifecycle.Current() != StateDisconnected {
		return false
	}
	m.status.ReconnectAttempts = saved.ReconnectAttempts
	m.status.LastConnectedAt = saved.LastConnectedAt
	m.status.LastError = saved.LastError
	return true
}

func (m *Manager) dial(ctx context.Context, epoch uint64) {
	m.metrics.ConnectAttempt()
	target := m.endpoint()

	dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	ch, err := m.dialer.Dial(dctx, target, &channelHandler{m: m, epoch: epoch})
	cancel()

	m.mu.Lock()
	if epoch != m.epoch {
		// Disconnected or dropped while dialing.
		m.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		return
	}
	if err != nil {
		seq, st, stale := m.dropLocked(err.Error())
		m.mu.Unlock()
		m.afterDrop("error", seq, st, stale, err)
		return
	}

	now := m.now()
	m.channel = ch
	m.fireLocked(triggerOpened, nil)
	m.status.ReconnectAttempts = 0
	m.status.LastConnectedAt = &now
	m.status.LastError = ""
	m.lastInbound = now
	m.startHeartbeatLocked(epoch)
	seq, st := m.snapshotLocked()
	m.mu.Unlock()

	m.metrics.Connected()
	m.emit(seq, st)
	m.logger.Info("connected", logger.UserID(m.identityValue()))
}

func (m *Manager) endpoint() string {
	m.mu.Lock()
	identity := m.identity
	m.mu.Unlock()

	if identity == "" {
		return m.cfg.URL
	}
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return m.cfg.URL
	}
	q := u.Query()
	q.Set("userId", identity)
	u.RawQuery = q.Encode()
	return u.String()
}

func (m *Manager) identityValue() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// handleDrop reacts to an unexpected termination of the channel bound to epoch.
func (m *Manager) handleDrop(epoch uint64, cause, reason string, err error) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	switch m.lifecycle.Current() {
	case StateConnecting, StateConnected:
	default:
		m.mu.Unlock()
		return
	}
	seq, st, stale := m.dropLocked(reason)
	m.mu.Unlock()
	m.afterDrop(cause, seq, st, stale, err)
}

// dropLocked records the failure and applies the retry budget. It returns
// the channel that must be closed outside the lock.
func (m *Manager) dropLocked(reason string) (uint64, Status, Channel) {
	m.epoch++
	m.stopHeartbeatLocked()
	stale := m.channel
	m.channel = nil

	m.status.LastError = reason
	m.status.ReconnectAttempts++
	attempts := m.status.ReconnectAttempts
	m.fireLocked(triggerDropped, attempts)

	if m.lifecycle.Current() == StateReconnecting {
		delay := m.backoff.NextInterval(attempts)
		epoch := m.epoch
		m.retry = time.AfterFunc(delay, func() { m.reconnect(epoch) })
		m.metrics.RetryScheduled()
		m.logger.Info("reconnect scheduled",
			logger.Attempt(attempts), slog.Uint64("max_attempts", uint64(m.cfg.MaxReconnectAttempts)), logger.Duration(delay))
	} else {
		m.metrics.GaveUp()
		m.logger.Warn("reconnect attempts exhausted", logger.Attempt(attempts))
	}

	seq, st := m.snapshotLocked()
	return seq, st, stale
}

func (m *Manager) afterDrop(cause string, seq uint64, st Status, stale Channel, err error) {
	if stale != nil {
		_ = stale.Close()
	}
	m.metrics.Dropped(cause)
	m.logger.Warn("connection lost", slog.String("cause", cause), slog.String("reason", st.LastError), logger.Error(err))
	m.emit(seq, st)
}

func (m *Manager) reconnect(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.lifecycle.Current() != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.fireLocked(triggerDial, nil)
	m.epoch++
	next := m.epoch
	seq, st := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(seq, st)
	m.dial(context.Background(), next)
}

func (m *Manager) receive(epoch uint64, data []byte) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	now := m.now()
	m.lastInbound = now
	m.mu.Unlock()

	msg, err := DecodeMessage(data, now)
	if err != nil {
		m.metrics.MessageMalformed()
		m.logger.Warn("dropping inbound frame", logger.Error(err), slog.Int("bytes", len(data)))
		return
	}
	label := string(msg.Type)
	if !msg.Type.Known() {
		label = "unknown"
	}
	m.metrics.MessageRouted(label)
	if n := m.messages.Dispatch(msg.Type, msg); n == 0 {
		m.logger.Debug("no subscribers for message", logger.EventType(string(msg.Type)))
	}
}

func (m *Manager) startHeartbeatLocked(epoch uint64) {
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.stopBeat = stop
	go m.heartbeat(epoch, stop)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.stopBeat != nil {
		close(m.stopBeat)
		m.stopBeat = nil
	}
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) heartbeat(epoch uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if m.cfg.IdleTimeout > 0 {
			m.mu.Lock()
			idle := m.now().Sub(m.lastInbound)
			m.mu.Unlock()
			if idle > m.cfg.IdleTimeout {
				m.handleDrop(epoch, "idle", fmt.Sprintf("no inbound traffic for %s", idle.Round(time.Millisecond)), nil)
				return
			}
		}

		if err := m.Send(heartbeatMessage()); err != nil {
			m.logger.Debug("heartbeat not sent", logger.Error(err))
			continue
		}
		m.metrics.Heartbeat()
	}
}

func (m *Manager) fireLocked(t trigger, data any) bool {
	if _, err := m.lifecycle.Fire(context.Background(), t, data); err != nil {
		m.logger.Error("invalid connection transition", slog.String("trigger", string(t)), logger.Error(err))
		return false
	}
	return true
}

func (m *Manager) statusLocked() Status {
	st := m.status.clone()
	st.State = m.lifecycle.Current()
	st.Connected = st.State == StateConnected
	return st
}

// snapshotLocked numbers the current status for ordered delivery and queues
// it for persistence while the order is still guaranteed by the lock.
func (m *Manager) snapshotLocked() (uint64, Status) {
	m.seq++
	st := m.statusLocked()
	if m.persister != nil {
		m.persister.Put(StatusKey, st)
	}
	return m.seq, st
}

// emit queues st for every status subscriber unless a newer snapshot has
// already been queued.
func (m *Manager) emit(seq uint64, st Status) {
	m.deliverMu.Lock()
	if seq <= m.queued {
		m.deliverMu.Unlock()
		return
	}
	m.queued = seq
	m.pending = append(m.pending, pendingStatus{update: statusUpdate{seq: seq, st: st}})
	m.drainLocked()
}

// drainLocked is called with deliverMu held and releases it.
func (m *Manager) drainLocked() {
	if m.delivering {
		m.deliverMu.Unlock()
		return
	}
	m.delivering = true
	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.deliverMu.Unlock()

		if next.to != nil {
			m.replay(next.to, next.update)
		} else {
			m.statuses.Dispatch(struct{}{}, next.update)
		}

		m.deliverMu.Lock()
	}
	m.delivering = false
	m.deliverMu.Unlock()
}

func (m *Manager) replay(sub *statusSubscriber, u statusUpdate) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("status subscriber panicked", slog.Any("panic", rec))
		}
	}()
	sub.deliver(u)
}

type channelHandler struct {
	m     *Manager
	epoch uint64
}

func (h *channelHandler) OnMessage(data []byte) { h.m.receive(h.epoch, data) }

func (h *channelHandler) OnError(err error) {
	h.m.handleDrop(h.epoch, "error", err.Error(), err)
}

func (h *channelHandler) OnClose(code int, reason string) {
	h.m.handleDrop(h.epoch, "close", fmt.Sprintf("Connection closed: %d - %s", code, reason), nil)
}
