package notifications

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/blicence/notifysync/pkg/logger"
	"github.com/blicence/notifysync/pkg/storage"
)

const (
	// HistoryKey is the storage key of the persisted history.
	HistoryKey = "notification_history"
	// DefaultCapacity bounds the history length.
	DefaultCapacity = 100
)

// Store is the bounded, newest-first notification history. The unread count
// is derived from the entries under the same lock as every mutation, so it
// cannot drift from them.
type Store struct {
	mu        sync.RWMutex
	items     []Notification
	capacity  int
	persister storage.Persister
	logger    *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCapacity sets the maximum number of retained notifications.
func WithCapacity(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithStorePersister persists the history after every mutation.
func WithStorePersister(p storage.Persister) StoreOption {
	return func(s *Store) { s.persister = p }
}

func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{capacity: DefaultCapacity, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append inserts n at the head and evicts the oldest entries beyond
// capacity. It returns the evicted entries.
func (s *Store) Append(n Notification) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = slices.Insert(s.items, 0, n.Clone())
	var evicted []Notification
	if len(s.items) > s.capacity {
		evicted = slices.Clone(s.items[s.capacity:])
		s.items = slices.Clip(s.items[:s.capacity])
	}
	s.persistLocked()
	return evicted
}

// MarkRead marks the notification read. It reports whether a notification
// changed from unread to read; repeated calls and unknown ids return false.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].Read {
			return false
		}
		s.items[i].Read = true
		s.persistLocked()
		return true
	}
	return false
}

// MarkAllRead marks every entry read and returns how many changed.
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			changed++
		}
	}
	if changed > 0 {
		s.persistLocked()
	}
	return changed
}

// Clear empties the history and removes it from storage.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	if s.persister != nil {
		s.persister.Delete(HistoryKey)
	}
}

// Filter selects notifications in Query. Zero fields match everything.
type Filter struct {
	Categories []Category
	Priorities []Priority
	Since      time.Time
	Until      time.Time
	UnreadOnly bool
	// Limit keeps the newest Limit matches.
	Limit int
}

func (f Filter) match(n Notification) bool {
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, n.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, n.Priority) {
		return false
	}
	if !f.Since.IsZero() && n.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && n.Timestamp.After(f.Until) {
		return false
	}
	if f.UnreadOnly && n.Read {
		return false
	}
	return true
}

// Query returns copies of the matching notifications, newest first.
func (s *Store) Query(f Filter) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Notification, 0)
	for _, n := range s.items {
		if !f.match(n) {
			continue
		}
		out = append(out, n.Clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// List returns copies of all notifications, newest first.
func (s *Store) List() []Notification {
	return s.Query(Filter{})
}

// View returns copies of all notifications together with their unread
// count, both taken under one lock.
func (s *Store) View() ([]Notification, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, n.Clone())
	}
	return out, s.unreadLocked()
}

func (s *Store) Get(id string) (Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.items {
		if n.ID == id {
			return n.Clone(), nil
		}
	}
	return Notification{}, ErrNotFound
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Counts returns the length and unread count from one consistent view.
func (s *Store) Counts() (total, unread int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), s.unreadLocked()
}

// Load replaces the history with the persisted one. Entries are ordered
// newest first and trimmed to capacity. A missing or unreadable history
// leaves the store empty; the error is logged, not returned.
func (s *Store) Load(ctx context.Context, kv storage.KV) int {
	var saved []Notification
	err := storage.GetJSON(ctx, kv, HistoryKey, &saved)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		saved = nil
	case err != nil:
		s.logger.WarnContext(ctx, "notification history unreadable, starting empty",
			logger.StorageKey(HistoryKey), logger.Error(err))
		saved = nil
	}

	slices.SortStableFunc(saved, func(a, b Notification) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(saved) > s.capacity {
		saved = saved[:s.capacity]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = saved
	return len(s.items)
}

func (s *Store) unreadLocked() int {
	n := 0
	for _, it := range s.items {
		if !it.Read {
			n++
		}
	}
	return n
}

func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	s.persister.Put(HistoryKey, slices.Clone(s.items))
}
