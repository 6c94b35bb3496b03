package connection

import (
	"log/slog"
	"time"

	"github.com/blicence/notifysync/pkg/metrics"
	"github.com/blicence/notifysync/pkg/storage"
)

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithPersister saves every status change under StatusKey.
func WithPersister(p storage.Persister) Option {
	return func(m *Manager) { m.persister = p }
}

// WithBackoff overrides the reconnect delay strategy.
func WithBackoff(b BackoffStrategy) Option {
	return func(m *Manager) {
		if b != nil {
			m.backoff = b
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}
