package realtime

import (
	"log/slog"

	"github.com/blicence/notifysync/pkg/metrics"
	"github.com/blicence/notifysync/pkg/notifications"
	"github.com/blicence/notifysync/pkg/storage"
)

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

func WithPresenter(p notifications.Presenter) Option {
	return func(s *Service) { s.presenter = p }
}

// WithPersister routes config and history writes through p. Without it the
// Service owns a storage.Writer on its KV and closes it on Shutdown.
func WithPersister(p storage.Persister) Option {
	return func(s *Service) { s.persister = p }
}

// WithCapacity bounds the notification history.
func WithCapacity(n int) Option {
	return func(s *Service) { s.capacity = n }
}

func WithPolicy(p *notifications.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithWatchBuffer sets how many snapshots a slow watcher may lag behind
// before older ones are dropped.
func WithWatchBuffer(n int) Option {
	return func(s *Service) { s.watchBuffer = n }
}
