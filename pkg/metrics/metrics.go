package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notifysync"

// Collector groups the prometheus collectors of the notification core.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	connectAttempts prometheus.Counter
	connections     prometheus.Counter
	drops           *prometheus.CounterVec
	retries         prometheus.Counter
	giveUps         prometheus.Counter
	connected       prometheus.Gauge
	heartbeats      prometheus.Counter

	inbound   *prometheus.CounterVec
	malformed prometheus.Counter

	stored     *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	presented  *prometheus.CounterVec
	unread     prometheus.Gauge

	persistFailures *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "connection", Name: "connect_attempts_total",
			Help: "Dial attempts, explicit and scheduled.",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "connection", Name: "established_total",
			Help: "Successful connections.",
		}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "connection", Name: "drops_total",
			Help: "Non-intentional connection losses by cause.",
		}, []string{"cause"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "connection", Name: "retries_scheduled_total",
			Help: "Reconnect attempts scheduled.",
		}),
		giveUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "connection", Name: "give_ups_total",
			Help: "Times the reconnect budget was exhausted.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "connection", Name: "connected",
			Help: "1 while the channel is open.",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "connection", Name: "heartbeats_total",
			Help: "Keep-alive messages sent.",
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "messages", Name: "routed_total",
			Help: "Inbound messages routed by type.",
		}, []string{"type"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "messages", Name: "malformed_total",
			Help: "Inbound frames dropped because they failed to decode.",
		}),
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifications", Name: "stored_total",
			Help: "Notifications appended to the store by category.",
		}, []string{"category"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifications", Name: "suppressed_total",
			Help: "Events that produced no notification, by reason.",
		}, []string{"reason"}),
		presented: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifications", Name: "presented_total",
			Help: "Presentation attempts by outcome.",
		}, []string{"outcome"}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "notifications", Name: "unread",
			Help: "Current unread count.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "persist_failures_total",
			Help: "Background writes that failed, by key.",
		}, []string{"key"}),
	}

	c.registry.MustRegister(
		c.connectAttempts, c.connections, c.drops, c.retries, c.giveUps, c.connected, c.heartbeats,
		c.inbound, c.malformed,
		c.stored, c.suppressed, c.presented, c.unread,
		c.persistFailures,
	)
	return c
}

// Registry exposes the underlying registry, e.g. for tests or for merging.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collectors in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ConnectAttempt() {
	if c != nil {
		c.connectAttempts.Inc()
	}
}

func (c *Collector) Connected() {
	if c != nil {
		c.connections.Inc()
		c.connected.Set(1)
	}
}

// Dropped records a non-intentional loss; cause is "error", "close" or "idle".
func (c *Collector) Dropped(cause string) {
	if c != nil {
		c.drops.WithLabelValues(cause).Inc()
		c.connected.Set(0)
	}
}

func (c *Collector) Disconnected() {
	if c != nil {
		c.connected.Set(0)
	}
}

func (c *Collector) RetryScheduled() {
	if c != nil {
		c.retries.Inc()
	}
}

func (c *Collector) GaveUp() {
	if c != nil {
		c.giveUps.Inc()
	}
}

func (c *Collector) Heartbeat() {
	if c != nil {
		c.heartbeats.Inc()
	}
}

func (c *Collector) MessageRouted(eventType string) {
	if c != nil {
		c.inbound.WithLabelValues(eventType).Inc()
	}
}

func (c *Collector) MessageMalformed() {
	if c != nil {
		c.malformed.Inc()
	}
}

func (c *Collector) NotificationStored(category string) {
	if c != nil {
		c.stored.WithLabelValues(category).Inc()
	}
}

func (c *Collector) NotificationSuppressed(reason string) {
	if c != nil {
		c.suppressed.WithLabelValues(reason).Inc()
	}
}

// Presented records a presenter outcome: "ok", "error", "throttled" or "denied".
func (c *Collector) Presented(outcome string) {
	if c != nil {
		c.presented.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) SetUnread(n int) {
	if c != nil {
		c.unread.Set(float64(n))
	}
}

func (c *Collector) PersistFailed(key string) {
	if c != nil {
		c.persistFailures.WithLabelValues(key).Inc()
	}
}
