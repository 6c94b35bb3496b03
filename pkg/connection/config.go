package connection

import "time"

// Config holds the Manager's timing and endpoint settings. Zero fields take
// the defaults from DefaultConfig.
type Config struct {
	URL                  string        `env:"WS_URL" envDefault:"wss://api.blicence.com/ws"`
	ReconnectInterval    time.Duration `env:"WS_RECONNECT_INTERVAL" envDefault:"5s"`
	MaxReconnectAttempts uint          `env:"WS_MAX_RECONNECT_ATTEMPTS" envDefault:"10"`
	HeartbeatInterval    time.Duration `env:"WS_HEARTBEAT_INTERVAL" envDefault:"30s"`
	DialTimeout          time.Duration `env:"WS_DIAL_TIMEOUT" envDefault:"10s"`
	// IdleTimeout forces a reconnect when nothing was received for this long.
	// Zero disables the check.
	IdleTimeout time.Duration `env:"WS_IDLE_TIMEOUT" envDefault:"0s"`
	// ExponentialBackoff replaces the fixed reconnect interval with
	// DefaultExponentialBackoff.
	ExponentialBackoff bool `env:"WS_EXPONENTIAL_BACKOFF" envDefault:"false"`
}

func DefaultConfig() Config {
	return Config{
		URL:                  "wss://api.blicence.com/ws",
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatInterval:    30 * time.Second,
		DialTimeout:          10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	return c
}
