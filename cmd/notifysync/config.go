package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/blicence/notifysync/pkg/connection"
	"github.com/blicence/notifysync/pkg/logger"
	"github.com/blicence/notifysync/pkg/storage"
)

// AppConfig is read from the environment and optional .env files.
type AppConfig struct {
	UserID      string `env:"NOTIFYSYNC_USER_ID,required,notEmpty"`
	Language    string `env:"NOTIFYSYNC_LANGUAGE" envDefault:"en"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// AlertRate caps presented alerts per second; AlertBurst allows short
	// spikes above it. Stored notifications are never throttled.
	AlertRate  float64 `env:"ALERT_RATE" envDefault:"1"`
	AlertBurst int     `env:"ALERT_BURST" envDefault:"5"`
	// AlertFile, when set, also receives every presented alert as a JSON line.
	AlertFile string `env:"ALERT_FILE"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Connection connection.Config
	Storage    storage.Config
}

func (c *AppConfig) Validate() error {
	var errs []error
	if f := logger.Format(strings.ToLower(c.LogFormat)); f != logger.ParseFormat(c.LogFormat) {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not json, text or console", c.LogFormat))
	}
	if c.AlertRate <= 0 {
		errs = append(errs, errors.New("ALERT_RATE must be positive"))
	}
	if c.AlertBurst < 1 {
		errs = append(errs, errors.New("ALERT_BURST must be at least 1"))
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		errs = append(errs, errors.New("WS_MAX_RECONNECT_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

func (c *AppConfig) alertLimit() rate.Limit {
	return rate.Limit(c.AlertRate)
}
