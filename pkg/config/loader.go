package config

import (
	"errors"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by configuration structs that check their own
// invariants after parsing.
type Validator interface {
	Validate() error
}

// Option tunes how Load reads the environment.
type Option func(*loadOptions)

type loadOptions struct {
	files    []string
	prefix   string
	override bool
}

// WithEnvFiles loads the given dotenv files before parsing. Missing files are
// skipped; malformed files fail the load.
func WithEnvFiles(paths ...string) Option {
	return func(o *loadOptions) { o.files = append(o.files, paths...) }
}

// WithOverride makes dotenv values replace variables already set in the process.
func WithOverride() Option {
	return func(o *loadOptions) { o.override = true }
}

// WithPrefix restricts parsing to variables carrying the prefix,
// e.g. "NOTIFYSYNC_".
func WithPrefix(prefix string) Option {
	return func(o *loadOptions) { o.prefix = prefix }
}

// Load parses the environment into a new T using `env` struct tags.
//
//	type ConnConfig struct {
//		URL       string        `env:"WS_URL,required"`
//		Heartbeat time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
//	}
//
//	cfg, err := config.Load[ConnConfig](config.WithEnvFiles(".env"))
func Load[T any](opts ...Option) (T, error) {
	var cfg T
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if err := loadFiles(o.files, o.override); err != nil {
		return cfg, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: o.prefix}); err != nil {
		return cfg, errors.Join(ErrParsingConfig, err)
	}

	if v, ok := any(&cfg).(Validator); ok {
		if err := v.Validate(); err != nil {
			return cfg, errors.Join(ErrInvalidConfig, err)
		}
	}
	return cfg, nil
}

func loadFiles(paths []string, override bool) error {
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	var err error
	if override {
		err = godotenv.Overload(existing...)
	} else {
		err = godotenv.Load(existing...)
	}
	if err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}
