package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blicence/notifysync/pkg/config"
)

type connConfig struct {
	URL       string        `env:"CFGTEST_WS_URL,required"`
	Heartbeat time.Duration `env:"CFGTEST_HEARTBEAT" envDefault:"30s"`
	Attempts  uint          `env:"CFGTEST_ATTEMPTS" envDefault:"10"`
}

type validatedConfig struct {
	Attempts int `env:"CFGTEST_VALIDATED" envDefault:"0"`
}

func (c *validatedConfig) Validate() error {
	if c.Attempts <= 0 {
		return errors.New("attempts must be positive")
	}
	return nil
}

type prefixedConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

func TestLoad(t *testing.T) {
	t.Run("parses values and defaults", func(t *testing.T) {
		t.Setenv("CFGTEST_WS_URL", "wss://example.test/ws")
		t.Setenv("CFGTEST_ATTEMPTS", "3")

		cfg, err := config.Load[connConfig]()
		require.NoError(t, err)
		assert.Equal(t, "wss://example.test/ws", cfg.URL)
		assert.Equal(t, 30*time.Second, cfg.Heartbeat)
		assert.Equal(t, uint(3), cfg.Attempts)
	})

	t.Run("missing required variable", func(t *testing.T) {
		os.Unsetenv("CFGTEST_WS_URL")
		_, err := config.Load[connConfig]()
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("validator rejects", func(t *testing.T) {
		_, err := config.Load[validatedConfig]()
		assert.ErrorIs(t, err, config.ErrInvalidConfig)

		t.Setenv("CFGTEST_VALIDATED", "2")
		cfg, err := config.Load[validatedConfig]()
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Attempts)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Setenv("APP_LOG_LEVEL", "debug")
		cfg, err := config.Load[prefixedConfig](config.WithPrefix("APP_"))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Level)
	})
}

func TestLoad_EnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CFGTEST_WS_URL=wss://from-file\nCFGTEST_HEARTBEAT=5s\n"), 0o600))

	t.Cleanup(func() {
		os.Unsetenv("CFGTEST_WS_URL")
		os.Unsetenv("CFGTEST_HEARTBEAT")
	})

	t.Run("missing files are skipped", func(t *testing.T) {
		t.Setenv("CFGTEST_WS_URL", "wss://env")
		cfg, err := config.Load[connConfig](config.WithEnvFiles(filepath.Join(dir, "absent.env")))
		require.NoError(t, err)
		assert.Equal(t, "wss://env", cfg.URL)
	})

	t.Run("override replaces process values", func(t *testing.T) {
		t.Setenv("CFGTEST_WS_URL", "wss://env")
		cfg, err := config.Load[connConfig](config.WithEnvFiles(path), config.WithOverride())
		require.NoError(t, err)
		assert.Equal(t, "wss://from-file", cfg.URL)
		assert.Equal(t, 5*time.Second, cfg.Heartbeat)
	})
}

