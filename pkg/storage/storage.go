package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// KV is the key-value persistence boundary. Values are opaque bytes;
// Get returns ErrNotFound for absent keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config selects and configures a KV driver.
type Config struct {
	Driver      string        `env:"STORAGE_DRIVER" envDefault:"file"`
	Path        string        `env:"STORAGE_PATH" envDefault:"./data"`
	BusyTimeout time.Duration `env:"STORAGE_SQLITE_BUSY_TIMEOUT" envDefault:"5s"`
	KeyPrefix   string        `env:"STORAGE_KEY_PREFIX" envDefault:"notifysync:"`
	Redis       RedisConfig
}

// Open initializes the configured driver. For sqlite, a Path without an
// extension is treated as a directory holding notifysync.db.
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverFile:
		return OpenFile(cfg.Path)
	case DriverSQLite, "sqlite3":
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "notifysync.db")
		}
		return OpenSQLite(ctx, path, cfg.BusyTimeout)
	case DriverRedis:
		client, err := ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
