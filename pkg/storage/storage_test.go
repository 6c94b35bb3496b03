package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blicence/notifysync/pkg/storage"
)

func drivers(t *testing.T) map[string]func(t *testing.T) storage.KV {
	t.Helper()
	return map[string]func(t *testing.T) storage.KV{
		"memory": func(t *testing.T) storage.KV { return storage.NewMemory() },
		"file": func(t *testing.T) storage.KV {
			kv, err := storage.OpenFile(t.TempDir())
			require.NoError(t, err)
			return kv
		},
		"sqlite": func(t *testing.T) storage.KV {
			kv, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "kv.db"), 0)
			require.NoError(t, err)
			return kv
		},
		"redis": func(t *testing.T) storage.KV {
			url := os.Getenv("REDIS_URL")
			if url == "" {
				t.Skip("REDIS_URL not set")
			}
			client, err := storage.ConnectRedis(context.Background(), storage.RedisConfig{ConnectionURL: url, RetryAttempts: 1})
			require.NoError(t, err)
			return storage.NewRedis(client, "notifysync-test:"+t.Name()+":")
		},
	}
}

func TestKV_Conformance(t *testing.T) {
	ctx := context.Background()
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			kv := open(t)

			_, err := kv.Get(ctx, "missing")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, kv.Set(ctx, "notification_config", []byte(`{"enabled":true}`)))
			v, err := kv.Get(ctx, "notification_config")
			require.NoError(t, err)
			assert.JSONEq(t, `{"enabled":true}`, string(v))

			require.NoError(t, kv.Set(ctx, "notification_config", []byte(`{"enabled":false}`)))
			v, err = kv.Get(ctx, "notification_config")
			require.NoError(t, err)
			assert.JSONEq(t, `{"enabled":false}`, string(v))

			require.NoError(t, kv.Remove(ctx, "notification_config"))
			_, err = kv.Get(ctx, "notification_config")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, kv.Remove(ctx, "never-set"))
			assert.ErrorIs(t, kv.Set(ctx, "", []byte("x")), storage.ErrEmptyKey)

			require.NoError(t, kv.Close())
		})
	}
}

func TestKV_ClosedRejectsCalls(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"memory", "file", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			kv := drivers(t)[name](t)
			require.NoError(t, kv.Close())
			_, err := kv.Get(ctx, "k")
			assert.ErrorIs(t, err, storage.ErrClosed)
			assert.ErrorIs(t, kv.Set(ctx, "k", []byte("v")), storage.ErrClosed)
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	in := []byte("abc")
	require.NoError(t, kv.Set(ctx, "k", in))
	in[0] = 'x'

	out, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
	out[0] = 'y'

	again, _ := kv.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestFile_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kv, err := storage.OpenFile(dir)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "websocket/status", []byte(`1`)))
	require.NoError(t, kv.Close())

	reopened, err := storage.OpenFile(dir)
	require.NoError(t, err)
	v, err := reopened.Get(ctx, "websocket/status")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kv.db")

	kv, err := storage.OpenSQLite(ctx, path, 0)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "notification_history", []byte(`[]`)))
	require.NoError(t, kv.Close())

	reopened, err := storage.OpenSQLite(ctx, path, 0)
	require.NoError(t, err)
	defer reopened.Close()
	v, err := reopened.Get(ctx, "notification_history")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(v))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     storage.Config
		wantErr error
	}{
		{name: "memory", cfg: storage.Config{Driver: "memory"}},
		{name: "default memory", cfg: storage.Config{}},
		{name: "file", cfg: storage.Config{Driver: "file", Path: t.TempDir()}},
		{name: "file without path", cfg: storage.Config{Driver: "file"}, wantErr: storage.ErrPathRequired},
		{name: "sqlite dir", cfg: storage.Config{Driver: "SQLite", Path: t.TempDir()}},
		{name: "unknown", cfg: storage.Config{Driver: "etcd"}, wantErr: storage.ErrUnknownDriver},
		{
			name:    "bad redis url",
			cfg:     storage.Config{Driver: "redis", Redis: storage.RedisConfig{ConnectionURL: "://nope"}},
			wantErr: storage.ErrFailedToParseRedisConnString,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, err := storage.Open(ctx, tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, kv.Set(ctx, "k", []byte("v")))
			require.NoError(t, kv.Close())
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	type cfg struct {
		Enabled bool `json:"enabled"`
	}

	var out cfg
	assert.ErrorIs(t, storage.GetJSON(ctx, kv, "c", &out), storage.ErrNotFound)

	require.NoError(t, storage.SetJSON(ctx, kv, "c", cfg{Enabled: true}))
	require.NoError(t, storage.GetJSON(ctx, kv, "c", &out))
	assert.True(t, out.Enabled)

	require.NoError(t, kv.Set(ctx, "c", []byte("{not json")))
	assert.ErrorIs(t, storage.GetJSON(ctx, kv, "c", &out), storage.ErrCorrupt)
}
