package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blicence/notifysync/pkg/storage"
)

// recordingKV wraps Memory, records the order of applied operations and can
// block or fail writes.
type recordingKV struct {
	*storage.Memory
	mu      sync.Mutex
	ops     []string
	gate    chan struct{}
	entered chan struct{}
	failing bool
}

func newRecordingKV() *recordingKV {
	return &recordingKV{Memory: storage.NewMemory(), entered: make(chan struct{}, 1)}
}

func (r *recordingKV) Set(ctx context.Context, key string, value []byte) error {
	if r.gate != nil {
		select {
		case r.entered <- struct{}{}:
		default:
		}
		<-r.gate
	}
	r.mu.Lock()
	r.ops = append(r.ops, "set:"+key+"="+string(value))
	failing := r.failing
	r.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return r.Memory.Set(ctx, key, value)
}

func (r *recordingKV) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	r.ops = append(r.ops, "remove:"+key)
	r.mu.Unlock()
	return r.Memory.Remove(ctx, key)
}

func (r *recordingKV) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func TestWriter_PutAndFlush(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	w := storage.NewWriter(kv)
	defer w.Close(ctx)

	w.Put("a", map[string]int{"n": 1})
	require.NoError(t, w.Flush(ctx))

	var got map[string]int
	require.NoError(t, storage.GetJSON(ctx, kv, "a", &got))
	assert.Equal(t, 1, got["n"])
}

func TestWriter_CoalescesWhileBusy(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	kv.gate = make(chan struct{})
	w := storage.NewWriter(kv)
	defer w.Close(ctx)

	w.Put("first", 0)
	select {
	case <-kv.entered:
	case <-time.After(time.Second):
		t.Fatal("first write never started")
	}

	for i := 1; i <= 5; i++ {
		w.Put("history", i)
	}
	w.Put("config", true)
	w.Delete("status")

	close(kv.gate)
	require.NoError(t, w.Flush(ctx))

	assert.Equal(t, []string{
		"set:first=0",
		"set:history=5",
		"set:config=true",
		"remove:status",
	}, kv.recorded())
}

func TestWriter_DeleteAfterPutWins(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	w := storage.NewWriter(kv)
	defer w.Close(ctx)

	require.NoError(t, kv.Memory.Set(ctx, "k", []byte("old")))
	w.Put("k", "new")
	w.Delete("k")
	require.NoError(t, w.Flush(ctx))

	_, err := kv.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWriter_FailuresAreReportedNotReturned(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	kv.failing = true

	var mu sync.Mutex
	var failed []string
	w := storage.NewWriter(kv, storage.WithErrorHook(func(key string, err error) {
		mu.Lock()
		failed = append(failed, key)
		mu.Unlock()
	}))
	defer w.Close(ctx)

	w.Put("notification_history", []int{1})
	w.Put("bad", func() {})
	require.NoError(t, w.Flush(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"notification_history", "bad"}, failed)
}

func TestWriter_Close(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	w := storage.NewWriter(kv)

	w.Put("k", 1)
	require.NoError(t, w.Close(ctx))
	require.NoError(t, w.Close(ctx))

	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))

	w.Put("late", 2)
	_, err = kv.Get(ctx, "late")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWriter_FlushHonoursContext(t *testing.T) {
	kv := newRecordingKV()
	kv.gate = make(chan struct{})
	w := storage.NewWriter(kv)
	defer func() {
		close(kv.gate)
		_ = w.Close(context.Background())
	}()

	w.Put("slow", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Flush(ctx), context.DeadlineExceeded)
}
