package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/blicence/notifysync/pkg/logger"
)

// Persister accepts best-effort writes. Calls return immediately; the value
// is written in the background and failures are only logged.
type Persister interface {
	Put(key string, v any)
	Delete(key string)
}

// Writer is a Persister backed by a KV. Pending writes are coalesced per key
// (latest value wins) and applied in the order keys were first queued, so the
// stored value always converges on the most recent Put or Delete.
type Writer struct {
	kv      KV
	logger  *slog.Logger
	timeout time.Duration
	onError func(key string, err error)

	mu         sync.Mutex
	pending    map[string]writeOp
	order      []string
	idle       chan struct{}
	idleClosed bool
	closed     bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

type writeOp struct {
	value  []byte
	remove bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWriteTimeout bounds each individual KV call. Default 5s.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithErrorHook is called after a failed write, e.g. to count failures.
func WithErrorHook(fn func(key string, err error)) WriterOption {
	return func(w *Writer) { w.onError = fn }
}

// NewWriter starts the background goroutine. Stop it with Close.
func NewWriter(kv KV, opts ...WriterOption) *Writer {
	w := &Writer{
		kv:      kv,
		logger:  slog.Default(),
		timeout: 5 * time.Second,
		pending: make(map[string]writeOp),
		idle:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	close(w.idle)
	w.idleClosed = true

	go w.loop()
	return w
}

// Put encodes v immediately and queues the bytes for key.
func (w *Writer) Put(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.logger.Warn("persist encode failed", logger.StorageKey(key), logger.Error(err))
		w.failed(key, err)
		return
	}
	w.enqueue(key, writeOp{value: b})
}

// Delete queues removal of key.
func (w *Writer) Delete(key string) {
	w.enqueue(key, writeOp{remove: true})
}

// Flush waits until every queued write has been applied or ctx ends.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close applies outstanding writes and stops the goroutine. Writes queued
// after Close are dropped with a warning. The KV is left open.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) enqueue(key string, op writeOp) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("persist after close dropped", logger.StorageKey(key))
		return
	}
	if _, queued := w.pending[key]; !queued {
		w.order = append(w.order, key)
	}
	w.pending[key] = op
	if w.idleClosed {
		w.idle = make(chan struct{})
		w.idleClosed = false
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		if len(w.order) == 0 {
			if !w.idleClosed {
				close(w.idle)
				w.idleClosed = true
			}
			w.mu.Unlock()
			return
		}
		key := w.order[0]
		w.order = w.order[1:]
		op := w.pending[key]
		delete(w.pending, key)
		w.mu.Unlock()

		w.apply(key, op)
	}
}

func (w *Writer) apply(key string, op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	if op.remove {
		err = w.kv.Remove(ctx, key)
	} else {
		err = w.kv.Set(ctx, key, op.value)
	}
	if err != nil {
		w.logger.Warn("persist failed", logger.StorageKey(key), logger.Error(err))
		w.failed(key, err)
	}
}

func (w *Writer) failed(key string, err error) {
	if w.onError != nil {
		w.onError(key, err)
	}
}
