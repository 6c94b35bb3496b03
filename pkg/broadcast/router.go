package broadcast

import (
	"sync"
	"sync/atomic"
)

// Handler receives a routed value.
type Handler[T any] func(T)

// PanicHandler is told about a handler that panicked while receiving a value
// routed under key.
type PanicHandler[K comparable] func(key K, recovered any)

// Router dispatches values synchronously to handlers registered for a key and
// to catch-all handlers. Delivery order is registration order: key handlers
// first, then catch-all handlers. A panicking handler does not stop delivery
// to the rest.
type Router[K comparable, T any] struct {
	mu      sync.RWMutex
	keyed   map[K][]route[T]
	all     []route[T]
	seq     atomic.Uint64
	onPanic PanicHandler[K]
}

type route[T any] struct {
	id uint64
	fn Handler[T]
}

// RouterOption configures a Router.
type RouterOption[K comparable, T any] func(*Router[K, T])

// WithPanicHandler sets the hook called when a handler panics.
func WithPanicHandler[K comparable, T any](fn PanicHandler[K]) RouterOption[K, T] {
	return func(r *Router[K, T]) { r.onPanic = fn }
}

func NewRouter[K comparable, T any](opts ...RouterOption[K, T]) *Router[K, T] {
	r := &Router[K, T]{keyed: make(map[K][]route[T])}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers fn for values routed under key. The returned function
// removes the registration and is safe to call more than once.
func (r *Router[K, T]) Subscribe(key K, fn Handler[T]) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	id := r.seq.Add(1)

	r.mu.Lock()
	r.keyed[key] = append(r.keyed[key], route[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.keyed[key] = without(r.keyed[key], id)
			if len(r.keyed[key]) == 0 {
				delete(r.keyed, key)
			}
		})
	}
}

// SubscribeAll registers fn for every routed value regardless of key.
func (r *Router[K, T]) SubscribeAll(fn Handler[T]) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	id := r.seq.Add(1)

	r.mu.Lock()
	r.all = append(r.all, route[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.all = without(r.all, id)
		})
	}
}

// Dispatch delivers v to the handlers for key and then to catch-all handlers.
// It returns the number of handlers invoked. Handlers may subscribe or
// unsubscribe during dispatch; changes apply from the next Dispatch.
func (r *Router[K, T]) Dispatch(key K, v T) int {
	r.mu.RLock()
	keyed := r.keyed[key]
	targets := make([]route[T], 0, len(keyed)+len(r.all))
	targets = append(targets, keyed...)
	targets = append(targets, r.all...)
	r.mu.RUnlock()

	for _, t := range targets {
		r.invoke(key, t.fn, v)
	}
	return len(targets)
}

// Len returns the number of handlers that would receive a value routed under key.
func (r *Router[K, T]) Len(key K) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keyed[key]) + len(r.all)
}

func (r *Router[K, T]) invoke(key K, fn Handler[T], v T) {
	defer func() {
		if rec := recover(); rec != nil && r.onPanic != nil {
			r.onPanic(key, rec)
		}
	}()
	fn(v)
}

func without[T any](routes []route[T], id uint64) []route[T] {
	out := make([]route[T], 0, len(routes))
	for _, rt := range routes {
		if rt.id != id {
			out = append(out, rt)
		}
	}
	return out
}
