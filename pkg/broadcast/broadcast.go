package broadcast

import (
	"context"
	"sync"
)

// Message wraps data of type T.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
type Subscriber[T any] interface {
	// Receive returns the channel messages are delivered on. It is closed
	// when the subscriber or the broadcaster is closed.
	Receive() <-chan Message[T]

	// Close releases the subscriber. Safe to call more than once.
	Close() error
}

// Broadcaster fans messages out to subscribers without ever blocking the sender.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber for the lifetime of ctx.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast delivers msg to every active subscriber.
	Broadcast(msg Message[T])

	// Close closes all subscribers. Later subscriptions are returned closed.
	Close() error
}

type subscriber[T any] struct {
	ch     chan Message[T]
	done   chan struct{}
	closed bool
	mu     sync.Mutex
	onStop func()
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan Message[T], bufferSize), done: make(chan struct{})}
}

func (s *subscriber[T]) Receive() <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	close(s.done)
	stop := s.onStop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}

// send enqueues msg. When the buffer is full the oldest queued message is
// discarded so a slow reader always ends up with the most recent state.
func (s *subscriber[T]) send(msg Message[T]) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	for {
		select {
		case s.ch <- msg:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped = true
		default:
		}
	}
}
