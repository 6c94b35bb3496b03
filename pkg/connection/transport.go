package connection

import "context"

// Dialer opens a duplex message channel. A nil error means the channel is
// open; from then on the channel reports traffic and termination through h.
type Dialer interface {
	Dial(ctx context.Context, url string, h Handler) (Channel, error)
}

// Channel is an open duplex channel.
type Channel interface {
	Send(data []byte) error
	Close() error
}

// Handler receives channel callbacks. Implementations call exactly one of
// OnError or OnClose when the channel terminates, and nothing after Close.
type Handler interface {
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code int, reason string)
}
