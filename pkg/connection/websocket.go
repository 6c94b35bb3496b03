package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

// WebSocketDialer opens Channels over gorilla/websocket. Frames are JSON
// text messages.
type WebSocketDialer struct {
	// Header is sent with the upgrade request.
	Header http.Header
	// HandshakeTimeout bounds the upgrade handshake. Zero uses the context
	// deadline only.
	HandshakeTimeout time.Duration
}

// Dial connects to url and starts a read loop that reports to h until the
// connection terminates or the returned Channel is closed.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, h Handler) (Channel, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	ch := &wsChannel{conn: conn, handler: h}
	go ch.readLoop()
	return ch, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	handler Handler
	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once
}

func (c *wsChannel) Send(data []byte) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal closure frame and releases the connection. The
// handler is not called afterwards.
func (c *wsChannel) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(closeWriteWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if c.closed.Load() {
			return
		}
		if err != nil {
			c.closed.Store(true)
			_ = c.conn.Close()

			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.handler.OnClose(ce.Code, ce.Text)
				return
			}
			c.handler.OnError(err)
			return
		}
		c.handler.OnMessage(data)
	}
}
