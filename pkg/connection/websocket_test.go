package connection_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blicence/notifysync/pkg/connection"
)

type handlerRecorder struct {
	mu       sync.Mutex
	messages []string
	errs     []error
	code     int
	reason   string
	closes   int
}

func (h *handlerRecorder) OnMessage(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, string(data))
}

func (h *handlerRecorder) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *handlerRecorder) OnClose(code int, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.code, h.reason = code, reason
	h.closes++
}

func (h *handlerRecorder) snapshot() (msgs []string, errs, closes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...), len(h.errs), h.closes
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketDialer(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}

	t.Run("exchanges frames and reports server close", func(t *testing.T) {
		t.Parallel()
		received := make(chan string, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"system_message","payload":{}}`))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4000, "maintenance"))
			time.Sleep(50 * time.Millisecond)
		}))
		defer srv.Close()

		h := &handlerRecorder{}
		d := &connection.WebSocketDialer{HandshakeTimeout: time.Second}
		ch, err := d.Dial(context.Background(), wsURL(srv), h)
		require.NoError(t, err)
		defer ch.Close()

		require.NoError(t, ch.Send([]byte(`{"type":"plan_update"}`)))
		select {
		case got := <-received:
			assert.Equal(t, `{"type":"plan_update"}`, got)
		case <-time.After(time.Second):
			t.Fatal("server did not receive frame")
		}

		require.Eventually(t, func() bool {
			_, _, closes := h.snapshot()
			return closes == 1
		}, time.Second, 5*time.Millisecond)

		msgs, errs, _ := h.snapshot()
		assert.Equal(t, []string{`{"type":"system_message","payload":{}}`}, msgs)
		assert.Zero(t, errs)
		h.mu.Lock()
		assert.Equal(t, 4000, h.code)
		assert.Equal(t, "maintenance", h.reason)
		h.mu.Unlock()
	})

	t.Run("local close is silent", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}))
		defer srv.Close()

		h := &handlerRecorder{}
		ch, err := (&connection.WebSocketDialer{}).Dial(context.Background(), wsURL(srv), h)
		require.NoError(t, err)

		require.NoError(t, ch.Close())
		assert.NoError(t, ch.Close())
		time.Sleep(50 * time.Millisecond)

		_, errs, closes := h.snapshot()
		assert.Zero(t, errs)
		assert.Zero(t, closes)
		assert.ErrorIs(t, ch.Send([]byte("x")), connection.ErrNotConnected)
	})

	t.Run("dial failure", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, err := (&connection.WebSocketDialer{}).Dial(context.Background(), wsURL(srv), &handlerRecorder{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}
