package rpctransport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// webSocket implements the "ws://" and "wss://" drivers (spec §6.1/§6.4)
// over github.com/gorilla/websocket. Frames map 1:1 onto binary WS
// messages; no fd passing or peer credentials are available over WS, so
// Flags reports neither.
type webSocket struct {
	upgrader websocket.Upgrader
}

// NewWebSocket returns the ws/wss driver.
func NewWebSocket() Transport {
	return &webSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (w *webSocket) Schemes() []string { return []string{"ws", "wss"} }
func (w *webSocket) Flags() Flags      { return 0 }

func (w *webSocket) Connect(ctx context.Context, uri string, _ map[string]string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	c, _, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("rpctransport(ws): dial %q: %w", uri, err)
	}
	return newWSConn(c), nil
}

// Listen is not directly supported: a ws driver listens by accepting
// upgrades on an existing net/http server (see Handler below), not by
// binding a socket of its own.
func (w *webSocket) Listen(uri string, _ map[string]string) (Listener, error) {
	return nil, fmt.Errorf("rpctransport(ws): use Handler to accept upgrades on an http.Server")
}

// Handler returns an http.Handler that upgrades inbound requests to
// WebSocket connections and publishes each as a Conn to accept.
func (w *webSocket) Handler(accept func(Conn)) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		c, err := w.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		accept(newWSConn(c))
	})
}

type wsConn struct {
	c       *websocket.Conn
	mu      sync.Mutex
	handler RecvHandler
	closeMu sync.Mutex
	closed  bool
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c}
}

func (c *wsConn) SetRecvHandler(h RecvHandler) {
	c.handler = h
	go c.readLoop()
}

func (c *wsConn) readLoop() {
	for {
		mt, data, err := c.c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if c.handler != nil {
			c.handler(data, nil, nil)
		}
	}
}

func (c *wsConn) Send(data []byte, fds []int) error {
	if len(fds) > 0 {
		return fmt.Errorf("rpctransport(ws): driver does not support fd passing")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) SendValue(*rpcvalue.Value) error {
	return fmt.Errorf("rpctransport(ws): driver is not NoSerialize")
}

func (c *wsConn) Abort() error { return c.c.Close() }

func (c *wsConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.c.Close()
}

func (c *wsConn) Fd() int { return -1 }

func (c *wsConn) Credentials() (PeerCredentials, bool) { return PeerCredentials{}, false }

func (c *wsConn) Flags() Flags { return 0 }
