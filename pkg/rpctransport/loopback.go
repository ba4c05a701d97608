package rpctransport

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// loopback implements an in-process channel transport addressed by
// "loopback://N" (spec §6.4). It is NoSerialize: Connect and Listen hand
// each other rpcvalue.Value references directly with no byte codec in
// between (spec §4.2).
type loopback struct {
	mu        sync.Mutex
	listeners map[int]*loopbackListener
}

// NewLoopback returns the loopback driver.
func NewLoopback() Transport {
	return &loopback{listeners: make(map[int]*loopbackListener)}
}

func (l *loopback) Schemes() []string { return []string{"loopback"} }
func (l *loopback) Flags() Flags      { return NoSerialize }

func loopbackAddr(uri string) (int, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return 0, fmt.Errorf("rpctransport(loopback): %w", err)
	}
	n, err := strconv.Atoi(u.Host)
	if err != nil {
		return 0, fmt.Errorf("rpctransport(loopback): bad address %q: %w", u.Host, err)
	}
	return n, nil
}

func (l *loopback) Connect(ctx context.Context, uri string, _ map[string]string) (Conn, error) {
	n, err := loopbackAddr(uri)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	ln, ok := l.listeners[n]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("rpctransport(loopback): nothing listening on %d", n)
	}

	client, server := newLoopbackPair()
	select {
	case ln.incoming <- server:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *loopback) Listen(uri string, _ map[string]string) (Listener, error) {
	n, err := loopbackAddr(uri)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.listeners[n]; exists {
		return nil, fmt.Errorf("rpctransport(loopback): address %d already bound", n)
	}
	ln := &loopbackListener{
		addr:     n,
		incoming: make(chan *loopbackConn, 16),
		closed:   make(chan struct{}),
		owner:    l,
	}
	l.listeners[n] = ln
	return ln, nil
}

type loopbackListener struct {
	addr     int
	incoming chan *loopbackConn
	closed   chan struct{}
	closeMu  sync.Mutex
	done     bool
	owner    *loopback
}

func (ln *loopbackListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c, ok := <-ln.incoming:
		if !ok {
			return nil, fmt.Errorf("rpctransport(loopback): listener closed")
		}
		return c, nil
	case <-ln.closed:
		return nil, fmt.Errorf("rpctransport(loopback): listener closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (ln *loopbackListener) Close() error {
	ln.closeMu.Lock()
	defer ln.closeMu.Unlock()
	if ln.done {
		return nil
	}
	ln.done = true
	close(ln.closed)
	ln.owner.mu.Lock()
	delete(ln.owner.listeners, ln.addr)
	ln.owner.mu.Unlock()
	return nil
}

func (ln *loopbackListener) Addr() string { return fmt.Sprintf("loopback://%d", ln.addr) }

// loopbackConn is one half of an in-process pair. Values sent on one side
// are delivered to the other side's recv handler in send order via a
// buffered channel and a dedicated pump goroutine.
type loopbackConn struct {
	out     chan *rpcvalue.Value
	in      chan *rpcvalue.Value
	mu      sync.Mutex
	handler RecvHandler
	closed  chan struct{}
	closeMu sync.Mutex
	done    bool
}

func newLoopbackPair() (client, server *loopbackConn) {
	ab := make(chan *rpcvalue.Value, 64)
	ba := make(chan *rpcvalue.Value, 64)
	client = &loopbackConn{out: ab, in: ba, closed: make(chan struct{})}
	server = &loopbackConn{out: ba, in: ab, closed: make(chan struct{})}
	return client, server
}

func (c *loopbackConn) SetRecvHandler(h RecvHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	go c.pump()
}

func (c *loopbackConn) pump() {
	for {
		select {
		case v, ok := <-c.in:
			if !ok {
				return
			}
			c.mu.Lock()
			h := c.handler
			c.mu.Unlock()
			if h != nil {
				h(nil, nil, v)
			}
		case <-c.closed:
			return
		}
	}
}

func (c *loopbackConn) Send([]byte, []int) error {
	return fmt.Errorf("rpctransport(loopback): NoSerialize driver does not accept byte frames")
}

func (c *loopbackConn) SendValue(v *rpcvalue.Value) error {
	select {
	case c.out <- v:
		return nil
	case <-c.closed:
		return fmt.Errorf("rpctransport(loopback): connection closed")
	}
}

func (c *loopbackConn) Abort() error {
	return c.Close()
}

func (c *loopbackConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.done {
		return nil
	}
	c.done = true
	close(c.closed)
	return nil
}

func (c *loopbackConn) Fd() int { return -1 }

func (c *loopbackConn) Credentials() (PeerCredentials, bool) { return PeerCredentials{}, false }

func (c *loopbackConn) Flags() Flags { return NoSerialize }
