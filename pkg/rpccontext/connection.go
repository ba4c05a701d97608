package rpccontext

import (
	"fmt"
	"sync"

	"github.com/twoporeguys/go-librpc/internal/logger"
	"github.com/twoporeguys/go-librpc/pkg/rpccall"
	"github.com/twoporeguys/go-librpc/pkg/rpcevent"
	"github.com/twoporeguys/go-librpc/pkg/rpcframe"
	"github.com/twoporeguys/go-librpc/pkg/rpcserializer"
	"github.com/twoporeguys/go-librpc/pkg/rpctransport"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// Connection binds one rpctransport.Conn to the call/event machinery: an
// outbound call Table for calls this side initiated, an inbound Cookie
// table for calls this side is servicing, and a subscription set for
// events the remote peer has asked to receive. Grounded on
// pkg/adapter/base.go's per-connection bookkeeping (teacher, since
// deleted — see DESIGN.md).
type Connection struct {
	id    string
	ctx   *Context
	conn  rpctransport.Conn
	codec rpcserializer.Codec // nil when conn.Flags().Has(rpctransport.NoSerialize)

	sendMu sync.Mutex // serializes outbound sends (spec §5)

	outbound *rpccall.Table

	inboundMu sync.Mutex
	inbound   map[string]*rpccall.Cookie

	events  *rpcevent.Table
	watcher *rpcevent.Watcher

	serverSubsMu sync.Mutex
	serverSubs   map[rpcevent.Key]bool
}

func newConnection(ctx *Context, tc rpctransport.Conn, codec rpcserializer.Codec) *Connection {
	c := &Connection{
		id:         rpcframe.NewID(),
		ctx:        ctx,
		conn:       tc,
		codec:      codec,
		outbound:   rpccall.NewTable(),
		inbound:    make(map[string]*rpccall.Cookie),
		serverSubs: make(map[rpcevent.Key]bool),
	}
	c.events = rpcevent.NewTable(connWireSubscriber{c})
	c.watcher = rpcevent.NewWatcher(c.events)
	tc.SetRecvHandler(c.onRecv)
	return c
}

// connWireSubscriber adapts Connection to rpcevent.WireSubscriber.
type connWireSubscriber struct{ c *Connection }

func (w connWireSubscriber) Subscribe(keys []rpcevent.Key) error {
	return w.c.sendSubscription(rpcframe.NameSubscribe, keys)
}

func (w connWireSubscriber) Unsubscribe(keys []rpcevent.Key) error {
	return w.c.sendSubscription(rpcframe.NameUnsubscribe, keys)
}

func (c *Connection) sendSubscription(name string, keys []rpcevent.Key) error {
	arr := rpcvalue.Array()
	for _, k := range keys {
		d := rpcvalue.Dictionary()
		d.DictSet("path", rpcvalue.String(k.Path))
		d.DictSet("interface", rpcvalue.String(k.Interface))
		d.DictSet("name", rpcvalue.String(k.Name))
		arr.ArrayAppend(d)
	}
	return c.SendFrame(rpcframe.New(rpcframe.NamespaceEvents, name, rpcframe.NewID(), arr))
}

// SendFrame implements rpccall.FrameSender: it marshals f and writes it out
// over the wire, taking the NoSerialize shortcut when the driver supports
// reference passing directly (spec §4.2).
func (c *Connection) SendFrame(f *rpcframe.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	namespace, name := f.Namespace, f.Name
	wire := rpcframe.Marshal(f)
	f.Release()

	if c.conn.Flags().Has(rpctransport.NoSerialize) {
		if err := c.conn.SendValue(wire); err != nil {
			return err
		}
		logger.Debug("frame sent", logger.Namespace(namespace), logger.FrameName(name))
		return nil
	}
	defer wire.Release()

	data, err := c.codec.Serialize(wire)
	if err != nil {
		return fmt.Errorf("rpccontext: serialize frame: %w", err)
	}
	if err := c.conn.Send(data, nil); err != nil {
		return err
	}
	logger.Debug("frame sent", logger.Namespace(namespace), logger.FrameName(name), logger.BytesWritten(len(data)), logger.Codec(c.codec.Name()))
	return nil
}

// Call initiates an outbound rpc.call for (path, interface, method) with
// args, returning the Call handle to await its result (spec §4.3).
func (c *Connection) Call(path, iface, method string, args *rpcvalue.Value, prefetch uint64, onFragment rpccall.FragmentHandler) (*rpccall.Call, error) {
	call := rpccall.NewCall(c, prefetch, onFragment)
	c.outbound.Register(call)

	payload := rpcvalue.Dictionary()
	payload.DictSet("path", rpcvalue.String(path))
	payload.DictSet("interface", rpcvalue.String(iface))
	payload.DictSet("method", rpcvalue.String(method))
	payload.DictSet("args", args)

	if err := c.SendFrame(rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameCall, call.ID, payload)); err != nil {
		c.outbound.Forget(call.ID)
		return nil, err
	}
	return call, nil
}

// Subscribe registers handler for the remote's (path, interface, name)
// event (spec §4.4).
func (c *Connection) Subscribe(key rpcevent.Key, handler rpcevent.Handler) error {
	_, err := c.events.Subscribe(key, handler)
	return err
}

// Unsubscribe drops a previously registered Subscribe.
func (c *Connection) Unsubscribe(key rpcevent.Key) error {
	return c.events.Unsubscribe(key)
}

// WatchProperty registers handler for changes to property name on (path,
// interface) of the remote peer, subscribing to Observable.changed on first
// use and filtering by property name thereafter (spec §4.4).
func (c *Connection) WatchProperty(path, iface, name string, handler rpcevent.PropertyHandler) error {
	return c.watcher.Watch(path, iface, name, handler)
}

// UnwatchProperty drops a watch established by WatchProperty.
func (c *Connection) UnwatchProperty(path, iface string) error {
	return c.watcher.Unwatch(path, iface)
}

// ID returns this connection's identifier, used for log correlation.
func (c *Connection) ID() string { return c.id }

// Close tears down the connection: aborts outstanding outbound calls with
// CONNECTION_CLOSED and closes the underlying transport conn (spec §4.3).
func (c *Connection) Close() error {
	c.outbound.CloseAll()
	return c.conn.Close()
}

// onRecv is installed as the transport RecvHandler; it decodes the
// incoming frame (via codec for byte-mode drivers, directly for
// NoSerialize ones) and routes it.
func (c *Connection) onRecv(data []byte, fds []int, value *rpcvalue.Value) {
	var wire *rpcvalue.Value
	if value != nil {
		wire = value
	} else {
		v, err := c.codec.Deserialize(data)
		if err != nil {
			c.ctx.logDropped("rpccontext: malformed frame bytes: %v", err)
			return
		}
		wire = v
		logger.Debug("frame received", logger.BytesRead(len(data)), logger.FDCount(len(fds)), logger.Codec(c.codec.Name()))
	}

	f, err := rpcframe.Unmarshal(wire)
	wire.Release()
	if err != nil {
		c.ctx.logDropped("rpccontext: %v", err)
		return
	}

	c.route(f)
}

func (c *Connection) route(f *rpcframe.Frame) {
	switch {
	case f.Namespace == rpcframe.NamespaceRPC && f.Name == rpcframe.NameCall:
		c.ctx.handleCall(c, f)
	case f.Namespace == rpcframe.NamespaceRPC && (f.Name == rpcframe.NameResponse || f.Name == rpcframe.NameFragment || f.Name == rpcframe.NameError):
		if err := c.outbound.Dispatch(f); err != nil {
			c.ctx.logDropped("rpccontext: %v", err)
		}
	case f.Namespace == rpcframe.NamespaceRPC && f.Name == rpcframe.NameEnd:
		c.routeEnd(f)
	case f.Namespace == rpcframe.NamespaceRPC && f.Name == rpcframe.NameContinue:
		c.routeContinue(f)
	case f.Namespace == rpcframe.NamespaceEvents && f.Name == rpcframe.NameEvent:
		c.routeEvent(f)
	case f.Namespace == rpcframe.NamespaceEvents && f.Name == rpcframe.NameSubscribe:
		c.routeSubscription(f, true)
	case f.Namespace == rpcframe.NamespaceEvents && f.Name == rpcframe.NameUnsubscribe:
		c.routeSubscription(f, false)
	default:
		c.ctx.logDropped("rpccontext: unrecognized frame %s.%s", f.Namespace, f.Name)
		f.Release()
	}
}

// routeEnd disambiguates spec §4.2's dual meaning for rpc.end: a normal
// end-of-stream for a call we initiated (found in outbound), or a client
// abort-stream for a call we are servicing (found in inbound).
func (c *Connection) routeEnd(f *rpcframe.Frame) {
	if _, ok := c.outbound.Lookup(f.ID); ok {
		if err := c.outbound.Dispatch(f); err != nil {
			c.ctx.logDropped("rpccontext: %v", err)
		}
		return
	}
	c.inboundMu.Lock()
	cookie, ok := c.inbound[f.ID]
	c.inboundMu.Unlock()
	if !ok {
		c.ctx.logDropped("rpccontext: spurious end for id %s", f.ID)
		f.Release()
		return
	}
	cookie.Abort()
	f.Release()
}

func (c *Connection) routeContinue(f *rpcframe.Frame) {
	defer f.Release()
	c.inboundMu.Lock()
	cookie, ok := c.inbound[f.ID]
	c.inboundMu.Unlock()
	if !ok {
		c.ctx.logDropped("rpccontext: spurious continue for id %s", f.ID)
		return
	}
	seqnoVal, ok := f.Args.DictGet("seqno")
	if !ok {
		c.ctx.logDropped("rpccontext: continue frame missing seqno")
		return
	}
	cookie.Continue(seqnoVal.UInt64Value())
}

func (c *Connection) routeEvent(f *rpcframe.Frame) {
	defer f.Release()
	args := f.Args
	path, ok1 := args.DictGet("path")
	iface, ok2 := args.DictGet("interface")
	name, ok3 := args.DictGet("name")
	if !ok1 || !ok2 || !ok3 {
		c.ctx.logDropped("rpccontext: malformed event frame")
		return
	}
	eventArgs, _ := args.DictGet("args")
	key := rpcevent.Key{Path: path.StringValue(), Interface: iface.StringValue(), Name: name.StringValue()}
	logger.Debug("event received", logger.Path(key.Path), logger.Interface(key.Interface), logger.Event(key.Name))
	c.events.Dispatch(key, eventArgs)
}

func (c *Connection) routeSubscription(f *rpcframe.Frame, subscribe bool) {
	defer f.Release()
	if f.Args.Kind() != rpcvalue.KindArray {
		return
	}
	c.serverSubsMu.Lock()
	defer c.serverSubsMu.Unlock()
	f.Args.ArrayEach(func(_ int, item *rpcvalue.Value) bool {
		path, _ := item.DictGet("path")
		iface, _ := item.DictGet("interface")
		name, _ := item.DictGet("name")
		if path == nil || iface == nil || name == nil {
			return true
		}
		key := rpcevent.Key{Path: path.StringValue(), Interface: iface.StringValue(), Name: name.StringValue()}
		if subscribe {
			c.serverSubs[key] = true
		} else {
			delete(c.serverSubs, key)
		}
		return true
	})
}

// IsSubscribed reports whether the remote peer has subscribed to key on
// this connection (used by Context.Emit to fan events out selectively).
func (c *Connection) IsSubscribed(key rpcevent.Key) bool {
	c.serverSubsMu.Lock()
	defer c.serverSubsMu.Unlock()
	return c.serverSubs[key]
}

// registerCookie tracks a streaming (or otherwise still-alive) cookie so
// inbound continue/end frames can reach it.
func (c *Connection) registerCookie(cookie *rpccall.Cookie) {
	c.inboundMu.Lock()
	c.inbound[cookie.ID] = cookie
	c.inboundMu.Unlock()
}

// forgetCookie removes a completed cookie from the inbound table.
func (c *Connection) forgetCookie(id string) {
	c.inboundMu.Lock()
	delete(c.inbound, id)
	c.inboundMu.Unlock()
}
