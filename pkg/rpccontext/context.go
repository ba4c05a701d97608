// Package rpccontext implements the server-side Context from spec §4.6: an
// internal worker pool, connection lifecycle (Bind/Pause/Resume/Close),
// and the glue between inbound rpc.call frames and the instance tree.
// Grounded step-for-step on pkg/adapter/base.go's BaseAdapter (teacher,
// since deleted — see DESIGN.md): ServeWithFactory's accept loop
// generalizes to a transport-agnostic dispatch loop; initiateShutdown/
// gracefulShutdown/forceCloseConnections generalize to the five-step close
// sequence below.
package rpccontext

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/twoporeguys/go-librpc/internal/logger"
	"github.com/twoporeguys/go-librpc/pkg/rpccall"
	"github.com/twoporeguys/go-librpc/pkg/rpcevent"
	"github.com/twoporeguys/go-librpc/pkg/rpcframe"
	"github.com/twoporeguys/go-librpc/pkg/rpcserializer"
	"github.com/twoporeguys/go-librpc/pkg/rpcserver"
	"github.com/twoporeguys/go-librpc/pkg/rpctransport"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// Context owns the instance tree, the shared worker pool, and every
// connection bound to it (spec §4.6).
type Context struct {
	Tree     *rpcserver.Tree
	Builtins *rpcserver.Builtins
	Hooks    rpcserver.Hooks
	Codec    rpcserializer.Codec // default serializer for byte-mode transports

	pool *pool

	mu          sync.Mutex
	closed      bool
	listeners   []rpctransport.Listener
	connections map[*Connection]struct{}
	wg          sync.WaitGroup

	metrics *Metrics
}

// Options configures a new Context.
type Options struct {
	Workers int
	Codec   rpcserializer.Codec
	Metrics *Metrics
}

// New constructs a Context with an empty instance tree.
func New(opts Options) *Context {
	tree := rpcserver.NewTree()
	c := &Context{
		Tree:        tree,
		Builtins:    rpcserver.NewBuiltins(tree),
		Codec:       opts.Codec,
		pool:        newPool(opts.Workers),
		connections: make(map[*Connection]struct{}),
		metrics:     opts.Metrics,
	}
	return c
}

func (c *Context) logDropped(format string, args ...any) {
	logger.Warnf(format, args...)
	if c.metrics != nil {
		c.metrics.DroppedFrames.Inc()
	}
}

// Bind listens on uri via the default transport registry and accepts
// connections onto this context until Close.
func (c *Context) Bind(uri string, params map[string]string) error {
	ln, err := rpctransport.Listen(uri, params)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ln.Close()
		return fmt.Errorf("rpccontext: context is closed")
	}
	c.listeners = append(c.listeners, ln)
	c.mu.Unlock()

	scheme := ""
	if u, err := url.Parse(uri); err == nil {
		scheme = u.Scheme
	}
	logger.Info("transport bound", logger.URI(uri), logger.Transport(scheme))
	c.wg.Add(1)
	go c.acceptLoop(ln)
	return nil
}

func (c *Context) acceptLoop(ln rpctransport.Listener) {
	defer c.wg.Done()
	for {
		conn, err := ln.Accept(context.Background())
		if err != nil {
			return
		}
		c.adopt(conn)
	}
}

// adopt wraps an accepted or dialed rpctransport.Conn in a Connection and
// tracks it for Close's connection-abort step.
func (c *Context) adopt(tc rpctransport.Conn) *Connection {
	codec := c.Codec
	if tc.Flags().Has(rpctransport.NoSerialize) {
		codec = nil
	}
	conn := newConnection(c, tc, codec)

	c.mu.Lock()
	c.connections[conn] = struct{}{}
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.ActiveConnections.Inc()
	}
	if creds, ok := tc.Credentials(); ok {
		logger.Debug("connection adopted", logger.ClientID(conn.ID()), logger.Credentials(fmt.Sprintf("uid=%d gid=%d pid=%d", creds.UID, creds.GID, creds.PID)))
	} else {
		logger.Debug("connection adopted", logger.ClientID(conn.ID()))
	}
	return conn
}

// Connect dials uri and adopts the resulting connection onto this context.
func (c *Context) Connect(ctx context.Context, uri string, params map[string]string) (*Connection, error) {
	tc, err := rpctransport.Connect(ctx, uri, params)
	if err != nil {
		return nil, err
	}
	return c.adopt(tc), nil
}

// Pause suspends dispatch: queued and future calls wait without running
// (spec §4.6).
func (c *Context) Pause() { c.pool.pause() }

// Resume releases dispatch, draining the queue FIFO (spec §4.6).
func (c *Context) Resume() { c.pool.resumeDispatch() }

// Close performs the five-step close sequence from spec §4.6: (1) set the
// closed flag so no new calls are accepted, (2) drain the worker pool,
// (3) signal each connection's abort path, (4) join the transport accept
// loops, (5) the Context's own refcount is the caller's responsibility
// (Go's GC in place of the original's manual refcounting).
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	listeners := c.listeners
	conns := make([]*Connection, 0, len(c.connections))
	for conn := range c.connections {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	c.pool.close()

	for _, conn := range conns {
		conn.Close()
	}

	for _, ln := range listeners {
		ln.Close()
	}
	c.wg.Wait()
	return nil
}

// handleCall services one inbound rpc.call frame: resolves the target
// member from the instance tree, runs the pre-hook, dispatches the method
// body onto the worker pool, and sends the result (spec §4.3's "Inbound
// cookie", §4.5's pre/post hooks).
func (c *Context) handleCall(conn *Connection, f *rpcframe.Frame) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		f.Release()
		errVal := rpcvalue.NewError(rpccall.ErrConnectionClosed, rpccall.Message(rpccall.ErrConnectionClosed), nil, nil)
		_ = conn.SendFrame(rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameError, f.ID, errVal))
		return
	}
	args := f.Args
	path, _ := args.DictGet("path")
	ifaceVal, _ := args.DictGet("interface")
	methodVal, _ := args.DictGet("method")
	callArgs, _ := args.DictGet("args")
	id := f.ID
	// DictGet borrows; Retain each value we keep before releasing the
	// parent dict, which would otherwise free them along with it.
	if path != nil {
		path = path.Retain()
	}
	if ifaceVal != nil {
		ifaceVal = ifaceVal.Retain()
	}
	if methodVal != nil {
		methodVal = methodVal.Retain()
	}
	if callArgs != nil {
		callArgs = callArgs.Retain()
	}
	f.Release()

	if path == nil || ifaceVal == nil || methodVal == nil {
		for _, v := range []*rpcvalue.Value{path, ifaceVal, methodVal, callArgs} {
			if v != nil {
				v.Release()
			}
		}
		sendInvalid(conn, id)
		return
	}
	pathStr, ifaceStr, methodStr := path.StringValue(), ifaceVal.StringValue(), methodVal.StringValue()
	path.Release()
	ifaceVal.Release()
	methodVal.Release()

	logger.Debug("call dispatched", logger.CallID(id), logger.Path(pathStr), logger.Interface(ifaceStr), logger.Method(methodStr))

	cookie := rpccall.NewCookie(id, pathStr, ifaceStr, methodStr, "", conn, 0)
	conn.registerCookie(cookie)
	// Forget the cookie only once it actually reaches a terminal state
	// (Respond/Error/ErrorEx/End), not when the submitted closure below
	// returns — a streaming method body hands off to another goroutine
	// and returns immediately, but continue/abort frames must still route
	// to this cookie until that goroutine calls End (spec §4.3).
	cookie.OnDone(func() { conn.forgetCookie(id) })

	if c.Hooks.Pre != nil {
		if errVal := c.Hooks.Pre(pathStr, ifaceStr, methodStr, callArgs); errVal != nil {
			if callArgs != nil {
				callArgs.Release()
			}
			_ = cookie.ErrorEx(errVal)
			return
		}
	}

	member, errVal := c.resolveMethod(pathStr, ifaceStr, methodStr)
	if errVal != nil {
		if callArgs != nil {
			callArgs.Release()
		}
		_ = cookie.ErrorEx(errVal)
		return
	}

	if c.metrics != nil {
		c.metrics.CallsDispatched.Inc()
	}
	c.pool.submit(func() {
		if callArgs != nil {
			defer callArgs.Release()
		}
		result, err := member.Method(cookie, callArgs)
		if err != nil {
			logger.Warn("call failed", logger.CallID(id), logger.Method(methodStr), logger.Err(err))
			_ = cookie.Error(rpccall.ErrOther, err.Error(), nil)
			return
		}
		if result == nil {
			// StillRunning or an explicit stream: the method body itself
			// called Respond/Error/StartStream+Yield*/End.
			return
		}
		if c.Hooks.Post != nil {
			result = c.Hooks.Post(pathStr, ifaceStr, methodStr, result)
		}
		_ = cookie.Respond(result)
	})
}

func sendInvalid(conn *Connection, id string) {
	errVal := rpcvalue.NewError(rpccall.ErrInvalidResponse, rpccall.Message(rpccall.ErrInvalidResponse), nil, nil)
	_ = conn.SendFrame(rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameError, id, errVal))
}

func (c *Context) resolveMethod(path, ifaceName, methodName string) (*rpcserver.Member, *rpcvalue.Value) {
	inst, ok := c.Tree.Find(path)
	if !ok {
		return nil, rpcvalue.NewError(rpccall.ErrOther, fmt.Sprintf("no instance at %q", path), nil, nil)
	}
	iface, ok := inst.Interface(ifaceName)
	if !ok {
		if member, errVal, builtin := c.builtinMember(path, ifaceName, methodName); builtin {
			return member, errVal
		}
		return nil, rpcvalue.NewError(rpccall.ErrOther, fmt.Sprintf("instance %q has no interface %q", path, ifaceName), nil, nil)
	}
	member, ok := iface.Member(methodName)
	if !ok || member.Kind != rpcserver.MemberMethod {
		return nil, rpcvalue.NewError(rpccall.ErrOther, fmt.Sprintf("%q has no method %q", ifaceName, methodName), nil, nil)
	}
	return member, nil
}

// Emit publishes a {path, interface, name, args} event to every connection
// whose peer has subscribed to (path, interface, name). Observable.set
// (builtins.go's observableMember) calls this with a rpcserver.
// ChangedEventArgs payload to deliver the canonical Observable.changed
// event before the set call returns (spec §4.4/§4.5, §8 scenario 6).
func (c *Context) Emit(key rpcevent.Key, args *rpcvalue.Value) {
	c.mu.Lock()
	conns := make([]*Connection, 0, len(c.connections))
	for conn := range c.connections {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	delivered := 0
	for _, conn := range conns {
		if !conn.IsSubscribed(key) {
			continue
		}
		delivered++
		payload := rpcvalue.Dictionary()
		payload.DictSet("path", rpcvalue.String(key.Path))
		payload.DictSet("interface", rpcvalue.String(key.Interface))
		payload.DictSet("name", rpcvalue.String(key.Name))
		payload.DictSet("args", args.Retain())
		_ = conn.SendFrame(rpcframe.New(rpcframe.NamespaceEvents, rpcframe.NameEvent, rpcframe.NewID(), payload))
	}
	args.Release()
	if c.metrics != nil {
		c.metrics.EventsEmitted.Add(float64(delivered))
	}
}
