package rpccall

import (
	"fmt"
	"sync"
	"time"

	"github.com/twoporeguys/go-librpc/internal/logger"
	"github.com/twoporeguys/go-librpc/pkg/rpcframe"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// stillRunningT is the type of StillRunning.
type stillRunningT struct{}

// StillRunning names the STILL_RUNNING hand-off, in which a method body
// passes responsibility to another goroutine and the connection holds the
// Cookie alive until an explicit respond/error/end (spec §4.3 "Inbound
// cookie"). rpcserver.MethodFunc returns *rpcvalue.Value, so a method body
// signals the hand-off by returning a nil Value; this value itself is not
// returned or checked by the dispatcher.
var StillRunning = stillRunningT{}

// Cookie is bound to one incoming rpc.call: the target member, the
// caller's id, a reference to the connection, and the working instance
// (spec §4.3). The method body calls exactly one of Respond/Error/ErrorEx/
// (StartStream+Yield*+End), or returns a value for an implicit Respond.
type Cookie struct {
	ID       string
	Path     string
	Interface string
	Method   string
	CallerID string

	conn FrameSender

	mu        sync.Mutex
	responded bool
	streaming bool
	aborted   bool
	seqno     uint64
	lastAck   uint64
	prefetch  uint64 // 0 = unlimited
	ackCond   *sync.Cond

	onDone func()

	createdAt time.Time
}

// NewCookie allocates a cookie for one inbound call.
func NewCookie(id, path, iface, method, callerID string, conn FrameSender, prefetch uint64) *Cookie {
	c := &Cookie{
		ID: id, Path: path, Interface: iface, Method: method, CallerID: callerID,
		conn: conn, prefetch: prefetch, createdAt: time.Now(),
	}
	c.ackCond = sync.NewCond(&c.mu)
	return c
}

// OnDone registers fn to run exactly once, the moment this cookie reaches
// a terminal state (Respond/Error/ErrorEx/End). The connection layer uses
// this to release the cookie it held alive for a STILL_RUNNING method
// body (spec §4.3: "the connection must hold the cookie alive until
// explicit respond/error/end").
func (c *Cookie) OnDone(fn func()) {
	c.mu.Lock()
	c.onDone = fn
	c.mu.Unlock()
}

func (c *Cookie) fireDone() {
	c.mu.Lock()
	fn := c.onDone
	c.onDone = nil
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Cookie) markResponded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.responded {
		return fmt.Errorf("rpccall: cookie %s already responded", c.ID)
	}
	c.responded = true
	return nil
}

// Respond sends the final rpc.response frame and takes ownership of v.
func (c *Cookie) Respond(v *rpcvalue.Value) error {
	if err := c.markResponded(); err != nil {
		v.Release()
		return err
	}
	defer c.fireDone()
	logger.Debug("call responded", logger.CallID(c.ID), logger.Status("done"), logger.DurationMs(logger.Duration(c.createdAt)))
	return c.conn.SendFrame(rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameResponse, c.ID, v))
}

// Error sends a terminal rpc.error frame built from code/message/extra.
func (c *Cookie) Error(code int32, message string, extra *rpcvalue.Value) error {
	return c.ErrorEx(rpcvalue.NewError(code, message, extra, nil))
}

// ErrorEx sends a terminal rpc.error frame carrying a pre-built error
// Value, taking ownership of it.
func (c *Cookie) ErrorEx(errVal *rpcvalue.Value) error {
	if err := c.markResponded(); err != nil {
		errVal.Release()
		return err
	}
	defer c.fireDone()
	if errVal.Kind() == rpcvalue.KindError {
		logger.Warn("call errored", logger.CallID(c.ID), logger.Status("error"), logger.ErrorCode(errVal.ErrorCode()), logger.DurationMs(logger.Duration(c.createdAt)))
	}
	return c.conn.SendFrame(rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameError, c.ID, errVal))
}

// StartStream marks this cookie as a streaming responder; subsequent Yield
// calls emit rpc.fragment frames until End.
func (c *Cookie) StartStream() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.responded {
		return fmt.Errorf("rpccall: cookie %s already responded", c.ID)
	}
	c.streaming = true
	return nil
}

// ShouldAbort reports whether the client has asked to abort this call
// (spec §4.3/§5: client abort sets the server-side cookie's aborted flag;
// the next Yield fails).
func (c *Cookie) ShouldAbort() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// Abort marks the cookie aborted by the client; any in-flight or future
// Yield returns an error, and a blocked Yield wakes up to observe it.
func (c *Cookie) Abort() {
	c.mu.Lock()
	c.aborted = true
	c.ackCond.Broadcast()
	c.mu.Unlock()
}

// Continue records that the client has consumed fragments 0..ack (lastAck
// counts acknowledged fragments, so it becomes ack+1), waking any Yield
// blocked on backpressure (spec §5 "function_yield ... waking on each
// continue frame"). Called by the connection layer when an inbound
// rpc.continue frame targets this cookie.
func (c *Cookie) Continue(ack uint64) {
	c.mu.Lock()
	if ack+1 > c.lastAck {
		c.lastAck = ack + 1
	}
	c.ackCond.Broadcast()
	c.mu.Unlock()
}

// Yield emits one rpc.fragment frame, blocking while the producer-consumer
// gap reaches the client's prefetch value (spec §4.3: "Only after
// seqno - last_ack < prefetch is the server permitted to emit the next
// fragment; otherwise it blocks the producing function").
func (c *Cookie) Yield(v *rpcvalue.Value) error {
	c.mu.Lock()
	if !c.streaming {
		c.mu.Unlock()
		v.Release()
		return fmt.Errorf("rpccall: cookie %s is not streaming", c.ID)
	}
	if c.responded {
		c.mu.Unlock()
		v.Release()
		return fmt.Errorf("rpccall: cookie %s already ended", c.ID)
	}
	for c.prefetch != 0 && c.seqno-c.lastAck >= c.prefetch {
		if c.aborted {
			c.mu.Unlock()
			v.Release()
			return fmt.Errorf("rpccall: cookie %s aborted", c.ID)
		}
		c.ackCond.Wait()
	}
	if c.aborted {
		c.mu.Unlock()
		v.Release()
		return fmt.Errorf("rpccall: cookie %s aborted", c.ID)
	}
	seqno := c.seqno
	c.seqno++
	c.mu.Unlock()

	args := rpcvalue.Dictionary()
	args.DictSet("seqno", rpcvalue.UInt64(seqno))
	args.DictSet("fragment", v)
	return c.conn.SendFrame(rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameFragment, c.ID, args))
}

// End sends the terminal rpc.end frame, closing the stream opened by
// StartStream.
func (c *Cookie) End() error {
	c.mu.Lock()
	if c.responded {
		c.mu.Unlock()
		return fmt.Errorf("rpccall: cookie %s already responded", c.ID)
	}
	c.responded = true
	seqno := c.seqno
	c.mu.Unlock()
	defer c.fireDone()

	logger.Debug("call streamed", logger.CallID(c.ID), logger.Status("done"), logger.Seqno(seqno), logger.DurationMs(logger.Duration(c.createdAt)))
	args := rpcvalue.Dictionary()
	args.DictSet("seqno", rpcvalue.UInt64(seqno))
	return c.conn.SendFrame(rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameEnd, c.ID, args))
}
