// Package rpccall implements the call engine from spec §4.3: the outbound
// call state machine, the inbound cookie handed to method bodies, and the
// UUID-keyed call table a connection uses to correlate frames with
// in-flight calls. Grounded on pkg/adapter/base.go's ActiveConnections
// sync.Map-by-address pattern (teacher, since deleted — see DESIGN.md),
// generalized to a map[string]*Call behind sync.RWMutex: unlike the
// TCP-accept case this lookup/insert pattern is low-churn and read-mostly
// once warmed, matching the teacher's own portmap.Registry.mappings choice
// of plain mutex+map over sync.Map.
package rpccall

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/twoporeguys/go-librpc/pkg/rpcframe"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// State is a position in the outbound call state machine (spec §4.3).
type State int

const (
	StateInProgress State = iota
	StateMoreAvailable
	StateDone
	StateError
	StateAborted
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "InProgress"
	case StateMoreAvailable:
		return "MoreAvailable"
	case StateDone:
		return "Done"
	case StateError:
		return "Error"
	case StateAborted:
		return "Aborted"
	case StateEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

func terminal(s State) bool {
	switch s {
	case StateDone, StateError, StateAborted, StateEnded:
		return true
	default:
		return false
	}
}

// FrameSender is the minimal capability a Call needs from its owning
// connection: the ability to push a Frame out over the wire. rpccontext
// supplies the concrete connection type; this package only depends on the
// capability.
type FrameSender interface {
	SendFrame(f *rpcframe.Frame) error
}

// FragmentHandler receives one streamed element (spec §4.3's "fragment"
// frame). It must not retain the Value beyond the call; Retain it if it
// does.
type FragmentHandler func(seqno uint64, fragment *rpcvalue.Value)

// Call is one outbound request's client-side handle (spec §4.3).
type Call struct {
	ID   string
	conn FrameSender

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	result   *rpcvalue.Value
	errVal   *rpcvalue.Value
	lastAck  uint64
	prefetch uint64 // 0 means unlimited

	onFragment FragmentHandler
}

// NewCall allocates a fresh outbound call bound to conn (spec §4.3: "Every
// outbound call is assigned a fresh UUID"). prefetch of 0 means unlimited.
func NewCall(conn FrameSender, prefetch uint64, onFragment FragmentHandler) *Call {
	c := &Call{
		ID:         uuid.NewString(),
		conn:       conn,
		state:      StateInProgress,
		prefetch:   prefetch,
		onFragment: onFragment,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the call's current state.
func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the final value once State() == Done. Callers must check
// State first; Result is nil otherwise.
func (c *Call) Result() *rpcvalue.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Err returns the terminal error value once State() == Error. nil
// otherwise.
func (c *Call) Err() *rpcvalue.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Wait blocks until the call leaves InProgress/MoreAvailable (spec §4.3:
// "wait blocks the caller until state leaves InProgress").
func (c *Call) Wait() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !terminal(c.state) {
		c.cond.Wait()
	}
	return c.state
}

// WaitTimeout is Wait's timed variant: on deadline it transitions to
// Aborted and sends an abort (end) frame (spec §4.3).
func (c *Call) WaitTimeout(ctx context.Context) State {
	done := make(chan State, 1)
	go func() { done <- c.Wait() }()
	select {
	case s := <-done:
		return s
	case <-ctx.Done():
		c.Abort()
		return StateAborted
	}
}

// Abort is idempotent; it transitions the local state to Aborted and sends
// an abort (rpc.end) frame to the peer (spec §5 "Cancellation").
func (c *Call) Abort() {
	c.mu.Lock()
	if terminal(c.state) {
		c.mu.Unlock()
		return
	}
	c.state = StateAborted
	c.cond.Broadcast()
	c.mu.Unlock()

	args := rpcvalue.Dictionary()
	args.DictSet("seqno", rpcvalue.UInt64(c.lastAck))
	_ = c.conn.SendFrame(rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameEnd, c.ID, args))
}

// onResponse delivers a terminal rpc.response frame.
func (c *Call) onResponse(v *rpcvalue.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if terminal(c.state) {
		v.Release()
		return
	}
	c.result = v
	c.state = StateDone
	c.cond.Broadcast()
}

// onError delivers a terminal rpc.error frame.
func (c *Call) onError(v *rpcvalue.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if terminal(c.state) {
		v.Release()
		return
	}
	c.errVal = v
	c.state = StateError
	c.cond.Broadcast()
}

// onEnd delivers a terminal rpc.end frame (normal end of stream).
func (c *Call) onEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if terminal(c.state) {
		return
	}
	c.state = StateEnded
	c.cond.Broadcast()
}

// onFragmentFrame delivers one rpc.fragment frame: it invokes the
// registered handler, tracks state transition to MoreAvailable, and
// replies rpc.continue once the handler returns, advancing lastAck (spec
// §4.3's "client replies continue to advance").
func (c *Call) onFragmentFrame(seqno uint64, fragment *rpcvalue.Value) {
	c.mu.Lock()
	if terminal(c.state) {
		c.mu.Unlock()
		fragment.Release()
		return
	}
	c.state = StateMoreAvailable
	c.mu.Unlock()

	if c.onFragment != nil {
		c.onFragment(seqno, fragment)
	}
	fragment.Release()

	c.mu.Lock()
	c.lastAck = seqno
	if !terminal(c.state) {
		c.state = StateInProgress
	}
	c.mu.Unlock()

	args := rpcvalue.Dictionary()
	args.DictSet("seqno", rpcvalue.UInt64(seqno))
	_ = c.conn.SendFrame(rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameContinue, c.ID, args))
}

// Table is the UUID-keyed set of in-flight outbound calls for one
// connection (spec §4.3: "connection keeps a map from UUID to Call handle
// under a reader/writer lock").
type Table struct {
	mu    sync.RWMutex
	calls map[string]*Call
}

// NewTable returns an empty call table.
func NewTable() *Table {
	return &Table{calls: make(map[string]*Call)}
}

// Register adds c to the table under c.ID.
func (t *Table) Register(c *Call) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[c.ID] = c
}

// Lookup finds the Call for id, if any.
func (t *Table) Lookup(id string) (*Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.calls[id]
	return c, ok
}

// Forget removes id from the table.
func (t *Table) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.calls, id)
}

// CloseAll transitions every outstanding call to Error with code
// CONNECTION_CLOSED (spec §4.3's error taxonomy: "transport eof mid-call;
// all outstanding calls transition to Error with this code") and empties
// the table.
func (t *Table) CloseAll() {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[string]*Call)
	t.mu.Unlock()

	for _, c := range calls {
		errVal := rpcvalue.NewError(ErrConnectionClosed, Message(ErrConnectionClosed), nil, nil)
		c.onError(errVal)
	}
}

// Dispatch routes one inbound rpc.* frame (response/fragment/continue/end/
// error) to its Call, per spec §4.3's state machine. Frames whose id does
// not correspond to an outstanding call are dropped as "spurious response"
// (logged by the caller, never raised to users, per the error taxonomy).
func (t *Table) Dispatch(f *rpcframe.Frame) error {
	c, ok := t.Lookup(f.ID)
	if !ok {
		f.Release()
		return fmt.Errorf("rpccall: spurious response for id %s", f.ID)
	}

	switch f.Name {
	case rpcframe.NameResponse:
		c.onResponse(f.Args.Retain())
		t.Forget(f.ID)
	case rpcframe.NameError:
		c.onError(f.Args.Retain())
		t.Forget(f.ID)
	case rpcframe.NameEnd:
		c.onEnd()
		t.Forget(f.ID)
	case rpcframe.NameFragment:
		seqno, frag, err := parseFragment(f.Args)
		if err != nil {
			f.Release()
			return err
		}
		c.onFragmentFrame(seqno, frag)
	default:
		f.Release()
		return fmt.Errorf("rpccall: unexpected frame name %q for outbound call", f.Name)
	}
	f.Release()
	return nil
}

func parseFragment(args *rpcvalue.Value) (uint64, *rpcvalue.Value, error) {
	if args == nil || args.Kind() != rpcvalue.KindDictionary {
		return 0, nil, fmt.Errorf("rpccall: malformed fragment frame")
	}
	seqnoVal, ok := args.DictGet("seqno")
	if !ok {
		return 0, nil, fmt.Errorf("rpccall: fragment frame missing seqno")
	}
	fragVal, ok := args.DictGet("fragment")
	if !ok {
		return 0, nil, fmt.Errorf("rpccall: fragment frame missing fragment")
	}
	return seqnoVal.UInt64Value(), fragVal.Retain(), nil
}

// Deadline computes the absolute deadline for a call given a timeout; a
// zero timeout means no deadline (spec §4.6's CallTimeout config knob).
func Deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
