// Package rpcframe implements the connection protocol's wire shape (spec
// §4.2): every frame is a Dictionary with exactly the keys namespace, name,
// id, args, and dispatch is keyed by the (namespace, name) pair. Grounded on
// the teacher's dispatch-by-program-number switch (the former
// internal/adapter/nfs/portmap/server.go, since deleted — see DESIGN.md),
// generalized from RPC program numbers to string pairs.
package rpcframe

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// Namespace/name pairs recognized by the core (spec §4.2's table).
const (
	NamespaceRPC    = "rpc"
	NamespaceEvents = "events"

	NameCall        = "call"
	NameResponse    = "response"
	NameFragment    = "fragment"
	NameContinue    = "continue"
	NameEnd         = "end"
	NameError       = "error"
	NameEvent       = "event"
	NameSubscribe   = "subscribe"
	NameUnsubscribe = "unsubscribe"
)

// Frame is the connection protocol's envelope. Args carries the
// namespace/name-specific payload described in spec §4.2's table; the
// caller interprets it according to (Namespace, Name).
type Frame struct {
	Namespace string
	Name      string
	ID        string
	Args      *rpcvalue.Value
}

// Key identifies the dispatch case for a Frame, the (namespace, name) pair
// the router switches on.
type Key struct {
	Namespace, Name string
}

// KeyOf returns f's dispatch key.
func (f *Frame) KeyOf() Key { return Key{f.Namespace, f.Name} }

// NewID returns a fresh call/event correlation id (spec §3.5, §4.2).
func NewID() string { return uuid.NewString() }

// New builds a Frame, taking ownership of args (the caller must not release
// it after this call; Marshal/routing release it in turn).
func New(namespace, name, id string, args *rpcvalue.Value) *Frame {
	return &Frame{Namespace: namespace, Name: name, ID: id, Args: args}
}

// Marshal converts f into its wire Dictionary: {namespace, name, id, args}.
// The returned Value owns a new reference to f.Args; f retains its own.
func Marshal(f *Frame) *rpcvalue.Value {
	d := rpcvalue.Dictionary()
	d.DictSet("namespace", rpcvalue.String(f.Namespace))
	d.DictSet("name", rpcvalue.String(f.Name))
	d.DictSet("id", rpcvalue.String(f.ID))
	args := f.Args
	if args == nil {
		args = rpcvalue.Dictionary()
	} else {
		args = args.Retain()
	}
	d.DictSet("args", args)
	return d
}

// Unmarshal extracts a Frame from a wire Dictionary. It does not validate
// the args shape for the given (namespace, name) pair — that is the
// router/call engine's responsibility, since only they know which shape
// applies (spec §4.2's per-pair "args shape" column).
func Unmarshal(v *rpcvalue.Value) (*Frame, error) {
	if v == nil || v.Kind() != rpcvalue.KindDictionary {
		return nil, fmt.Errorf("rpcframe: frame must be a Dictionary")
	}
	ns, ok := v.DictGet("namespace")
	if !ok || ns.Kind() != rpcvalue.KindString {
		return nil, fmt.Errorf("rpcframe: missing or malformed %q", "namespace")
	}
	name, ok := v.DictGet("name")
	if !ok || name.Kind() != rpcvalue.KindString {
		return nil, fmt.Errorf("rpcframe: missing or malformed %q", "name")
	}
	id, ok := v.DictGet("id")
	if !ok || id.Kind() != rpcvalue.KindString {
		return nil, fmt.Errorf("rpcframe: missing or malformed %q", "id")
	}
	args, ok := v.DictGet("args")
	if !ok {
		return nil, fmt.Errorf("rpcframe: missing %q", "args")
	}
	return &Frame{
		Namespace: ns.StringValue(),
		Name:      name.StringValue(),
		ID:        id.StringValue(),
		Args:      args.Retain(),
	}, nil
}

// Release drops the Frame's reference to its args. Safe to call on a nil
// Frame or one with nil Args.
func (f *Frame) Release() {
	if f == nil || f.Args == nil {
		return
	}
	f.Args.Release()
}
