// Package rpctransport implements the pluggable byte-level carrier contract
// from spec §6.1: a scheme-keyed registry of drivers, each supplying
// connect/listen/send/recv/abort/fd hooks plus a capability flag set. Only
// the abstract contract lives here; concrete drivers (loopback, unixsock,
// ws) are reference implementations of it, grounded on
// pkg/adapter.Adapter/ConnectionFactory generalized from "one adapter per
// protocol" to "one driver per URI scheme".
package rpctransport

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// Flags are capability bits a driver advertises (spec §6.1).
type Flags uint32

const (
	// NoSerialize transports exchange rpcvalue.Value references directly
	// rather than byte frames (spec §4.2); loopback and XPC-style drivers
	// set this.
	NoSerialize Flags = 1 << iota
	// Credentials transports can surface peer uid/gid/pid.
	Credentials
	// FdPassing transports can carry ancillary file descriptors alongside
	// a frame.
	FdPassing
	// NoRPCTSerialize transports skip the outer rpc.* framing entirely
	// (reserved for drivers that implement their own call semantics).
	NoRPCTSerialize
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// PeerCredentials carries uid/gid/pid surfaced by a Credentials-flagged
// transport (spec §4.2, §6.1). The core only surfaces these; it does not
// interpret them (spec §1 Non-goals: no authn/authz policy).
type PeerCredentials struct {
	UID, GID uint32
	PID      int32
}

// RecvHandler is invoked by a transport driver on its own read goroutine
// whenever a frame (or, for NoSerialize drivers, a Value) arrives. Exactly
// one of data/fds or value is populated, matching the owning driver's Flags.
type RecvHandler func(data []byte, fds []int, value *rpcvalue.Value)

// Conn is one established connection over a transport (spec §6.1).
type Conn interface {
	// Send writes one frame (and, on an FdPassing driver, ancillary fds)
	// to the peer. The core serializes concurrent callers via a
	// per-connection mutex (spec §5); drivers may assume single-writer.
	Send(data []byte, fds []int) error

	// SendValue is the NoSerialize counterpart of Send: it hands a Value
	// reference directly to the peer without going through a byte codec.
	SendValue(v *rpcvalue.Value) error

	// SetRecvHandler installs the callback invoked for each inbound frame.
	// Must be called before the driver starts delivering data.
	SetRecvHandler(h RecvHandler)

	// Abort interrupts any in-progress send/recv and causes the next
	// operation to fail. The core does not call it: Connection.Close and
	// Context.Close tear connections down through Close.
	Abort() error

	// Close releases the connection's resources. Idempotent.
	Close() error

	// Fd returns the underlying descriptor for select/poll integration,
	// or -1 if the driver has none (e.g. loopback).
	Fd() int

	// Credentials returns the peer's uid/gid/pid if the driver advertises
	// the Credentials flag; ok is false otherwise.
	Credentials() (creds PeerCredentials, ok bool)

	// Flags reports the capabilities of the driver that produced this Conn.
	Flags() Flags
}

// Listener accepts inbound connections for a bound server (spec §6.1's
// listen/server side).
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
	// Addr is the bound address in driver-specific textual form, used for
	// logging and Discoverable-adjacent diagnostics.
	Addr() string
}

// Transport is a driver registered under one or more URI schemes (spec
// §6.1).
type Transport interface {
	// Schemes lists the URI schemes this driver handles, e.g. ["unix"].
	Schemes() []string
	Flags() Flags
	Connect(ctx context.Context, uri string, params map[string]string) (Conn, error)
	Listen(uri string, params map[string]string) (Listener, error)
}

// Bus extends Transport with enumeration and reachability probing for
// system-bus-style drivers (spec §6.1's "bus sub-contract").
type Bus interface {
	Transport
	Enumerate(ctx context.Context) ([]string, error)
	Ping(ctx context.Context, address string) error
}

// Registry is a scheme -> Transport table.
type Registry struct {
	mu    sync.RWMutex
	byURI map[string]Transport
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byURI: make(map[string]Transport)}
}

// Register binds t under each of its advertised schemes, overwriting any
// driver previously registered for that scheme.
func (r *Registry) Register(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, scheme := range t.Schemes() {
		r.byURI[scheme] = t
	}
}

// Lookup resolves uri's scheme to a registered Transport.
func (r *Registry) Lookup(uri string) (Transport, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("rpctransport: parse uri %q: %w", uri, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("rpctransport: uri %q has no scheme", uri)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byURI[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("rpctransport: no driver registered for scheme %q", u.Scheme)
	}
	return t, nil
}

// Connect resolves uri's scheme in the default registry and connects.
func Connect(ctx context.Context, uri string, params map[string]string) (Conn, error) {
	t, err := Default().Lookup(uri)
	if err != nil {
		return nil, err
	}
	return t.Connect(ctx, uri, params)
}

// Listen resolves uri's scheme in the default registry and listens.
func Listen(uri string, params map[string]string) (Listener, error) {
	t, err := Default().Lookup(uri)
	if err != nil {
		return nil, err
	}
	return t.Listen(uri, params)
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	r.Register(NewLoopback())
	r.Register(NewUnixSocket())
	r.Register(NewWebSocket())
	return r
}()

// Default returns the process-wide transport registry, pre-populated with
// the loopback, unixsock, and ws drivers.
func Default() *Registry { return defaultRegistry }
