package rpcframe

import (
	"fmt"
	"sync"
)

// Handler processes one inbound Frame for a given connection-scoped
// context c (opaque to the router; rpccall/rpcserver supply their own
// concrete type). It takes ownership of f and must Release it when done.
type Handler func(c any, f *Frame)

// Router dispatches frames to the handler registered for their
// (namespace, name) pair, generalizing the teacher's dispatch-by-program-
// number switch to string keys (spec §4.2's six cases).
type Router struct {
	mu       sync.RWMutex
	handlers map[Key]Handler
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[Key]Handler)}
}

// Handle registers fn for the (namespace, name) pair, overwriting any
// previous registration.
func (r *Router) Handle(namespace, name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[Key{namespace, name}] = fn
}

// Dispatch routes f to its registered handler. If none is registered, f is
// released and an error is returned (the caller logs this as a malformed
// frame per spec §4.3's "dropped with a spurious response log" rule for
// frames the core cannot interpret).
func (r *Router) Dispatch(c any, f *Frame) error {
	r.mu.RLock()
	fn, ok := r.handlers[f.KeyOf()]
	r.mu.RUnlock()
	if !ok {
		f.Release()
		return fmt.Errorf("rpcframe: no handler for %s.%s", f.Namespace, f.Name)
	}
	fn(c, f)
	return nil
}

// DefaultRouter wires the nine namespace/name pairs from spec §4.2 onto the
// supplied handlers, all of which must be non-nil.
func DefaultRouter(onCall, onResponse, onFragment, onContinue, onEnd, onError, onEvent, onSubscribe, onUnsubscribe Handler) *Router {
	r := NewRouter()
	r.Handle(NamespaceRPC, NameCall, onCall)
	r.Handle(NamespaceRPC, NameResponse, onResponse)
	r.Handle(NamespaceRPC, NameFragment, onFragment)
	r.Handle(NamespaceRPC, NameContinue, onContinue)
	r.Handle(NamespaceRPC, NameEnd, onEnd)
	r.Handle(NamespaceRPC, NameError, onError)
	r.Handle(NamespaceEvents, NameEvent, onEvent)
	r.Handle(NamespaceEvents, NameSubscribe, onSubscribe)
	r.Handle(NamespaceEvents, NameUnsubscribe, onUnsubscribe)
	return r
}
