// Package rpcevent implements the subscription table and property-watch
// layer from spec §4.4, grounded directly on portmap.Registry's
// registryKey{prog,vers,prot}-keyed map (teacher, since deleted — see
// DESIGN.md; formerly internal/adapter/nfs/portmap/registry.go): same
// shape (tuple struct key, RWMutex, set/unset/get), repurposed to a
// (path, interface, name) key with integer refcounts instead of protocol
// mappings.
package rpcevent

import (
	"sync"

	"github.com/twoporeguys/go-librpc/internal/logger"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// Key identifies one event source: a (path, interface, name) triple (spec
// §4.4).
type Key struct {
	Path      string
	Interface string
	Name      string
}

// Handler is invoked for each matching events.event frame. It must not
// retain args beyond the call without Retaining it.
type Handler func(args *rpcvalue.Value)

// WireSubscriber sends events.subscribe/unsubscribe frames to the peer
// holding the real event source; rpccontext supplies the concrete
// connection-backed implementation.
type WireSubscriber interface {
	Subscribe(keys []Key) error
	Unsubscribe(keys []Key) error
}

type subscription struct {
	refcount int
	handlers []Handler
}

// Table is a connection-scoped subscription table keyed by
// (path, interface, name) (spec §4.4). The first registration for a key
// sends events.subscribe; later ones only bump the refcount. Dropping the
// last handler sends events.unsubscribe.
type Table struct {
	mu   sync.RWMutex
	subs map[Key]*subscription
	wire WireSubscriber
}

// NewTable returns an empty subscription table that sends subscribe/
// unsubscribe frames through wire.
func NewTable(wire WireSubscriber) *Table {
	return &Table{subs: make(map[Key]*subscription), wire: wire}
}

// Subscribe registers handler for key. Returns the refcount after
// registration; a return value of 1 means this call triggered the wire
// subscribe.
func (t *Table) Subscribe(key Key, handler Handler) (int, error) {
	t.mu.Lock()
	s, ok := t.subs[key]
	if !ok {
		s = &subscription{}
		t.subs[key] = s
	}
	s.refcount++
	s.handlers = append(s.handlers, handler)
	first := s.refcount == 1
	t.mu.Unlock()

	if first {
		if err := t.wire.Subscribe([]Key{key}); err != nil {
			t.mu.Lock()
			s.refcount--
			s.handlers = s.handlers[:len(s.handlers)-1]
			if s.refcount == 0 {
				delete(t.subs, key)
			}
			t.mu.Unlock()
			return 0, err
		}
	}
	t.mu.RLock()
	rc := s.refcount
	t.mu.RUnlock()
	logger.Debug("subscribed", logger.Path(key.Path), logger.Interface(key.Interface), logger.Event(key.Name), logger.RefCount(rc))
	return rc, nil
}

// Unsubscribe drops one handler registration for key. Once the refcount
// reaches zero the key is removed and events.unsubscribe is sent.
func (t *Table) Unsubscribe(key Key) error {
	t.mu.Lock()
	s, ok := t.subs[key]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	s.refcount--
	if len(s.handlers) > 0 {
		s.handlers = s.handlers[:len(s.handlers)-1]
	}
	last := s.refcount <= 0
	rc := s.refcount
	if last {
		delete(t.subs, key)
	}
	t.mu.Unlock()

	logger.Debug("unsubscribed", logger.Path(key.Path), logger.Interface(key.Interface), logger.Event(key.Name), logger.RefCount(rc))
	if last {
		return t.wire.Unsubscribe([]Key{key})
	}
	return nil
}

// Dispatch delivers an inbound events.event frame to every handler
// registered for its (path, interface, name). args is not retained: each
// handler borrows it for the duration of its call (see Handler).
func (t *Table) Dispatch(key Key, args *rpcvalue.Value) {
	t.mu.RLock()
	s, ok := t.subs[key]
	var handlers []Handler
	if ok {
		handlers = append(handlers, s.handlers...)
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(args)
	}
}

// Count returns the current refcount for key, or 0 if unsubscribed.
func (t *Table) Count(key Key) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.subs[key]; ok {
		return s.refcount
	}
	return 0
}
