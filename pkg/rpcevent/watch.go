package rpcevent

import (
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// ChangedEvent is the Observable interface's canonical property-change
// event name (spec §4.5: "changed is the canonical property-change
// event").
const ChangedEvent = "changed"

// PropertyHandler is invoked with the new value of a watched property.
type PropertyHandler func(value *rpcvalue.Value)

// Watcher builds property watch on top of a subscription Table (spec
// §4.4: "the first watcher for (path, interface, property) subscribes to
// changed on Observable for that (path, interface) and filters incoming
// events by property name").
type Watcher struct {
	table *Table
}

// NewWatcher wraps table for property-watch use.
func NewWatcher(table *Table) *Watcher {
	return &Watcher{table: table}
}

// Watch registers handler for property changes to name on (path,
// interface). Internally this subscribes to Observable.changed for
// (path, interface) and filters by property name inside the dispatch
// callback the subscription table invokes.
func (w *Watcher) Watch(path, iface, name string, handler PropertyHandler) error {
	key := Key{Path: path, Interface: iface, Name: ChangedEvent}
	_, err := w.table.Subscribe(key, func(args *rpcvalue.Value) {
		if args == nil || args.Kind() != rpcvalue.KindDictionary {
			return
		}
		propVal, ok := args.DictGet("name")
		if !ok || propVal.Kind() != rpcvalue.KindString || propVal.StringValue() != name {
			return
		}
		newVal, ok := args.DictGet("value")
		if !ok {
			return
		}
		handler(newVal)
	})
	return err
}

// Unwatch drops the watch established by Watch; once the last property
// watcher on (path, interface) is removed the underlying changed
// subscription is dropped too.
func (w *Watcher) Unwatch(path, iface string) error {
	return w.table.Unsubscribe(Key{Path: path, Interface: iface, Name: ChangedEvent})
}
