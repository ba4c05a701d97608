package rpcserver

import (
	"fmt"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// Well-known interface names (spec §6.3).
const (
	InterfaceDiscoverable   = "com.twoporeguys.librpc.Discoverable"
	InterfaceIntrospectable = "com.twoporeguys.librpc.Introspectable"
	InterfaceObservable     = "com.twoporeguys.librpc.Observable"
	InterfaceDefault        = "com.twoporeguys.librpc.Default"
)

// EventChanged is Observable's canonical property-change event name (spec
// §4.5/§6.3).
const EventChanged = "changed"

// Builtins materializes the well-known interfaces as views over t rather
// than stored nodes, so every instance answers Discoverable/Introspectable/
// Observable calls without per-instance registration (spec §4.5).
type Builtins struct {
	tree *Tree
}

// NewBuiltins wraps tree.
func NewBuiltins(tree *Tree) *Builtins {
	return &Builtins{tree: tree}
}

// GetInstances implements Discoverable.get_instances: one dictionary per
// registered instance (path + description), path-sorted (spec §4.5).
func (b *Builtins) GetInstances() []*rpcvalue.Value {
	all := b.tree.All()
	out := make([]*rpcvalue.Value, 0, len(all))
	for _, inst := range all {
		d := rpcvalue.Dictionary()
		d.DictSet("path", rpcvalue.String(inst.Path))
		d.DictSet("description", rpcvalue.String(inst.Description))
		out = append(out, d)
	}
	return out
}

// GetInterfaces implements Introspectable.get_interfaces for path.
func (b *Builtins) GetInterfaces(path string) ([]string, error) {
	inst, ok := b.tree.Find(path)
	if !ok {
		return nil, fmt.Errorf("rpcserver: no instance at %q", path)
	}
	return inst.InterfaceNames(), nil
}

// GetMethods implements Introspectable.get_methods(interface) for path.
func (b *Builtins) GetMethods(path, ifaceName string) ([]string, error) {
	inst, ok := b.tree.Find(path)
	if !ok {
		return nil, fmt.Errorf("rpcserver: no instance at %q", path)
	}
	iface, ok := inst.Interface(ifaceName)
	if !ok {
		return nil, fmt.Errorf("rpcserver: instance %q has no interface %q", path, ifaceName)
	}
	return iface.MethodNames(), nil
}

// Get implements Observable.get(name) for (path, interface).
func (b *Builtins) Get(path, ifaceName, name string) (*rpcvalue.Value, error) {
	member, err := b.property(path, ifaceName, name, AccessRead)
	if err != nil {
		return nil, err
	}
	return member.Get()
}

// Set implements Observable.set(name, value) for (path, interface).
func (b *Builtins) Set(path, ifaceName, name string, value *rpcvalue.Value) error {
	member, err := b.property(path, ifaceName, name, AccessWrite)
	if err != nil {
		return err
	}
	return member.Set(value)
}

// GetAll implements Observable.get_all(iface): every property's current
// value as {name, value} dictionaries.
func (b *Builtins) GetAll(path, ifaceName string) ([]*rpcvalue.Value, error) {
	inst, ok := b.tree.Find(path)
	if !ok {
		return nil, fmt.Errorf("rpcserver: no instance at %q", path)
	}
	iface, ok := inst.Interface(ifaceName)
	if !ok {
		return nil, fmt.Errorf("rpcserver: instance %q has no interface %q", path, ifaceName)
	}
	var out []*rpcvalue.Value
	for _, name := range iface.PropertyNames() {
		m, _ := iface.Member(name)
		v, err := m.Get()
		if err != nil {
			return nil, err
		}
		d := rpcvalue.Dictionary()
		d.DictSet("name", rpcvalue.String(name))
		d.DictSet("value", v)
		out = append(out, d)
	}
	return out, nil
}

func (b *Builtins) property(path, ifaceName, name string, need Access) (*Member, error) {
	inst, ok := b.tree.Find(path)
	if !ok {
		return nil, fmt.Errorf("rpcserver: no instance at %q", path)
	}
	iface, ok := inst.Interface(ifaceName)
	if !ok {
		return nil, fmt.Errorf("rpcserver: instance %q has no interface %q", path, ifaceName)
	}
	m, ok := iface.Member(name)
	if !ok || m.Kind != MemberProperty {
		return nil, fmt.Errorf("rpcserver: %q has no property %q", ifaceName, name)
	}
	if m.Access&need == 0 {
		return nil, fmt.Errorf("rpcserver: property %q does not permit this access", name)
	}
	return m, nil
}

// ChangedEventArgs builds the {interface, name, value} payload for the
// canonical Observable.changed event (spec §6.3).
func ChangedEventArgs(ifaceName, name string, value *rpcvalue.Value) *rpcvalue.Value {
	d := rpcvalue.Dictionary()
	d.DictSet("interface", rpcvalue.String(ifaceName))
	d.DictSet("name", rpcvalue.String(name))
	d.DictSet("value", value)
	return d
}

// PreHook runs before a method body; if it returns a non-nil error Value,
// the body is skipped and the error is sent instead (spec §4.5).
type PreHook func(path, ifaceName, method string, args *rpcvalue.Value) *rpcvalue.Value

// PostHook runs on the result a method body returns, before that result is
// sent as the response; its return value replaces the result (spec §4.5).
// It does not run for calls the body answers itself through the cookie
// (Respond/Error/ErrorEx or StartStream+Yield+End).
type PostHook func(path, ifaceName, method string, result *rpcvalue.Value) *rpcvalue.Value

// Hooks holds the optional context-level pre/post call hooks.
type Hooks struct {
	Pre  PreHook
	Post PostHook
}
