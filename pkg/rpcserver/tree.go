// Package rpcserver implements the server-side instance tree from spec
// §4.5: path-addressed Instances, each exposing one or more Interfaces of
// Members, plus the built-in Discoverable/Introspectable/Observable
// interfaces materialized as views over the tree. Grounded on
// portmap.Registry again (teacher, since deleted — see DESIGN.md: path
// string key replaces the 3-tuple key) and on the teacher's NFSv4
// pseudoFS.Rebuild(shares) pattern (pkg/adapter/nfs/adapter.go) for
// computing built-ins as views rather than stored nodes.
package rpcserver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// MemberKind distinguishes Method/Property/Event members of an Interface
// (spec §4.5 "vtable of members").
type MemberKind int

const (
	MemberMethod MemberKind = iota
	MemberProperty
	MemberEvent
)

// Access is the property rights bitmap (spec §4.5: "Property access rights
// bitmap: READ | WRITE").
type Access int

const (
	AccessRead Access = 1 << iota
	AccessWrite
)

// MethodFunc is a method body. It returns a Value for an implicit respond,
// or a nil Value to hand off to the cookie (the STILL_RUNNING case):
// rpccontext then sends nothing, and the body or a goroutine it started
// answers through the cookie (passed as `any` to keep this package free of
// an rpccall import cycle).
type MethodFunc func(cookie any, args *rpcvalue.Value) (*rpcvalue.Value, error)

// PropertyGetter/PropertySetter back an Observable property member.
type PropertyGetter func() (*rpcvalue.Value, error)
type PropertySetter func(v *rpcvalue.Value) error

// Member is one entry in an Interface's vtable.
type Member struct {
	Name   string
	Kind   MemberKind
	Method MethodFunc
	Get    PropertyGetter
	Set    PropertySetter
	Access Access
}

// Interface is a named set of Members implemented by an Instance.
type Interface struct {
	Name    string
	mu      sync.RWMutex
	members map[string]*Member
}

// NewInterface returns an empty interface named name.
func NewInterface(name string) *Interface {
	return &Interface{Name: name, members: make(map[string]*Member)}
}

// AddMember registers m. Registration is idempotent on name collision for
// the same Kind; collisions across Kind fail (spec §4.5).
func (i *Interface) AddMember(m *Member) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if existing, ok := i.members[m.Name]; ok {
		if existing.Kind != m.Kind {
			return fmt.Errorf("rpcserver: member %q already registered with a different kind", m.Name)
		}
		i.members[m.Name] = m
		return nil
	}
	i.members[m.Name] = m
	return nil
}

// Member looks up a member by name.
func (i *Interface) Member(name string) (*Member, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	m, ok := i.members[name]
	return m, ok
}

// MethodNames returns the names of Method members, sorted.
func (i *Interface) MethodNames() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var names []string
	for _, m := range i.members {
		if m.Kind == MemberMethod {
			names = append(names, m.Name)
		}
	}
	sort.Strings(names)
	return names
}

// PropertyNames returns the names of Property members, sorted.
func (i *Interface) PropertyNames() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var names []string
	for _, m := range i.members {
		if m.Kind == MemberProperty {
			names = append(names, m.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Instance is one path-addressable node in the tree, exposing a set of
// Interfaces.
type Instance struct {
	Path        string
	Description string

	mu         sync.RWMutex
	interfaces map[string]*Interface
}

// NewInstance returns an instance with no interfaces registered yet.
func NewInstance(path, description string) *Instance {
	return &Instance{Path: path, Description: description, interfaces: make(map[string]*Interface)}
}

// AddInterface registers iface on the instance, overwriting any interface
// previously registered under the same name.
func (inst *Instance) AddInterface(iface *Interface) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.interfaces[iface.Name] = iface
}

// Interface looks up an interface by name.
func (inst *Instance) Interface(name string) (*Interface, bool) {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	i, ok := inst.interfaces[name]
	return i, ok
}

// InterfaceNames returns the names of registered interfaces, sorted.
func (inst *Instance) InterfaceNames() []string {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	var names []string
	for name := range inst.interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tree is the path-addressed instance registry (spec §4.5: "Lookup is by
// absolute path string").
type Tree struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	root      *Instance
}

// NewTree returns a tree with an empty root instance registered at "/".
func NewTree() *Tree {
	root := NewInstance("/", "root")
	return &Tree{
		instances: map[string]*Instance{"/": root},
		root:      root,
	}
}

// Register adds inst at its Path. Fails if the path is already occupied
// (spec §4.5).
func (t *Tree) Register(inst *Instance) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.instances[inst.Path]; ok {
		return fmt.Errorf("rpcserver: path %q already registered", inst.Path)
	}
	t.instances[inst.Path] = inst
	return nil
}

// Unregister detaches the instance at path immediately; any in-flight call
// targeting it continues to completion on its prior binding, since callers
// hold their own reference obtained from Find (spec §4.5).
func (t *Tree) Unregister(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.instances, path)
}

// Find resolves path to its Instance. An empty path returns the root
// (spec §4.5: "find_instance(NULL) returns the root").
func (t *Tree) Find(path string) (*Instance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if path == "" {
		return t.root, true
	}
	inst, ok := t.instances[path]
	return inst, ok
}

// All returns every registered instance, path-sorted (spec §4.5's
// Discoverable ordering requirement).
func (t *Tree) All() []*Instance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Instance, 0, len(t.instances))
	for _, inst := range t.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
