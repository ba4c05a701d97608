package rpcserver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

func buildSample() *Tree {
	tree := NewTree()
	inst := NewInstance("/svc/widget", "a widget")
	iface := NewInterface("com.example.Widget")
	size := 42
	_ = iface.AddMember(&Member{
		Name: "Size", Kind: MemberProperty, Access: AccessRead | AccessWrite,
		Get: func() (*rpcvalue.Value, error) { return rpcvalue.Int64(int64(size)), nil },
		Set: func(v *rpcvalue.Value) error { size = int(v.Int64Value()); return nil },
	})
	_ = iface.AddMember(&Member{
		Name: "Reset", Kind: MemberMethod,
		Method: func(cookie any, args *rpcvalue.Value) (*rpcvalue.Value, error) {
			size = 0
			return rpcvalue.Bool(true), nil
		},
	})
	inst.AddInterface(iface)
	_ = tree.Register(inst)
	return tree
}

func TestTreeRegisterFindUnregister(t *testing.T) {
	tree := buildSample()
	inst, ok := tree.Find("/svc/widget")
	require.True(t, ok)
	require.Equal(t, "a widget", inst.Description)

	_, ok = tree.Find("")
	require.True(t, ok, "empty path resolves to root")

	dup := NewInstance("/svc/widget", "dup")
	require.Error(t, tree.Register(dup))

	tree.Unregister("/svc/widget")
	_, ok = tree.Find("/svc/widget")
	require.False(t, ok)
}

func TestMemberKindCollisionRejected(t *testing.T) {
	iface := NewInterface("com.example.Widget")
	require.NoError(t, iface.AddMember(&Member{Name: "X", Kind: MemberMethod}))
	require.Error(t, iface.AddMember(&Member{Name: "X", Kind: MemberProperty}))
	require.NoError(t, iface.AddMember(&Member{Name: "X", Kind: MemberMethod}), "same-kind re-registration is idempotent")
}

func TestBuiltinsDiscoverableSortedByPath(t *testing.T) {
	tree := NewTree()
	_ = tree.Register(NewInstance("/b", "b"))
	_ = tree.Register(NewInstance("/a", "a"))
	b := NewBuiltins(tree)

	instances := b.GetInstances()
	require.Len(t, instances, 3) // root + a + b
	paths := make([]string, len(instances))
	for i, v := range instances {
		p, _ := v.DictGet("path")
		paths[i] = p.StringValue()
	}
	require.Equal(t, []string{"/", "/a", "/b"}, paths)
}

func TestBuiltinsIntrospectableAndObservable(t *testing.T) {
	tree := buildSample()
	b := NewBuiltins(tree)

	ifaces, err := b.GetInterfaces("/svc/widget")
	require.NoError(t, err)
	require.Contains(t, ifaces, "com.example.Widget")

	methods, err := b.GetMethods("/svc/widget", "com.example.Widget")
	require.NoError(t, err)
	require.Contains(t, methods, "Reset")

	v, err := b.Get("/svc/widget", "com.example.Widget", "Size")
	require.NoError(t, err)
	require.Equal(t, int64(42), v.Int64Value())

	require.NoError(t, b.Set("/svc/widget", "com.example.Widget", "Size", rpcvalue.Int64(7)))
	v, err = b.Get("/svc/widget", "com.example.Widget", "Size")
	require.NoError(t, err)
	require.Equal(t, int64(7), v.Int64Value())

	all, err := b.GetAll("/svc/widget", "com.example.Widget")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestBuiltinsGetRejectsWriteOnlyAccess(t *testing.T) {
	tree := NewTree()
	inst := NewInstance("/svc/x", "x")
	iface := NewInterface("com.example.X")
	_ = iface.AddMember(&Member{
		Name: "Secret", Kind: MemberProperty, Access: AccessWrite,
		Set: func(v *rpcvalue.Value) error { return nil },
	})
	inst.AddInterface(iface)
	_ = tree.Register(inst)
	b := NewBuiltins(tree)

	_, err := b.Get("/svc/x", "com.example.X", "Secret")
	require.Error(t, err)
}
