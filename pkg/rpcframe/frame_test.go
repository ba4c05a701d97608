package rpcframe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	args := rpcvalue.Dictionary()
	args.DictSet("path", rpcvalue.String("/svc/widget"))
	id := NewID()

	f := New(NamespaceRPC, NameCall, id, args)
	wire := Marshal(f)
	defer wire.Release()

	got, err := Unmarshal(wire)
	require.NoError(t, err)
	defer got.Release()

	require.Equal(t, NamespaceRPC, got.Namespace)
	require.Equal(t, NameCall, got.Name)
	require.Equal(t, id, got.ID)
	path, ok := got.Args.DictGet("path")
	require.True(t, ok)
	require.Equal(t, "/svc/widget", path.StringValue())

	f.Release()
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	_, err := Unmarshal(rpcvalue.String("not a dict"))
	require.Error(t, err)

	d := rpcvalue.Dictionary()
	defer d.Release()
	d.DictSet("namespace", rpcvalue.String("rpc"))
	_, err = Unmarshal(d)
	require.Error(t, err)
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()
	var got *Frame
	r.Handle(NamespaceRPC, NameCall, func(c any, f *Frame) {
		got = f
	})

	args := rpcvalue.Dictionary()
	f := New(NamespaceRPC, NameCall, NewID(), args)
	require.NoError(t, r.Dispatch(nil, f))
	require.Same(t, f, got)
	f.Release()

	unknown := New(NamespaceEvents, NameEvent, NewID(), rpcvalue.Dictionary())
	require.Error(t, r.Dispatch(nil, unknown))
}
