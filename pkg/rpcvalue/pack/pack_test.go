package pack

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

func TestPackAtoms(t *testing.T) {
	v, err := Pack("s", "hello")
	require.NoError(t, err)
	require.Equal(t, rpcvalue.KindString, v.Kind())
	require.Equal(t, "hello", v.StringValue())
}

func TestPackArrayMixedIndexing(t *testing.T) {
	v, err := Pack("[s,2:i,s]", "a", int64(42), "c")
	require.NoError(t, err)
	require.Equal(t, 4, v.ArrayLen())

	e0, _ := v.ArrayGet(0)
	require.Equal(t, "a", e0.StringValue())
	e1, _ := v.ArrayGet(1)
	require.Equal(t, rpcvalue.KindNull, e1.Kind())
	e2, _ := v.ArrayGet(2)
	require.Equal(t, int64(42), e2.Int64Value())
	e3, _ := v.ArrayGet(3)
	require.Equal(t, "c", e3.StringValue())
}

func TestPackDict(t *testing.T) {
	v, err := Pack("{i,s}", "a", int64(1), "name", "val")
	require.NoError(t, err)
	a, ok := v.DictGet("a")
	require.True(t, ok)
	require.Equal(t, int64(1), a.Int64Value())
	name, ok := v.DictGet("name")
	require.True(t, ok)
	require.Equal(t, "val", name.StringValue())
}

func TestPackDictRuntimeKey(t *testing.T) {
	v, err := Pack("{i}", "dyn", int64(7))
	require.NoError(t, err)
	got, ok := v.DictGet("dyn")
	require.True(t, ok)
	require.Equal(t, int64(7), got.Int64Value())
}

func TestPackNestedFrame(t *testing.T) {
	v, err := Pack("{s,s,s,v}", "path", "/obj", "interface", "com.example.Iface", "method", "echo", "args", rpcvalue.String("hi"))
	require.NoError(t, err)
	require.Equal(t, 4, v.DictLen())
}

func TestRoundTripPackUnpack(t *testing.T) {
	v, err := Pack("[i,s,b]", int64(7), "x", true)
	require.NoError(t, err)

	var i int64
	var s string
	var b bool
	require.NoError(t, Unpack(v, "[i,s,b]", &i, &s, &b))
	require.Equal(t, int64(7), i)
	require.Equal(t, "x", s)
	require.Equal(t, true, b)
}

func TestUnpackSkipAndRest(t *testing.T) {
	v, err := Pack("[i,s,i,i]", int64(1), "skip-me", int64(2), int64(3))
	require.NoError(t, err)

	var first int64
	var rest *rpcvalue.Value
	require.NoError(t, Unpack(v, "[i,*,R]", &first, &rest))
	require.Equal(t, int64(1), first)
	require.Equal(t, 2, rest.ArrayLen())
	e0, _ := rest.ArrayGet(0)
	require.Equal(t, int64(2), e0.Int64Value())
}

func TestPackErrorFreesPartial(t *testing.T) {
	_, err := Pack("[s,i]", "ok", "not-an-int")
	require.Error(t, err)
}

func TestUnpackMissingDictKey(t *testing.T) {
	v, _ := Pack("{i}", "a", int64(1))
	var out int64
	err := Unpack(v, "{i}", "b", &out)
	require.Error(t, err)
}
