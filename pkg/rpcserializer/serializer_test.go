package rpcserializer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

func sampleDict() *rpcvalue.Value {
	d := rpcvalue.Dictionary()
	d.DictSet("a", rpcvalue.Int64(1))
	arr := rpcvalue.Array()
	arr.ArrayAppend(rpcvalue.Bool(true))
	arr.ArrayAppend(rpcvalue.Null())
	arr.ArrayAppend(rpcvalue.String("x"))
	d.DictSet("b", arr)
	c := rpcvalue.Dictionary()
	c.DictSet("k", rpcvalue.Double(2.5))
	d.DictSet("c", c)
	return d
}

func TestRoundTripAllCodecs(t *testing.T) {
	for _, name := range []string{"json", "msgpack", "yaml", "xdr"} {
		t.Run(name, func(t *testing.T) {
			v := sampleDict()
			b, err := Serialize(name, v)
			require.NoError(t, err)
			got, err := Deserialize(name, b)
			require.NoError(t, err)
			require.True(t, rpcvalue.Equal(v, got), "round trip mismatch for %s: %s vs %s", name, v.Describe(), got.Describe())
		})
	}
}

func TestRoundTripScalars(t *testing.T) {
	values := []*rpcvalue.Value{
		rpcvalue.Null(),
		rpcvalue.Bool(true),
		rpcvalue.Int64(-1234),
		rpcvalue.UInt64(18446744073709551615),
		rpcvalue.Double(3.14159),
		rpcvalue.Date(1700000000),
		rpcvalue.String("hello"),
		rpcvalue.Binary([]byte{1, 2, 3, 0, 255}, nil),
	}
	for _, name := range []string{"json", "msgpack", "yaml", "xdr"} {
		for _, v := range values {
			got, err := Deserialize(name, mustSerialize(t, name, v))
			require.NoError(t, err)
			require.True(t, rpcvalue.Equal(v, got), "%s round trip of %s", name, v.Describe())
		}
	}
}

func TestRoundTripError(t *testing.T) {
	e := rpcvalue.NewError(22, "bad", rpcvalue.String("extra"), nil)
	for _, name := range []string{"json", "msgpack", "yaml", "xdr"} {
		got, err := Deserialize(name, mustSerialize(t, name, e))
		require.NoError(t, err)
		require.Equal(t, rpcvalue.KindError, got.Kind())
		require.Equal(t, int32(22), got.ErrorCode())
		require.Equal(t, "bad", got.ErrorMessage())
	}
}

func mustSerialize(t *testing.T, name string, v *rpcvalue.Value) []byte {
	t.Helper()
	b, err := Serialize(name, v)
	require.NoError(t, err)
	return b
}

func TestUnknownCodec(t *testing.T) {
	_, err := Serialize("bogus", rpcvalue.Null())
	require.Error(t, err)
}
