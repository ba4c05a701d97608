package query

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

func buildSample() *rpcvalue.Value {
	d := rpcvalue.Dictionary()
	d.DictSet("a", rpcvalue.Int64(1))
	arr := rpcvalue.Array()
	arr.ArrayAppend(rpcvalue.Bool(true))
	arr.ArrayAppend(rpcvalue.Null())
	arr.ArrayAppend(rpcvalue.String("x"))
	d.DictSet("b", arr)
	inner := rpcvalue.Dictionary()
	inner.DictSet("k", rpcvalue.Double(2.5))
	d.DictSet("c", inner)
	return d
}

func TestPathGetSetDeleteContains(t *testing.T) {
	v := buildSample()
	require.True(t, Contains(v, "c.k"))
	got := Get(v, "c.k", nil)
	require.Equal(t, 2.5, got.DoubleValue())

	require.NoError(t, Set(v, "c.k", rpcvalue.Int64(9), true))
	require.Equal(t, int64(9), Get(v, "c.k", nil).Int64Value())

	require.True(t, Delete(v, "c.k"))
	require.False(t, Contains(v, "c.k"))
	require.Equal(t, rpcvalue.Int64(42).Int64Value(), Get(v, "missing", rpcvalue.Int64(42)).Int64Value())
}

func TestDeleteArrayElementShiftsDown(t *testing.T) {
	v := buildSample()
	require.True(t, Contains(v, "b.1"))
	require.True(t, Delete(v, "b.0"))
	require.False(t, Contains(v, "b.2"))
	require.Equal(t, rpcvalue.KindNull, Get(v, "b.0", nil).Kind())
	require.Equal(t, "x", Get(v, "b.1", nil).StringValue())
}

func TestSetCreatesIntermediateContainers(t *testing.T) {
	v := rpcvalue.Dictionary()
	require.NoError(t, Set(v, "x.y.0", rpcvalue.String("hi"), true))
	require.Equal(t, "hi", Get(v, "x.y.0", nil).StringValue())
}

func TestQueryFieldRule(t *testing.T) {
	arr := rpcvalue.Array()
	for i := int64(0); i < 5; i++ {
		item := rpcvalue.Dictionary()
		item.DictSet("n", rpcvalue.Int64(i))
		arr.ArrayAppend(item)
	}
	seq, err := Query(arr, Params{}, []Rule{{Path: "n", Op: OpGte, RHS: rpcvalue.Int64(3)}})
	require.NoError(t, err)
	var got []int64
	for v := range seq {
		n := Get(v, "n", nil)
		got = append(got, n.Int64Value())
	}
	require.Equal(t, []int64{3, 4}, got)
}

func TestQueryLogicalAndOffsetLimit(t *testing.T) {
	arr := rpcvalue.Array()
	for i := int64(0); i < 10; i++ {
		item := rpcvalue.Dictionary()
		item.DictSet("n", rpcvalue.Int64(i))
		arr.ArrayAppend(item)
	}
	rules := []Rule{{LogOp: LogAnd, Rules: []Rule{
		{Path: "n", Op: OpGte, RHS: rpcvalue.Int64(2)},
		{Path: "n", Op: OpLt, RHS: rpcvalue.Int64(8)},
	}}}
	seq, err := Query(arr, Params{Offset: 1, Limit: 2}, rules)
	require.NoError(t, err)
	var got []int64
	for v := range seq {
		got = append(got, Get(v, "n", nil).Int64Value())
	}
	require.Equal(t, []int64{3, 4}, got)
}

func TestQuerySingleAndReverse(t *testing.T) {
	arr := rpcvalue.Array()
	for i := int64(0); i < 3; i++ {
		item := rpcvalue.Dictionary()
		item.DictSet("n", rpcvalue.Int64(i))
		arr.ArrayAppend(item)
	}
	seq, err := Query(arr, Params{Reverse: true, Single: true}, nil)
	require.NoError(t, err)
	var got []int64
	for v := range seq {
		got = append(got, Get(v, "n", nil).Int64Value())
	}
	require.Equal(t, []int64{2}, got)
}

func TestQueryMatchGlobAndRegex(t *testing.T) {
	arr := rpcvalue.Array()
	names := []string{"foo.txt", "bar.log", "foo.log"}
	for _, n := range names {
		item := rpcvalue.Dictionary()
		item.DictSet("name", rpcvalue.String(n))
		arr.ArrayAppend(item)
	}
	seq, err := Query(arr, Params{}, []Rule{{Path: "name", Op: OpMatch, RHS: rpcvalue.String("*.log")}})
	require.NoError(t, err)
	var got []string
	for v := range seq {
		got = append(got, Get(v, "name", nil).StringValue())
	}
	require.Equal(t, []string{"bar.log", "foo.log"}, got)

	seq2, err := Query(arr, Params{}, []Rule{{Path: "name", Op: OpRegex, RHS: rpcvalue.String("^foo")}})
	require.NoError(t, err)
	var got2 []string
	for v := range seq2 {
		got2 = append(got2, Get(v, "name", nil).StringValue())
	}
	require.Equal(t, []string{"foo.txt", "foo.log"}, got2)
}
