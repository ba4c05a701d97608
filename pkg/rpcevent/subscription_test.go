package rpcevent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

type fakeWire struct {
	mu          sync.Mutex
	subscribed  []Key
	unsubscribed []Key
}

func (w *fakeWire) Subscribe(keys []Key) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribed = append(w.subscribed, keys...)
	return nil
}

func (w *fakeWire) Unsubscribe(keys []Key) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unsubscribed = append(w.unsubscribed, keys...)
	return nil
}

func TestSubscribeRefcountsAndWiresOnce(t *testing.T) {
	wire := &fakeWire{}
	table := NewTable(wire)
	key := Key{Path: "/svc/widget", Interface: "com.example.Widget", Name: "changed"}

	rc, err := table.Subscribe(key, func(*rpcvalue.Value) {})
	require.NoError(t, err)
	require.Equal(t, 1, rc)

	rc, err = table.Subscribe(key, func(*rpcvalue.Value) {})
	require.NoError(t, err)
	require.Equal(t, 2, rc)

	require.Len(t, wire.subscribed, 1)

	require.NoError(t, table.Unsubscribe(key))
	require.Equal(t, 1, table.Count(key))
	require.Empty(t, wire.unsubscribed)

	require.NoError(t, table.Unsubscribe(key))
	require.Equal(t, 0, table.Count(key))
	require.Len(t, wire.unsubscribed, 1)
}

func TestDispatchDeliversToAllHandlers(t *testing.T) {
	wire := &fakeWire{}
	table := NewTable(wire)
	key := Key{Path: "/svc/widget", Interface: "com.example.Widget", Name: "changed"}

	var calls int
	_, err := table.Subscribe(key, func(*rpcvalue.Value) { calls++ })
	require.NoError(t, err)
	_, err = table.Subscribe(key, func(*rpcvalue.Value) { calls++ })
	require.NoError(t, err)

	table.Dispatch(key, rpcvalue.Dictionary())
	require.Equal(t, 2, calls)
}

func TestWatcherFiltersByPropertyName(t *testing.T) {
	wire := &fakeWire{}
	table := NewTable(wire)
	watcher := NewWatcher(table)

	var got *rpcvalue.Value
	require.NoError(t, watcher.Watch("/svc/widget", "com.example.Widget", "size", func(v *rpcvalue.Value) {
		got = v
	}))

	other := rpcvalue.Dictionary()
	other.DictSet("name", rpcvalue.String("color"))
	other.DictSet("value", rpcvalue.String("red"))
	table.Dispatch(Key{Path: "/svc/widget", Interface: "com.example.Widget", Name: "changed"}, other)
	require.Nil(t, got)

	match := rpcvalue.Dictionary()
	match.DictSet("name", rpcvalue.String("size"))
	match.DictSet("value", rpcvalue.UInt64(42))
	table.Dispatch(Key{Path: "/svc/widget", Interface: "com.example.Widget", Name: "changed"}, match)
	require.NotNil(t, got)
	require.Equal(t, uint64(42), got.UInt64Value())
}
