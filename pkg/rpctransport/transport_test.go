package rpctransport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

func TestLoopbackRoundTrip(t *testing.T) {
	lb := NewLoopback()
	ln, err := lb.Listen("loopback://1", nil)
	require.NoError(t, err)
	defer ln.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var serverConn Conn
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c, err := ln.Accept(ctx)
		require.NoError(t, err)
		serverConn = c
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	client, err := lb.Connect(ctx, "loopback://1", nil)
	require.NoError(t, err)
	wg.Wait()
	require.NotNil(t, serverConn)

	received := make(chan *rpcvalue.Value, 1)
	serverConn.SetRecvHandler(func(data []byte, fds []int, v *rpcvalue.Value) {
		received <- v
	})

	msg := rpcvalue.String("ping")
	require.NoError(t, client.SendValue(msg))

	select {
	case v := <-received:
		require.Equal(t, "ping", v.StringValue())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}

	require.True(t, client.Flags().Has(NoSerialize))
	require.Equal(t, -1, client.Fd())
	_, ok := client.Credentials()
	require.False(t, ok)

	require.NoError(t, client.Close())
	require.NoError(t, serverConn.Close())
}

func TestLoopbackConnectWithoutListenerFails(t *testing.T) {
	lb := NewLoopback()
	_, err := lb.Connect(context.Background(), "loopback://99", nil)
	require.Error(t, err)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(NewLoopback())

	tr, err := r.Lookup("loopback://5")
	require.NoError(t, err)
	require.Contains(t, tr.Schemes(), "loopback")

	_, err = r.Lookup("unix:///tmp/nope.sock")
	require.Error(t, err)

	_, err = r.Lookup("not-a-uri-no-scheme")
	require.Error(t, err)
}

func TestDefaultRegistryHasAllDrivers(t *testing.T) {
	for _, uri := range []string{"loopback://1", "unix:///tmp/x.sock", "ws://localhost/x"} {
		_, err := Default().Lookup(uri)
		require.NoError(t, err, uri)
	}
}
