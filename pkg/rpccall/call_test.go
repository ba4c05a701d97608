package rpccall

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twoporeguys/go-librpc/pkg/rpcframe"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []*rpcframe.Frame
}

func (s *recordingSender) SendFrame(f *rpcframe.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSender) last() *rpcframe.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func TestCallResponseTransitionsToDone(t *testing.T) {
	sender := &recordingSender{}
	table := NewTable()
	call := NewCall(sender, 0, nil)
	table.Register(call)

	go func() {
		time.Sleep(10 * time.Millisecond)
		args := rpcvalue.String("ok")
		f := rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameResponse, call.ID, args)
		require.NoError(t, table.Dispatch(f))
	}()

	require.Equal(t, StateDone, call.Wait())
	require.Equal(t, "ok", call.Result().StringValue())
}

func TestCallAbortSendsEndFrame(t *testing.T) {
	sender := &recordingSender{}
	call := NewCall(sender, 0, nil)
	call.Abort()
	require.Equal(t, StateAborted, call.State())
	f := sender.last()
	require.NotNil(t, f)
	require.Equal(t, rpcframe.NameEnd, f.Name)
}

func TestCallWaitTimeoutAborts(t *testing.T) {
	sender := &recordingSender{}
	call := NewCall(sender, 0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Equal(t, StateAborted, call.WaitTimeout(ctx))
}

func TestCallFragmentStreamAndContinue(t *testing.T) {
	sender := &recordingSender{}
	var received []uint64
	call := NewCall(sender, 1, func(seqno uint64, fragment *rpcvalue.Value) {
		received = append(received, seqno)
	})
	table := NewTable()
	table.Register(call)

	for i := uint64(0); i < 3; i++ {
		args := rpcvalue.Dictionary()
		args.DictSet("seqno", rpcvalue.UInt64(i))
		args.DictSet("fragment", rpcvalue.UInt64(i*10))
		f := rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameFragment, call.ID, args)
		require.NoError(t, table.Dispatch(f))
	}
	require.Equal(t, []uint64{0, 1, 2}, received)
	require.Equal(t, StateInProgress, call.State())

	endFrame := rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameEnd, call.ID, rpcvalue.Dictionary())
	require.NoError(t, table.Dispatch(endFrame))
	require.Equal(t, StateEnded, call.State())
}

func TestTableCloseAllSetsConnectionClosed(t *testing.T) {
	sender := &recordingSender{}
	table := NewTable()
	call := NewCall(sender, 0, nil)
	table.Register(call)

	table.CloseAll()
	require.Equal(t, StateError, call.Wait())
	require.Equal(t, ErrConnectionClosed, call.Err().ErrorCode())

	_, ok := table.Lookup(call.ID)
	require.False(t, ok)
}

func TestDispatchSpuriousResponse(t *testing.T) {
	table := NewTable()
	f := rpcframe.New(rpcframe.NamespaceRPC, rpcframe.NameResponse, "unknown-id", rpcvalue.Dictionary())
	require.Error(t, table.Dispatch(f))
}

func TestCookieRespondAndDoubleRespondError(t *testing.T) {
	sender := &recordingSender{}
	cookie := NewCookie("id-1", "/svc", "com.example.Widget", "Get", "caller-1", sender, 0)

	require.NoError(t, cookie.Respond(rpcvalue.String("hi")))
	require.Error(t, cookie.Respond(rpcvalue.String("again")))

	f := sender.last()
	require.Equal(t, rpcframe.NameResponse, f.Name)
}

func TestCookieStreamYieldEnd(t *testing.T) {
	sender := &recordingSender{}
	cookie := NewCookie("id-2", "/svc", "com.example.Counter", "Count", "caller-1", sender, 0)
	require.NoError(t, cookie.StartStream())
	for i := 0; i < 3; i++ {
		require.NoError(t, cookie.Yield(rpcvalue.Int64(int64(i))))
	}
	require.NoError(t, cookie.End())
	require.Error(t, cookie.Yield(rpcvalue.Int64(99)))
}

func TestCookieYieldBlocksOnPrefetchUntilContinue(t *testing.T) {
	sender := &recordingSender{}
	cookie := NewCookie("id-3", "/svc", "com.example.Counter", "Count", "caller-1", sender, 1)
	require.NoError(t, cookie.StartStream())
	require.NoError(t, cookie.Yield(rpcvalue.Int64(0)))

	done := make(chan struct{})
	go func() {
		require.NoError(t, cookie.Yield(rpcvalue.Int64(1)))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Yield should have blocked on prefetch=1 before continue")
	case <-time.After(20 * time.Millisecond):
	}

	cookie.Continue(0)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Yield did not unblock after continue")
	}
}

func TestCookieAbortFailsYield(t *testing.T) {
	sender := &recordingSender{}
	cookie := NewCookie("id-4", "/svc", "com.example.Counter", "Count", "caller-1", sender, 1)
	require.NoError(t, cookie.StartStream())
	cookie.Abort()
	require.True(t, cookie.ShouldAbort())
	require.Error(t, cookie.Yield(rpcvalue.Int64(1)))
}
