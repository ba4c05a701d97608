package commands

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twoporeguys/go-librpc/pkg/rpccall"
	"github.com/twoporeguys/go-librpc/pkg/rpcframe"
	"github.com/twoporeguys/go-librpc/pkg/rpcserver"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// fakeSender records every frame handed to SendFrame, standing in for a
// rpccontext.Connection without standing up a real transport.
type fakeSender struct {
	mu     sync.Mutex
	frames []*rpcframe.Frame
}

func (f *fakeSender) SendFrame(fr *rpcframe.Frame) error {
	f.mu.Lock()
	f.frames = append(f.frames, fr)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) snapshot() []*rpcframe.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*rpcframe.Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func TestRegisterDemoInstance_Echo(t *testing.T) {
	tree := rpcserver.NewTree()
	require.NoError(t, registerDemoInstance(tree))

	inst, ok := tree.Find("/")
	require.True(t, ok)
	iface, ok := inst.Interface("com.twoporeguys.librpc.Default")
	require.True(t, ok)
	member, ok := iface.Member("echo")
	require.True(t, ok)

	args := rpcvalue.Array()
	args.ArrayAppend(rpcvalue.String("hello"))

	result, err := member.Method(nil, args)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.StringValue())
	result.Release()
	args.Release()
}

func TestRegisterDemoInstance_Count(t *testing.T) {
	tree := rpcserver.NewTree()
	require.NoError(t, registerDemoInstance(tree))

	inst, _ := tree.Find("/")
	iface, _ := inst.Interface("com.twoporeguys.librpc.Default")
	member, _ := iface.Member("count")

	sender := &fakeSender{}
	cookie := rpccall.NewCookie("call-1", "/", "com.twoporeguys.librpc.Default", "count", "", sender, 0)

	args := rpcvalue.Array()
	args.ArrayAppend(rpcvalue.Int64(3))

	result, err := member.Method(cookie, args)
	require.NoError(t, err)
	assert.Nil(t, result) // still-running: the goroutine streams and calls End itself.
	args.Release()

	require.Eventually(t, func() bool {
		return len(sender.snapshot()) == 4 // 3 fragments + end
	}, time.Second, time.Millisecond)

	frames := sender.snapshot()
	for i := 0; i < 3; i++ {
		assert.Equal(t, rpcframe.NameFragment, frames[i].Name)
	}
	assert.Equal(t, rpcframe.NameEnd, frames[3].Name)
}
