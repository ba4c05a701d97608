package commands

import (
	"github.com/twoporeguys/go-librpc/pkg/rpccall"
	"github.com/twoporeguys/go-librpc/pkg/rpcserver"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// registerDemoInstance adds RPC_DEFAULT_INTERFACE to the tree's root
// instance with a handful of methods that exercise the call engine end to
// end (spec §8 scenarios 2 "Echo call" and 3 "Streamed count"): a
// synchronous echo and a streaming counter. It gives a freshly started
// librpcd something to Introspect/Discover/call without any external
// config.
func registerDemoInstance(tree *rpcserver.Tree) error {
	root, _ := tree.Find("/") // NewTree pre-registers the root instance.
	iface := rpcserver.NewInterface("com.twoporeguys.librpc.Default")

	if err := iface.AddMember(&rpcserver.Member{
		Name: "echo",
		Kind: rpcserver.MemberMethod,
		Method: func(_ any, args *rpcvalue.Value) (*rpcvalue.Value, error) {
			if args == nil || args.Kind() != rpcvalue.KindArray {
				return rpcvalue.Null(), nil
			}
			first, ok := args.ArrayGet(0)
			if !ok {
				return rpcvalue.Null(), nil
			}
			return first.Retain(), nil
		},
	}); err != nil {
		return err
	}

	if err := iface.AddMember(&rpcserver.Member{
		Name: "count",
		Kind: rpcserver.MemberMethod,
		Method: func(cookieArg any, args *rpcvalue.Value) (*rpcvalue.Value, error) {
			cookie, ok := cookieArg.(*rpccall.Cookie)
			if !ok {
				return rpcvalue.NewError(rpccall.ErrOther, "count: no cookie", nil, nil), nil
			}
			n := int64(0)
			if args != nil && args.Kind() == rpcvalue.KindArray {
				if nv, ok := args.ArrayGet(0); ok {
					n = nv.Int64Value()
				}
			}
			if err := cookie.StartStream(); err != nil {
				return nil, err
			}
			go func() {
				for i := int64(0); i < n; i++ {
					if cookie.ShouldAbort() {
						return
					}
					if err := cookie.Yield(rpcvalue.Int64(i)); err != nil {
						return
					}
				}
				_ = cookie.End()
			}()
			return nil, nil // rpccall.StillRunning: the goroutine above owns the cookie now.
		},
	}); err != nil {
		return err
	}

	root.AddInterface(iface)
	return nil
}
