package rpccontext

import (
	"fmt"

	"github.com/twoporeguys/go-librpc/internal/logger"
	"github.com/twoporeguys/go-librpc/pkg/rpccall"
	"github.com/twoporeguys/go-librpc/pkg/rpcevent"
	"github.com/twoporeguys/go-librpc/pkg/rpcserver"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// builtinMember resolves methodName against one of the three well-known
// interfaces materialized over c.Builtins (spec §4.5: "Every Instance
// transparently implements three built-in interfaces"). ok is false when
// ifaceName names none of them, so the caller's normal "no such interface"
// error still applies.
func (c *Context) builtinMember(path, ifaceName, methodName string) (member *rpcserver.Member, errVal *rpcvalue.Value, ok bool) {
	switch ifaceName {
	case rpcserver.InterfaceDiscoverable:
		return c.discoverableMember(methodName)
	case rpcserver.InterfaceIntrospectable:
		return c.introspectableMember(path, methodName)
	case rpcserver.InterfaceObservable:
		return c.observableMember(path, methodName)
	default:
		return nil, nil, false
	}
}

func noSuchMethod(ifaceName, methodName string) *rpcvalue.Value {
	return rpcvalue.NewError(rpccall.ErrOther, fmt.Sprintf("%q has no method %q", ifaceName, methodName), nil, nil)
}

func (c *Context) discoverableMember(methodName string) (*rpcserver.Member, *rpcvalue.Value, bool) {
	if methodName != "get_instances" {
		return nil, noSuchMethod(rpcserver.InterfaceDiscoverable, methodName), true
	}
	return &rpcserver.Member{
		Name: methodName,
		Kind: rpcserver.MemberMethod,
		Method: func(_ any, _ *rpcvalue.Value) (*rpcvalue.Value, error) {
			return valueArray(c.Builtins.GetInstances()), nil
		},
	}, nil, true
}

func (c *Context) introspectableMember(path, methodName string) (*rpcserver.Member, *rpcvalue.Value, bool) {
	switch methodName {
	case "get_interfaces":
		return &rpcserver.Member{
			Name: methodName,
			Kind: rpcserver.MemberMethod,
			Method: func(_ any, _ *rpcvalue.Value) (*rpcvalue.Value, error) {
				names, err := c.Builtins.GetInterfaces(path)
				if err != nil {
					return nil, err
				}
				return stringArray(names), nil
			},
		}, nil, true
	case "get_methods":
		return &rpcserver.Member{
			Name: methodName,
			Kind: rpcserver.MemberMethod,
			Method: func(_ any, args *rpcvalue.Value) (*rpcvalue.Value, error) {
				iface, ok := firstStringArg(args)
				if !ok {
					return nil, fmt.Errorf("get_methods: missing interface argument")
				}
				names, err := c.Builtins.GetMethods(path, iface)
				if err != nil {
					return nil, err
				}
				return stringArray(names), nil
			},
		}, nil, true
	default:
		return nil, noSuchMethod(rpcserver.InterfaceIntrospectable, methodName), true
	}
}

func (c *Context) observableMember(path, methodName string) (*rpcserver.Member, *rpcvalue.Value, bool) {
	switch methodName {
	case "get":
		return &rpcserver.Member{
			Name: methodName,
			Kind: rpcserver.MemberMethod,
			Method: func(_ any, args *rpcvalue.Value) (*rpcvalue.Value, error) {
				iface, name, ok := twoStringArgs(args)
				if !ok {
					return nil, fmt.Errorf("get: expected (interface, name) arguments")
				}
				return c.Builtins.Get(path, iface, name)
			},
		}, nil, true
	case "set":
		return &rpcserver.Member{
			Name: methodName,
			Kind: rpcserver.MemberMethod,
			Method: func(_ any, args *rpcvalue.Value) (*rpcvalue.Value, error) {
				iface, name, value, ok := setArgs(args)
				if !ok {
					return nil, fmt.Errorf("set: expected (interface, name, value) arguments")
				}
				if err := c.Builtins.Set(path, iface, name, value); err != nil {
					return nil, err
				}
				logger.Debug("property changed", logger.Path(path), logger.Interface(iface), logger.Event(rpcserver.EventChanged))
				// Observable.changed is delivered to every watcher before
				// this call returns to the caller (spec §8 scenario 6).
				c.Emit(rpcevent.Key{Path: path, Interface: rpcserver.InterfaceObservable, Name: rpcserver.EventChanged},
					rpcserver.ChangedEventArgs(iface, name, value.Retain()))
				return rpcvalue.Null(), nil
			},
		}, nil, true
	case "get_all":
		return &rpcserver.Member{
			Name: methodName,
			Kind: rpcserver.MemberMethod,
			Method: func(_ any, args *rpcvalue.Value) (*rpcvalue.Value, error) {
				iface, ok := firstStringArg(args)
				if !ok {
					return nil, fmt.Errorf("get_all: missing interface argument")
				}
				vals, err := c.Builtins.GetAll(path, iface)
				if err != nil {
					return nil, err
				}
				return valueArray(vals), nil
			},
		}, nil, true
	default:
		return nil, noSuchMethod(rpcserver.InterfaceObservable, methodName), true
	}
}

func valueArray(vals []*rpcvalue.Value) *rpcvalue.Value {
	out := rpcvalue.Array()
	for _, v := range vals {
		out.ArrayAppend(v)
	}
	return out
}

func stringArray(names []string) *rpcvalue.Value {
	out := rpcvalue.Array()
	for _, n := range names {
		out.ArrayAppend(rpcvalue.String(n))
	}
	return out
}

func firstStringArg(args *rpcvalue.Value) (string, bool) {
	if args == nil || args.Kind() != rpcvalue.KindArray {
		return "", false
	}
	v, ok := args.ArrayGet(0)
	if !ok || v.Kind() != rpcvalue.KindString {
		return "", false
	}
	return v.StringValue(), true
}

func twoStringArgs(args *rpcvalue.Value) (string, string, bool) {
	if args == nil || args.Kind() != rpcvalue.KindArray || args.ArrayLen() < 2 {
		return "", "", false
	}
	a, ok1 := args.ArrayGet(0)
	b, ok2 := args.ArrayGet(1)
	if !ok1 || !ok2 || a.Kind() != rpcvalue.KindString || b.Kind() != rpcvalue.KindString {
		return "", "", false
	}
	return a.StringValue(), b.StringValue(), true
}

func setArgs(args *rpcvalue.Value) (string, string, *rpcvalue.Value, bool) {
	if args == nil || args.Kind() != rpcvalue.KindArray || args.ArrayLen() < 3 {
		return "", "", nil, false
	}
	a, ok1 := args.ArrayGet(0)
	b, ok2 := args.ArrayGet(1)
	v, ok3 := args.ArrayGet(2)
	if !ok1 || !ok2 || !ok3 || a.Kind() != rpcvalue.KindString || b.Kind() != rpcvalue.KindString {
		return "", "", nil, false
	}
	return a.StringValue(), b.StringValue(), v, true
}
