package pack

import (
	"fmt"
	"os"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// argCursor walks the variadic argument list left to right, matching the
// order atoms are visited during a parse tree walk.
type argCursor struct {
	args []any
	pos  int
}

func (c *argCursor) next() (any, error) {
	if c.pos >= len(c.args) {
		return nil, fmt.Errorf("pack: not enough arguments for format")
	}
	a := c.args[c.pos]
	c.pos++
	return a, nil
}

// Pack builds a *rpcvalue.Value from format (spec §3.2) and args. On
// failure it returns a non-nil error and frees any children already built
// for the in-progress container before returning.
func Pack(format string, args ...any) (*rpcvalue.Value, error) {
	root, err := parse(format)
	if err != nil {
		return nil, err
	}
	c := &argCursor{args: args}
	v, err := packNode(root, c)
	if err != nil {
		return nil, err
	}
	if c.pos != len(c.args) {
		v.Release()
		return nil, fmt.Errorf("pack: %d unused argument(s) for format %q", len(c.args)-c.pos, format)
	}
	return v, nil
}

func packNode(n node, c *argCursor) (*rpcvalue.Value, error) {
	switch t := n.(type) {
	case atomNode:
		return packAtom(t.letter, c)
	case arrayNode:
		return packArray(t, c)
	case dictNode:
		return packDict(t, c)
	default:
		return nil, fmt.Errorf("pack: unknown node type %T", n)
	}
}

func packAtom(letter byte, c *argCursor) (v *rpcvalue.Value, err error) {
	switch letter {
	case 'n':
		return rpcvalue.Null(), nil
	case 'b':
		arg, err := c.next()
		if err != nil {
			return nil, err
		}
		b, ok := arg.(bool)
		if !ok {
			return nil, fmt.Errorf("pack: atom 'b' expects bool, got %T", arg)
		}
		return rpcvalue.Bool(b), nil
	case 'B':
		ptr, err := c.next()
		if err != nil {
			return nil, err
		}
		data, ok := ptr.([]byte)
		if !ok {
			return nil, fmt.Errorf("pack: atom 'B' expects []byte, got %T", ptr)
		}
		destArg, err := c.next()
		if err != nil {
			return nil, err
		}
		destructor, _ := destArg.(func([]byte))
		return rpcvalue.Binary(data, destructor), nil
	case 'f':
		arg, err := c.next()
		if err != nil {
			return nil, err
		}
		switch f := arg.(type) {
		case *os.File:
			return rpcvalue.AdoptFd(f), nil
		case int:
			return rpcvalue.BorrowFd(f), nil
		default:
			return nil, fmt.Errorf("pack: atom 'f' expects *os.File or int, got %T", arg)
		}
	case 'i':
		arg, err := c.next()
		if err != nil {
			return nil, err
		}
		i, err := asInt64(arg)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Int64(i), nil
	case 'u':
		arg, err := c.next()
		if err != nil {
			return nil, err
		}
		u, err := asUint64(arg)
		if err != nil {
			return nil, err
		}
		return rpcvalue.UInt64(u), nil
	case 'd':
		arg, err := c.next()
		if err != nil {
			return nil, err
		}
		switch f := arg.(type) {
		case float64:
			return rpcvalue.Double(f), nil
		case float32:
			return rpcvalue.Double(float64(f)), nil
		default:
			return nil, fmt.Errorf("pack: atom 'd' expects float64, got %T", arg)
		}
	case 's':
		arg, err := c.next()
		if err != nil {
			return nil, err
		}
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("pack: atom 's' expects string, got %T", arg)
		}
		return rpcvalue.String(s), nil
	case 'D':
		arg, err := c.next()
		if err != nil {
			return nil, err
		}
		d, err := asInt64(arg)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Date(d), nil
	case 'v':
		arg, err := c.next()
		if err != nil {
			return nil, err
		}
		val, ok := arg.(*rpcvalue.Value)
		if !ok {
			return nil, fmt.Errorf("pack: atom 'v' expects *rpcvalue.Value, got %T", arg)
		}
		return val, nil
	case 'V':
		arg, err := c.next()
		if err != nil {
			return nil, err
		}
		val, ok := arg.(*rpcvalue.Value)
		if !ok {
			return nil, fmt.Errorf("pack: atom 'V' expects *rpcvalue.Value, got %T", arg)
		}
		return val.Retain(), nil
	case '*', 'R':
		return nil, fmt.Errorf("pack: atom %q is unpack-only", letter)
	default:
		return nil, fmt.Errorf("pack: unsupported atom %q", letter)
	}
}

func packArray(a arrayNode, c *argCursor) (out *rpcvalue.Value, err error) {
	out = rpcvalue.Array()
	defer func() {
		if err != nil {
			out.Release()
			out = nil
		}
	}()
	nextImplicit := 0
	for _, e := range a.entries {
		idx := nextImplicit
		if e.index != nil {
			idx = *e.index
		}
		child, perr := packNode(e.expr, c)
		if perr != nil {
			return nil, perr
		}
		out.ArraySet(idx, child)
		nextImplicit = idx + 1
	}
	return out, nil
}

func packDict(d dictNode, c *argCursor) (out *rpcvalue.Value, err error) {
	out = rpcvalue.Dictionary()
	defer func() {
		if err != nil {
			out.Release()
			out = nil
		}
	}()
	for _, e := range d.entries {
		arg, kerr := c.next()
		if kerr != nil {
			return nil, kerr
		}
		k, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("pack: dict entry expects a string key argument, got %T", arg)
		}
		child, perr := packNode(e.expr, c)
		if perr != nil {
			return nil, perr
		}
		out.DictSet(k, child)
	}
	return out, nil
}

func asInt64(arg any) (int64, error) {
	switch i := arg.(type) {
	case int64:
		return i, nil
	case int:
		return int64(i), nil
	case int32:
		return int64(i), nil
	default:
		return 0, fmt.Errorf("pack: expected an integer, got %T", arg)
	}
}

func asUint64(arg any) (uint64, error) {
	switch u := arg.(type) {
	case uint64:
		return u, nil
	case uint:
		return uint64(u), nil
	case uint32:
		return uint64(u), nil
	case int:
		if u < 0 {
			return 0, fmt.Errorf("pack: expected a non-negative integer, got %d", u)
		}
		return uint64(u), nil
	default:
		return 0, fmt.Errorf("pack: expected an unsigned integer, got %T", arg)
	}
}
