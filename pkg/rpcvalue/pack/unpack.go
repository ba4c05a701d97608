package pack

import (
	"fmt"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// Unpack dismantles v according to format (spec §3.2), writing results
// through the supplied output pointers in the same left-to-right order
// atoms appear. '*' consumes a value and discards it; 'R' inside an array
// consumes the remainder of that array into a single *rpcvalue.Value: a new
// Array holding copies of the remaining elements.
func Unpack(v *rpcvalue.Value, format string, args ...any) error {
	root, err := parse(format)
	if err != nil {
		return err
	}
	c := &argCursor{args: args}
	if err := unpackNode(root, v, c); err != nil {
		return err
	}
	if c.pos != len(c.args) {
		return fmt.Errorf("unpack: %d unused output argument(s) for format %q", len(c.args)-c.pos, format)
	}
	return nil
}

func unpackNode(n node, v *rpcvalue.Value, c *argCursor) error {
	switch t := n.(type) {
	case atomNode:
		return unpackAtom(t.letter, v, c)
	case arrayNode:
		return unpackArray(t, v, c)
	case dictNode:
		return unpackDict(t, v, c)
	default:
		return fmt.Errorf("unpack: unknown node type %T", n)
	}
}

func unpackAtom(letter byte, v *rpcvalue.Value, c *argCursor) error {
	if letter == '*' {
		return nil
	}
	out, err := c.next()
	if err != nil {
		return err
	}
	switch letter {
	case 'n':
		return nil
	case 'b':
		p, ok := out.(*bool)
		if !ok {
			return fmt.Errorf("unpack: atom 'b' expects *bool, got %T", out)
		}
		if v.Kind() != rpcvalue.KindBool {
			return fmt.Errorf("unpack: expected bool, got %s", v.Kind())
		}
		*p = v.BoolValue()
	case 'B':
		p, ok := out.(*[]byte)
		if !ok {
			return fmt.Errorf("unpack: atom 'B' expects *[]byte, got %T", out)
		}
		if v.Kind() != rpcvalue.KindBinary {
			return fmt.Errorf("unpack: expected binary, got %s", v.Kind())
		}
		*p = v.BinaryValue()
	case 'f':
		p, ok := out.(*int)
		if !ok {
			return fmt.Errorf("unpack: atom 'f' expects *int, got %T", out)
		}
		if v.Kind() != rpcvalue.KindFd {
			return fmt.Errorf("unpack: expected fd, got %s", v.Kind())
		}
		*p = v.FdValue()
	case 'i':
		p, ok := out.(*int64)
		if !ok {
			return fmt.Errorf("unpack: atom 'i' expects *int64, got %T", out)
		}
		i, err := coerceInt64(v)
		if err != nil {
			return err
		}
		*p = i
	case 'u':
		p, ok := out.(*uint64)
		if !ok {
			return fmt.Errorf("unpack: atom 'u' expects *uint64, got %T", out)
		}
		u, err := coerceUint64(v)
		if err != nil {
			return err
		}
		*p = u
	case 'd':
		p, ok := out.(*float64)
		if !ok {
			return fmt.Errorf("unpack: atom 'd' expects *float64, got %T", out)
		}
		if v.Kind() != rpcvalue.KindDouble {
			return fmt.Errorf("unpack: expected double, got %s", v.Kind())
		}
		*p = v.DoubleValue()
	case 's':
		p, ok := out.(*string)
		if !ok {
			return fmt.Errorf("unpack: atom 's' expects *string, got %T", out)
		}
		if v.Kind() != rpcvalue.KindString {
			return fmt.Errorf("unpack: expected string, got %s", v.Kind())
		}
		*p = v.StringValue()
	case 'D':
		p, ok := out.(*int64)
		if !ok {
			return fmt.Errorf("unpack: atom 'D' expects *int64, got %T", out)
		}
		if v.Kind() != rpcvalue.KindDate {
			return fmt.Errorf("unpack: expected date, got %s", v.Kind())
		}
		*p = v.DateValue()
	case 'v':
		p, ok := out.(**rpcvalue.Value)
		if !ok {
			return fmt.Errorf("unpack: atom 'v' expects **rpcvalue.Value, got %T", out)
		}
		*p = v
	case 'V':
		p, ok := out.(**rpcvalue.Value)
		if !ok {
			return fmt.Errorf("unpack: atom 'V' expects **rpcvalue.Value, got %T", out)
		}
		*p = v.Retain()
	case 'R':
		p, ok := out.(**rpcvalue.Value)
		if !ok {
			return fmt.Errorf("unpack: atom 'R' expects **rpcvalue.Value, got %T", out)
		}
		*p = v
	default:
		return fmt.Errorf("unpack: unsupported atom %q", letter)
	}
	return nil
}

// coerceInt64 accepts Int64 directly and UInt64 when representable, matching
// the "kind-preserving conversions" allowance in spec §8's round-trip law.
func coerceInt64(v *rpcvalue.Value) (int64, error) {
	switch v.Kind() {
	case rpcvalue.KindInt64:
		return v.Int64Value(), nil
	case rpcvalue.KindUInt64:
		return int64(v.UInt64Value()), nil
	default:
		return 0, fmt.Errorf("unpack: expected int64, got %s", v.Kind())
	}
}

func coerceUint64(v *rpcvalue.Value) (uint64, error) {
	switch v.Kind() {
	case rpcvalue.KindUInt64:
		return v.UInt64Value(), nil
	case rpcvalue.KindInt64:
		return uint64(v.Int64Value()), nil
	default:
		return 0, fmt.Errorf("unpack: expected uint64, got %s", v.Kind())
	}
}

func unpackArray(a arrayNode, v *rpcvalue.Value, c *argCursor) error {
	if v.Kind() != rpcvalue.KindArray {
		return fmt.Errorf("unpack: expected array, got %s", v.Kind())
	}
	nextImplicit := 0
	for _, e := range a.entries {
		idx := nextImplicit
		if e.index != nil {
			idx = *e.index
		}
		nextImplicit = idx + 1

		if atom, ok := e.expr.(atomNode); ok && atom.letter == 'R' {
			out, err := c.next()
			if err != nil {
				return err
			}
			p, ok := out.(**rpcvalue.Value)
			if !ok {
				return fmt.Errorf("unpack: atom 'R' expects **rpcvalue.Value, got %T", out)
			}
			rest := rpcvalue.Array()
			for i := idx; i < v.ArrayLen(); i++ {
				el, _ := v.ArrayGet(i)
				rest.ArrayAppend(rpcvalue.Copy(el))
			}
			*p = rest
			continue
		}

		el, ok := v.ArrayGet(idx)
		if !ok {
			return fmt.Errorf("unpack: array index %d out of range", idx)
		}
		if err := unpackNode(e.expr, el, c); err != nil {
			return err
		}
	}
	return nil
}

func unpackDict(d dictNode, v *rpcvalue.Value, c *argCursor) error {
	if v.Kind() != rpcvalue.KindDictionary {
		return fmt.Errorf("unpack: expected dictionary, got %s", v.Kind())
	}
	for _, e := range d.entries {
		arg, err := c.next()
		if err != nil {
			return err
		}
		k, ok := arg.(string)
		if !ok {
			return fmt.Errorf("unpack: dict entry expects a string key argument, got %T", arg)
		}
		el, ok := v.DictGet(k)
		if !ok {
			return fmt.Errorf("unpack: missing dict key %q", k)
		}
		if err := unpackNode(e.expr, el, c); err != nil {
			return err
		}
	}
	return nil
}
