package rpcserializer

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// msgpackCodec implements the msgpack serializer from spec §6.2, with
// extension types 1..4 for date/fd/shmem/error. Grounded on
// hashicorp/go-msgpack/v2's reflection-based Encoder/Decoder (the teacher's
// direct dependency, per DESIGN.md).
type msgpackCodec struct {
	handle *codec.MsgpackHandle
}

// orderedPairs is an alternating [key0, val0, key1, val1, ...] slice.
// Implementing codec.MapBySlice tells the encoder to write it as a msgpack
// map in exactly this order instead of reflecting over (and randomizing)
// a Go map — the only way to get insertion-order-stable Dictionary encoding
// out of a reflection-based codec. Decode intentionally does not attempt
// to recover this ordering: spec §3.1 excludes Dictionary order from
// Equal, so the round-trip invariant in spec §8 holds regardless.
type orderedPairs []any

func (orderedPairs) MapBySlice() {}

const (
	extTagDate  = 1
	extTagFd    = 2
	extTagShmem = 3
	extTagError = 4
)

type mpDate struct{ Sec int64 }
type mpFd struct{ Fd int32 }
type mpShmem struct {
	Fd     int32
	Offset uint64
	Size   uint64
}
type mpError struct {
	Code    int32
	Message string
	Extra   any
	Stack   any
}

// plainHandle has no extension types registered and is used only to
// (de)serialize the "simple" ConvertExt/UpdateExt representation of each
// ext type to/from the []byte payload that codec.BytesExt requires.
var plainHandle = &codec.MsgpackHandle{WriteExt: true}

func extEncode(v any) []byte {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, plainHandle)
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func extDecode(b []byte) any {
	var out any
	dec := codec.NewDecoderBytes(b, plainHandle)
	if err := dec.Decode(&out); err != nil {
		panic(err)
	}
	return out
}

type dateExt struct{}

func (dateExt) ConvertExt(v any) any      { return v.(*mpDate).Sec }
func (dateExt) UpdateExt(dest any, v any) { dest.(*mpDate).Sec = toInt64(v) }
func (e dateExt) WriteExt(v any) []byte   { return extEncode(e.ConvertExt(v)) }
func (e dateExt) ReadExt(dst any, b []byte) {
	e.UpdateExt(dst, extDecode(b))
}

type fdExt struct{}

func (fdExt) ConvertExt(v any) any      { return int64(v.(*mpFd).Fd) }
func (fdExt) UpdateExt(dest any, v any) { dest.(*mpFd).Fd = int32(toInt64(v)) }
func (e fdExt) WriteExt(v any) []byte   { return extEncode(e.ConvertExt(v)) }
func (e fdExt) ReadExt(dst any, b []byte) {
	e.UpdateExt(dst, extDecode(b))
}

type shmemExt struct{}

func (shmemExt) ConvertExt(v any) any {
	s := v.(*mpShmem)
	return []any{int64(s.Fd), int64(s.Offset), int64(s.Size)}
}
func (shmemExt) UpdateExt(dest any, v any) {
	parts, _ := v.([]any)
	s := dest.(*mpShmem)
	if len(parts) == 3 {
		s.Fd = int32(toInt64(parts[0]))
		s.Offset = uint64(toInt64(parts[1]))
		s.Size = uint64(toInt64(parts[2]))
	}
}
func (e shmemExt) WriteExt(v any) []byte { return extEncode(e.ConvertExt(v)) }
func (e shmemExt) ReadExt(dst any, b []byte) {
	e.UpdateExt(dst, extDecode(b))
}

type errorExt struct{}

func (errorExt) ConvertExt(v any) any {
	e := v.(*mpError)
	return []any{int64(e.Code), e.Message, e.Extra, e.Stack}
}
func (errorExt) UpdateExt(dest any, v any) {
	parts, _ := v.([]any)
	e := dest.(*mpError)
	if len(parts) == 4 {
		e.Code = int32(toInt64(parts[0]))
		e.Message, _ = parts[1].(string)
		e.Extra = parts[2]
		e.Stack = parts[3]
	}
}
func (e errorExt) WriteExt(v any) []byte { return extEncode(e.ConvertExt(v)) }
func (e errorExt) ReadExt(dst any, b []byte) {
	e.UpdateExt(dst, extDecode(b))
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// NewMsgpackCodec returns the msgpack Codec.
func NewMsgpackCodec() Codec {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	h.MapType = reflect.TypeOf(map[string]any(nil))
	_ = h.SetBytesExt(reflect.TypeOf(mpDate{}), extTagDate, dateExt{})
	_ = h.SetBytesExt(reflect.TypeOf(mpFd{}), extTagFd, fdExt{})
	_ = h.SetBytesExt(reflect.TypeOf(mpShmem{}), extTagShmem, shmemExt{})
	_ = h.SetBytesExt(reflect.TypeOf(mpError{}), extTagError, errorExt{})
	return &msgpackCodec{handle: h}
}

func (c *msgpackCodec) Name() string { return "msgpack" }

func (c *msgpackCodec) Serialize(v *rpcvalue.Value) ([]byte, error) {
	native, err := toNative(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, c.handle)
	if err := enc.Encode(native); err != nil {
		return nil, fmt.Errorf("rpcserializer(msgpack): encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *msgpackCodec) Deserialize(b []byte) (*rpcvalue.Value, error) {
	var out any
	dec := codec.NewDecoderBytes(b, c.handle)
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("rpcserializer(msgpack): decode: %w", err)
	}
	return fromNative(out)
}

func toNative(v *rpcvalue.Value) (any, error) {
	switch v.Kind() {
	case rpcvalue.KindNull:
		return nil, nil
	case rpcvalue.KindBool:
		return v.BoolValue(), nil
	case rpcvalue.KindInt64:
		return v.Int64Value(), nil
	case rpcvalue.KindUInt64:
		return v.UInt64Value(), nil
	case rpcvalue.KindDouble:
		return v.DoubleValue(), nil
	case rpcvalue.KindString:
		return v.StringValue(), nil
	case rpcvalue.KindBinary:
		return v.BinaryValue(), nil
	case rpcvalue.KindFd:
		return mpFd{Fd: int32(v.FdValue())}, nil
	case rpcvalue.KindDate:
		return mpDate{Sec: v.DateValue()}, nil
	case rpcvalue.KindShmem:
		return mpShmem{Fd: int32(v.ShmemFd()), Offset: v.ShmemOffset(), Size: v.ShmemSize()}, nil
	case rpcvalue.KindError:
		var extra, stack any
		var err error
		if e := v.ErrorExtra(); e != nil {
			if extra, err = toNative(e); err != nil {
				return nil, err
			}
		}
		if s := v.ErrorStack(); s != nil {
			if stack, err = toNative(s); err != nil {
				return nil, err
			}
		}
		return mpError{Code: v.ErrorCode(), Message: v.ErrorMessage(), Extra: extra, Stack: stack}, nil
	case rpcvalue.KindArray:
		out := make([]any, 0, v.ArrayLen())
		var err error
		v.ArrayEach(func(_ int, e *rpcvalue.Value) bool {
			var n any
			n, err = toNative(e)
			if err != nil {
				return false
			}
			out = append(out, n)
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	case rpcvalue.KindDictionary:
		out := make(orderedPairs, 0, v.DictLen()*2)
		var err error
		v.DictEach(func(key string, val *rpcvalue.Value) bool {
			var n any
			n, err = toNative(val)
			if err != nil {
				return false
			}
			out = append(out, key, n)
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("rpcserializer(msgpack): unsupported kind %s", v.Kind())
	}
}

func fromNative(n any) (*rpcvalue.Value, error) {
	switch t := n.(type) {
	case nil:
		return rpcvalue.Null(), nil
	case bool:
		return rpcvalue.Bool(t), nil
	case int64:
		return rpcvalue.Int64(t), nil
	case uint64:
		return rpcvalue.UInt64(t), nil
	case int:
		return rpcvalue.Int64(int64(t)), nil
	case float64:
		return rpcvalue.Double(t), nil
	case float32:
		return rpcvalue.Double(float64(t)), nil
	case string:
		return rpcvalue.String(t), nil
	case []byte:
		return rpcvalue.Binary(t, nil), nil
	case mpFd:
		return rpcvalue.BorrowFd(int(t.Fd)), nil
	case *mpFd:
		return rpcvalue.BorrowFd(int(t.Fd)), nil
	case mpDate:
		return rpcvalue.Date(t.Sec), nil
	case *mpDate:
		return rpcvalue.Date(t.Sec), nil
	case mpShmem:
		return rpcvalue.BorrowedShmem(int(t.Fd), t.Offset, t.Size), nil
	case *mpShmem:
		return rpcvalue.BorrowedShmem(int(t.Fd), t.Offset, t.Size), nil
	case mpError:
		return nativeError(t)
	case *mpError:
		return nativeError(*t)
	case []any:
		out := rpcvalue.Array()
		for _, e := range t {
			ev, err := fromNative(e)
			if err != nil {
				out.Release()
				return nil, err
			}
			out.ArrayAppend(ev)
		}
		return out, nil
	case map[string]any:
		out := rpcvalue.Dictionary()
		for k, e := range t {
			ev, err := fromNative(e)
			if err != nil {
				out.Release()
				return nil, err
			}
			out.DictSet(k, ev)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("rpcserializer(msgpack): unsupported decoded type %T", n)
	}
}

func nativeError(t mpError) (*rpcvalue.Value, error) {
	var extra, stack *rpcvalue.Value
	var err error
	if t.Extra != nil {
		if extra, err = fromNative(t.Extra); err != nil {
			return nil, err
		}
	}
	if t.Stack != nil {
		if stack, err = fromNative(t.Stack); err != nil {
			return nil, err
		}
	}
	return rpcvalue.NewError(t.Code, t.Message, extra, stack), nil
}
