package rpcserializer

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/twoporeguys/go-librpc/internal/protocol/xdr"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// xdrCodec implements the xdr serializer from spec §6.2 directly on top of
// internal/protocol/xdr's RFC 4506 primitives: every Value is a
// discriminated union keyed by its Kind, written with
// EncodeUnionDiscriminant followed by the kind's fixed or length-prefixed
// arm. Grounded on msgpackCodec's toNative/fromNative recursion shape,
// using xdr's Write*/Decode* helpers in place of a reflection-based
// encoder.
type xdrCodec struct{}

// NewXDRCodec returns the xdr Codec.
func NewXDRCodec() Codec { return xdrCodec{} }

func (xdrCodec) Name() string { return "xdr" }

func (xdrCodec) Serialize(v *rpcvalue.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeXDRValue(&buf, v); err != nil {
		return nil, fmt.Errorf("rpcserializer(xdr): encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (xdrCodec) Deserialize(b []byte) (*rpcvalue.Value, error) {
	v, err := decodeXDRValue(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("rpcserializer(xdr): decode: %w", err)
	}
	return v, nil
}

func encodeXDRValue(buf *bytes.Buffer, v *rpcvalue.Value) error {
	if err := xdr.EncodeUnionDiscriminant(buf, uint32(v.Kind())); err != nil {
		return err
	}
	switch v.Kind() {
	case rpcvalue.KindNull:
		return nil
	case rpcvalue.KindBool:
		return xdr.WriteBool(buf, v.BoolValue())
	case rpcvalue.KindUInt64:
		return xdr.WriteUint64(buf, v.UInt64Value())
	case rpcvalue.KindInt64:
		return xdr.WriteInt64(buf, v.Int64Value())
	case rpcvalue.KindDouble:
		return xdr.WriteUint64(buf, math.Float64bits(v.DoubleValue()))
	case rpcvalue.KindDate:
		return xdr.WriteInt64(buf, v.DateValue())
	case rpcvalue.KindString:
		return xdr.WriteXDRString(buf, v.StringValue())
	case rpcvalue.KindBinary:
		return xdr.WriteXDROpaque(buf, v.BinaryValue())
	case rpcvalue.KindFd:
		return xdr.WriteInt32(buf, int32(v.FdValue()))
	case rpcvalue.KindShmem:
		if err := xdr.WriteInt32(buf, int32(v.ShmemFd())); err != nil {
			return err
		}
		if err := xdr.WriteUint64(buf, v.ShmemOffset()); err != nil {
			return err
		}
		return xdr.WriteUint64(buf, v.ShmemSize())
	case rpcvalue.KindError:
		if err := xdr.WriteInt32(buf, v.ErrorCode()); err != nil {
			return err
		}
		if err := xdr.WriteXDRString(buf, v.ErrorMessage()); err != nil {
			return err
		}
		if err := encodeXDROptional(buf, v.ErrorExtra()); err != nil {
			return err
		}
		return encodeXDROptional(buf, v.ErrorStack())
	case rpcvalue.KindArray:
		if err := xdr.WriteUint32(buf, uint32(v.ArrayLen())); err != nil {
			return err
		}
		var err error
		v.ArrayEach(func(_ int, e *rpcvalue.Value) bool {
			if err = encodeXDRValue(buf, e); err != nil {
				return false
			}
			return true
		})
		return err
	case rpcvalue.KindDictionary:
		if err := xdr.WriteUint32(buf, uint32(v.DictLen())); err != nil {
			return err
		}
		var err error
		v.DictEach(func(key string, val *rpcvalue.Value) bool {
			if err = xdr.WriteXDRString(buf, key); err != nil {
				return false
			}
			if err = encodeXDRValue(buf, val); err != nil {
				return false
			}
			return true
		})
		return err
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
}

// encodeXDROptional writes a presence boolean followed by v's encoding when
// non-nil, used for the Error value's optional extra/stack arms.
func encodeXDROptional(buf *bytes.Buffer, v *rpcvalue.Value) error {
	if v == nil {
		return xdr.WriteBool(buf, false)
	}
	if err := xdr.WriteBool(buf, true); err != nil {
		return err
	}
	return encodeXDRValue(buf, v)
}

func decodeXDRValue(r io.Reader) (*rpcvalue.Value, error) {
	disc, err := xdr.DecodeUnionDiscriminant(r)
	if err != nil {
		return nil, err
	}
	switch rpcvalue.Kind(disc) {
	case rpcvalue.KindNull:
		return rpcvalue.Null(), nil
	case rpcvalue.KindBool:
		b, err := xdr.DecodeBool(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Bool(b), nil
	case rpcvalue.KindUInt64:
		u, err := xdr.DecodeUint64(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.UInt64(u), nil
	case rpcvalue.KindInt64:
		i, err := xdr.DecodeInt64(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Int64(i), nil
	case rpcvalue.KindDouble:
		bits, err := xdr.DecodeUint64(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Double(math.Float64frombits(bits)), nil
	case rpcvalue.KindDate:
		sec, err := xdr.DecodeInt64(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Date(sec), nil
	case rpcvalue.KindString:
		s, err := xdr.DecodeString(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.String(s), nil
	case rpcvalue.KindBinary:
		data, err := xdr.DecodeOpaque(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.Binary(data, nil), nil
	case rpcvalue.KindFd:
		fd, err := xdr.DecodeInt32(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.BorrowFd(int(fd)), nil
	case rpcvalue.KindShmem:
		fd, err := xdr.DecodeInt32(r)
		if err != nil {
			return nil, err
		}
		offset, err := xdr.DecodeUint64(r)
		if err != nil {
			return nil, err
		}
		size, err := xdr.DecodeUint64(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.BorrowedShmem(int(fd), offset, size), nil
	case rpcvalue.KindError:
		code, err := xdr.DecodeInt32(r)
		if err != nil {
			return nil, err
		}
		message, err := xdr.DecodeString(r)
		if err != nil {
			return nil, err
		}
		extra, err := decodeXDROptional(r)
		if err != nil {
			return nil, err
		}
		stack, err := decodeXDROptional(r)
		if err != nil {
			return nil, err
		}
		return rpcvalue.NewError(code, message, extra, stack), nil
	case rpcvalue.KindArray:
		n, err := xdr.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		out := rpcvalue.Array()
		for i := uint32(0); i < n; i++ {
			e, err := decodeXDRValue(r)
			if err != nil {
				out.Release()
				return nil, err
			}
			out.ArrayAppend(e)
		}
		return out, nil
	case rpcvalue.KindDictionary:
		n, err := xdr.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		out := rpcvalue.Dictionary()
		for i := uint32(0); i < n; i++ {
			key, err := xdr.DecodeString(r)
			if err != nil {
				out.Release()
				return nil, err
			}
			val, err := decodeXDRValue(r)
			if err != nil {
				out.Release()
				return nil, err
			}
			out.DictSet(key, val)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported kind discriminant %d", disc)
	}
}

func decodeXDROptional(r io.Reader) (*rpcvalue.Value, error) {
	present, err := xdr.DecodeBool(r)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return decodeXDRValue(r)
}
