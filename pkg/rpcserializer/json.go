package rpcserializer

import (
	"encoding/base64"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// jsonCodec implements the JSON serializer from spec §6.2, with extension
// tags $uint, $date, $bin, $fd, $error, $shmem for kinds JSON has no native
// representation for. Grounded on json-iterator/go's low-level
// Stream/Iterator API (not its reflection-based Marshal), which is what
// lets the encoder walk the Value tree directly and preserve Dictionary
// insertion order — a plain map[string]any round trip through
// encoding/json would not.
type jsonCodec struct{}

// NewJSONCodec returns the json Codec.
func NewJSONCodec() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Serialize(v *rpcvalue.Value) ([]byte, error) {
	stream := jsoniter.ConfigDefault.BorrowStream(nil)
	defer jsoniter.ConfigDefault.ReturnStream(stream)
	writeJSON(stream, v)
	if stream.Error != nil {
		return nil, stream.Error
	}
	out := make([]byte, len(stream.Buffer()))
	copy(out, stream.Buffer())
	return out, nil
}

func (jsonCodec) Deserialize(b []byte) (*rpcvalue.Value, error) {
	iter := jsoniter.ConfigDefault.BorrowIterator(b)
	defer jsoniter.ConfigDefault.ReturnIterator(iter)
	v, err := readJSON(iter)
	if err != nil {
		return nil, err
	}
	if iter.Error != nil && iter.Error.Error() != "EOF" {
		return nil, iter.Error
	}
	return v, nil
}

func writeJSON(s *jsoniter.Stream, v *rpcvalue.Value) {
	switch v.Kind() {
	case rpcvalue.KindNull:
		s.WriteNil()
	case rpcvalue.KindBool:
		s.WriteBool(v.BoolValue())
	case rpcvalue.KindInt64:
		s.WriteInt64(v.Int64Value())
	case rpcvalue.KindDouble:
		s.WriteFloat64(v.DoubleValue())
	case rpcvalue.KindString:
		s.WriteString(v.StringValue())
	case rpcvalue.KindUInt64:
		s.WriteObjectStart()
		s.WriteObjectField("$uint")
		s.WriteUint64(v.UInt64Value())
		s.WriteObjectEnd()
	case rpcvalue.KindDate:
		s.WriteObjectStart()
		s.WriteObjectField("$date")
		s.WriteInt64(v.DateValue())
		s.WriteObjectEnd()
	case rpcvalue.KindBinary:
		s.WriteObjectStart()
		s.WriteObjectField("$bin")
		s.WriteString(base64.StdEncoding.EncodeToString(v.BinaryValue()))
		s.WriteObjectEnd()
	case rpcvalue.KindFd:
		s.WriteObjectStart()
		s.WriteObjectField("$fd")
		s.WriteInt(v.FdValue())
		s.WriteObjectEnd()
	case rpcvalue.KindError:
		s.WriteObjectStart()
		s.WriteObjectField("$error")
		s.WriteObjectStart()
		s.WriteObjectField("code")
		s.WriteInt32(v.ErrorCode())
		s.WriteMore()
		s.WriteObjectField("message")
		s.WriteString(v.ErrorMessage())
		if extra := v.ErrorExtra(); extra != nil {
			s.WriteMore()
			s.WriteObjectField("extra")
			writeJSON(s, extra)
		}
		if stack := v.ErrorStack(); stack != nil {
			s.WriteMore()
			s.WriteObjectField("stack")
			writeJSON(s, stack)
		}
		s.WriteObjectEnd()
		s.WriteObjectEnd()
	case rpcvalue.KindShmem:
		s.WriteObjectStart()
		s.WriteObjectField("$shmem")
		s.WriteObjectStart()
		s.WriteObjectField("fd")
		s.WriteInt(v.ShmemFd())
		s.WriteMore()
		s.WriteObjectField("offset")
		s.WriteUint64(v.ShmemOffset())
		s.WriteMore()
		s.WriteObjectField("size")
		s.WriteUint64(v.ShmemSize())
		s.WriteObjectEnd()
		s.WriteObjectEnd()
	case rpcvalue.KindArray:
		s.WriteArrayStart()
		first := true
		v.ArrayEach(func(_ int, e *rpcvalue.Value) bool {
			if !first {
				s.WriteMore()
			}
			first = false
			writeJSON(s, e)
			return true
		})
		s.WriteArrayEnd()
	case rpcvalue.KindDictionary:
		s.WriteObjectStart()
		first := true
		v.DictEach(func(key string, val *rpcvalue.Value) bool {
			if !first {
				s.WriteMore()
			}
			first = false
			s.WriteObjectField(key)
			writeJSON(s, val)
			return true
		})
		s.WriteObjectEnd()
	}
}

func readJSON(iter *jsoniter.Iterator) (*rpcvalue.Value, error) {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return rpcvalue.Null(), nil
	case jsoniter.BoolValue:
		return rpcvalue.Bool(iter.ReadBool()), nil
	case jsoniter.StringValue:
		return rpcvalue.String(iter.ReadString()), nil
	case jsoniter.NumberValue:
		return readJSONNumber(iter)
	case jsoniter.ArrayValue:
		return readJSONArray(iter)
	case jsoniter.ObjectValue:
		return readJSONObject(iter)
	default:
		return nil, fmt.Errorf("rpcserializer(json): unexpected token")
	}
}

func readJSONNumber(iter *jsoniter.Iterator) (*rpcvalue.Value, error) {
	num := iter.ReadNumber()
	s := string(num)
	for _, ch := range s {
		if ch == '.' || ch == 'e' || ch == 'E' {
			f, err := num.Float64()
			if err != nil {
				return nil, err
			}
			return rpcvalue.Double(f), nil
		}
	}
	i, err := num.Int64()
	if err != nil {
		return nil, err
	}
	return rpcvalue.Int64(i), nil
}

func readJSONArray(iter *jsoniter.Iterator) (*rpcvalue.Value, error) {
	out := rpcvalue.Array()
	for iter.ReadArray() {
		el, err := readJSON(iter)
		if err != nil {
			out.Release()
			return nil, err
		}
		out.ArrayAppend(el)
	}
	return out, nil
}

// readJSONObject decodes a JSON object in one ReadObjectCB pass. A leading
// "$uint"/"$date"/"$bin"/"$fd"/"$error"/"$shmem" key is treated as an
// extension tag wrapping a single value (spec §6.2); a tag key followed by
// more keys is an error. Any other shape decodes as a plain
// insertion-ordered Dictionary.
func readJSONObject(iter *jsoniter.Iterator) (*rpcvalue.Value, error) {
	var tagged *rpcvalue.Value
	var dict *rpcvalue.Value
	var err error
	first := true

	iter.ReadObjectCB(func(i *jsoniter.Iterator, key string) bool {
		if first {
			first = false
			if v, ok, terr := decodeJSONTag(i, key); ok {
				if terr != nil {
					err = terr
					return false
				}
				tagged = v
				return true
			}
			dict = rpcvalue.Dictionary()
		}
		if tagged != nil {
			err = fmt.Errorf("rpcserializer(json): unexpected key %q after extension tag", key)
			i.Skip()
			return false
		}
		val, verr := readJSON(i)
		if verr != nil {
			err = verr
			return false
		}
		dict.DictSet(key, val)
		return true
	})

	if err != nil {
		if dict != nil {
			dict.Release()
		}
		if tagged != nil {
			tagged.Release()
		}
		return nil, err
	}
	if tagged != nil {
		return tagged, nil
	}
	if dict == nil {
		dict = rpcvalue.Dictionary()
	}
	return dict, nil
}

// decodeJSONTag reports (value, true, err) if key is a recognized extension
// tag, consuming its value from i; otherwise (nil, false, nil) and i is left
// positioned at the still-unread value for the generic Dictionary path.
func decodeJSONTag(i *jsoniter.Iterator, key string) (*rpcvalue.Value, bool, error) {
	switch key {
	case "$uint":
		return rpcvalue.UInt64(i.ReadUint64()), true, nil
	case "$date":
		return rpcvalue.Date(i.ReadInt64()), true, nil
	case "$bin":
		enc := i.ReadString()
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, true, err
		}
		return rpcvalue.Binary(raw, nil), true, nil
	case "$fd":
		return rpcvalue.BorrowFd(i.ReadInt()), true, nil
	case "$error":
		v, err := readJSON(i)
		if err != nil {
			return nil, true, err
		}
		defer v.Release()
		return errorFromFields(v), true, nil
	case "$shmem":
		v, err := readJSON(i)
		if err != nil {
			return nil, true, err
		}
		defer v.Release()
		fd, _ := v.DictGet("fd")
		offset, _ := v.DictGet("offset")
		size, _ := v.DictGet("size")
		return rpcvalue.BorrowedShmem(intOf(fd), uintOf(offset), uintOf(size)), true, nil
	default:
		return nil, false, nil
	}
}

func errorFromFields(v *rpcvalue.Value) *rpcvalue.Value {
	code, _ := v.DictGet("code")
	message, _ := v.DictGet("message")
	var extra, stack *rpcvalue.Value
	if e, ok := v.DictGet("extra"); ok {
		extra = rpcvalue.Copy(e)
	}
	if s, ok := v.DictGet("stack"); ok {
		stack = rpcvalue.Copy(s)
	}
	var msg string
	if message != nil {
		msg = message.StringValue()
	}
	return rpcvalue.NewError(int32(intOf(code)), msg, extra, stack)
}

func intOf(v *rpcvalue.Value) int {
	if v == nil {
		return 0
	}
	switch v.Kind() {
	case rpcvalue.KindInt64:
		return int(v.Int64Value())
	case rpcvalue.KindUInt64:
		return int(v.UInt64Value())
	default:
		return 0
	}
}

func uintOf(v *rpcvalue.Value) uint64 {
	if v == nil {
		return 0
	}
	switch v.Kind() {
	case rpcvalue.KindInt64:
		return uint64(v.Int64Value())
	case rpcvalue.KindUInt64:
		return v.UInt64Value()
	default:
		return 0
	}
}
