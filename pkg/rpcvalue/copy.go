package rpcvalue

// Copy returns a deep copy of v: containers are duplicated recursively,
// Binary data is copied into a fresh slice with no destructor (the copy
// does not own the original's external resource), and Fd/Shmem clones share
// the original's descriptor/mapping per spec §4.1's default (non-adopting)
// clone semantics. Copy(V) always satisfies Equal(V, Copy(V)).
func Copy(v *Value) *Value {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindNull:
		return Null()
	case KindBool:
		return Bool(v.b)
	case KindUInt64:
		return UInt64(v.u64)
	case KindInt64:
		return Int64(v.i64)
	case KindDouble:
		return Double(v.f64)
	case KindDate:
		return Date(v.i64)
	case KindString:
		return String(v.str)
	case KindBinary:
		b := make([]byte, len(v.bin))
		copy(b, v.bin)
		return Binary(b, nil)
	case KindFd:
		return BorrowFd(v.fd.fd)
	case KindDictionary:
		out := Dictionary()
		v.dict.each(func(key string, val *Value) bool {
			out.DictSet(key, Copy(val))
			return true
		})
		return out
	case KindArray:
		out := Array()
		for _, e := range v.arr {
			out.ArrayAppend(Copy(e))
		}
		return out
	case KindError:
		return NewError(v.errv.code, v.errv.message, Copy(v.errv.extra), Copy(v.errv.stack))
	case KindShmem:
		out := newValue(KindShmem)
		out.shm = &shmValue{fd: v.shm.fd, offset: v.shm.offset, size: v.shm.size, data: v.shm.data, owned: false}
		return out
	default:
		return Null()
	}
}
