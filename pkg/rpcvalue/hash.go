package rpcvalue

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// Hash returns a process-stable hash matching Equal: equal values hash
// equal (spec §3.1, §4.1). Dictionary hashing XORs per-key hashes so
// insertion order does not affect the result; Array hashing folds
// sequentially so order does affect the result.
func Hash(v *Value) uint64 {
	h := fnv.New64a()
	hashInto(h, v)
	return h.Sum64()
}

// Hash is the method form of the package-level Hash.
func (v *Value) Hash() uint64 { return Hash(v) }

func hashInto(h hashWriter, v *Value) {
	var tag [1]byte
	tag[0] = byte(v.kind)
	h.Write(tag[:])

	switch v.kind {
	case KindNull:
	case KindBool:
		if v.b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case KindUInt64:
		writeU64(h, v.u64)
	case KindInt64:
		writeU64(h, uint64(v.i64))
	case KindDouble:
		writeU64(h, math.Float64bits(v.f64))
	case KindDate:
		writeU64(h, uint64(v.i64))
	case KindString:
		h.Write([]byte(v.str))
	case KindBinary:
		h.Write(v.bin)
	case KindFd:
		writeU64(h, uint64(v.fd.fd))
	case KindDictionary:
		var acc uint64
		v.dict.each(func(key string, val *Value) bool {
			sub := fnvNew()
			sub.Write([]byte(key))
			hashInto(sub, val)
			acc ^= sub.Sum64()
			return true
		})
		writeU64(h, acc)
	case KindArray:
		for _, e := range v.arr {
			hashInto(h, e)
		}
	case KindError:
		writeU64(h, uint64(v.errv.code))
		h.Write([]byte(v.errv.message))
		if v.errv.extra != nil {
			hashInto(h, v.errv.extra)
		}
		if v.errv.stack != nil {
			hashInto(h, v.errv.stack)
		}
	case KindShmem:
		writeU64(h, uint64(v.shm.fd))
		writeU64(h, v.shm.offset)
		writeU64(h, v.shm.size)
	}
}

// hashWriter is the subset of hash.Hash64 used above, allowing a fresh
// sub-hash per dictionary entry without importing fnv at each call site.
type hashWriter interface {
	Write(p []byte) (int, error)
	Sum64() uint64
}

func fnvNew() hashWriter {
	return fnv.New64a()
}

func writeU64(h hashWriter, u uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], u)
	h.Write(buf[:])
}

