// Package rpcvalue implements the polymorphic value model: a tagged,
// reference-counted value tree with structural equality, stable hashing, a
// pack/unpack DSL (subpackage pack) and a dotted-path query language
// (subpackage query).
package rpcvalue

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// errorValue holds the fields of an Error value (spec §3.1).
type errorValue struct {
	code    int32
	message string
	extra   *Value
	stack   *Value
}

// fdValue wraps a file descriptor. An adopted fd closes on release; a
// borrowed fd never does. Grounded on the teacher's distinction between
// owned and peeked descriptors during ancillary-data handling.
type fdValue struct {
	fd    int
	file  *os.File
	owned bool
}

// Value is a tagged union over the 13 kinds in kind.go. Exactly one
// payload field is meaningful for a given Kind. Values are reference
// counted: construction starts the count at 1, Retain increments, Release
// decrements and tears down owned resources exactly once when it reaches
// zero.
type Value struct {
	kind Kind
	refs atomic.Int32

	b    bool
	u64  uint64
	i64  int64
	f64  float64
	str  string
	bin  []byte
	binD func([]byte)
	fd   *fdValue
	dict *orderedDict
	arr  []*Value
	errv *errorValue
	shm  *shmValue

	teardown sync.Once

	// meta carries opaque type-instance metadata (spec §3.4). The core
	// stores, retains and releases it without interpreting it.
	meta *Value

	// Source location, populated only when parsed from text (spec §3.1).
	line, col int
}

func newValue(k Kind) *Value {
	v := &Value{kind: k}
	v.refs.Store(1)
	return v
}

// Kind reports the value's tag.
func (v *Value) Kind() Kind { return v.kind }

// SetSourceLocation attaches optional line/column metadata from a text
// parse (spec §3.1). Zero values mean "unknown".
func (v *Value) SetSourceLocation(line, col int) {
	v.line, v.col = line, col
}

// SourceLocation returns the line/column recorded by SetSourceLocation.
func (v *Value) SourceLocation() (line, col int) { return v.line, v.col }

// SetTypeInstance attaches opaque schema metadata (spec §3.4). Steals the
// reference to meta.
func (v *Value) SetTypeInstance(meta *Value) {
	if v.meta != nil {
		v.meta.Release()
	}
	v.meta = meta
}

// TypeInstance returns the attached metadata value, or nil.
func (v *Value) TypeInstance() *Value { return v.meta }

// ---------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------

// Null returns the null value.
func Null() *Value { return newValue(KindNull) }

// Bool wraps a boolean.
func Bool(b bool) *Value {
	v := newValue(KindBool)
	v.b = b
	return v
}

// UInt64 wraps an unsigned 64-bit integer.
func UInt64(u uint64) *Value {
	v := newValue(KindUInt64)
	v.u64 = u
	return v
}

// Int64 wraps a signed 64-bit integer.
func Int64(i int64) *Value {
	v := newValue(KindInt64)
	v.i64 = i
	return v
}

// Double wraps a 64-bit float.
func Double(f float64) *Value {
	v := newValue(KindDouble)
	v.f64 = f
	return v
}

// Date wraps a unix-second timestamp.
func Date(sec int64) *Value {
	v := newValue(KindDate)
	v.i64 = sec
	return v
}

// String wraps a UTF-8, nul-free string.
func String(s string) *Value {
	v := newValue(KindString)
	v.str = s
	return v
}

// Binary wraps a byte slice. If destructor is non-nil it is invoked exactly
// once, with the slice, when the last reference is released.
func Binary(b []byte, destructor func([]byte)) *Value {
	v := newValue(KindBinary)
	v.bin = b
	v.binD = destructor
	return v
}

// AdoptFd wraps a file descriptor the Value now owns: it is closed when the
// last reference is released.
func AdoptFd(f *os.File) *Value {
	v := newValue(KindFd)
	v.fd = &fdValue{fd: int(f.Fd()), file: f, owned: true}
	return v
}

// BorrowFd wraps a bare file descriptor the Value does not own: it is never
// closed on release.
func BorrowFd(fd int) *Value {
	v := newValue(KindFd)
	v.fd = &fdValue{fd: fd, owned: false}
	return v
}

// Dictionary returns an empty, insertion-ordered dictionary.
func Dictionary() *Value {
	v := newValue(KindDictionary)
	v.dict = newOrderedDict()
	return v
}

// Array returns an empty array.
func Array() *Value {
	v := newValue(KindArray)
	return v
}

// NewError constructs an Error value per spec §3.1. extra and stack may be
// nil. Ownership of extra/stack, if provided, transfers to the Error value.
func NewError(code int32, message string, extra, stack *Value) *Value {
	v := newValue(KindError)
	v.errv = &errorValue{code: code, message: message, extra: extra, stack: stack}
	return v
}

// ---------------------------------------------------------------------
// Reference counting
// ---------------------------------------------------------------------

// Retain increments the reference count and returns v for chaining.
func (v *Value) Retain() *Value {
	if v == nil {
		return nil
	}
	v.refs.Add(1)
	return v
}

// Release decrements the reference count. On reaching zero it recursively
// releases children and runs kind-specific teardown exactly once.
func (v *Value) Release() {
	if v == nil {
		return
	}
	if v.refs.Add(-1) > 0 {
		return
	}
	v.teardown.Do(v.doTeardown)
}

func (v *Value) doTeardown() {
	switch v.kind {
	case KindBinary:
		if v.binD != nil {
			v.binD(v.bin)
		}
	case KindFd:
		if v.fd != nil && v.fd.owned {
			if v.fd.file != nil {
				_ = v.fd.file.Close()
			} else {
				_ = closeFd(v.fd.fd)
			}
		}
	case KindDictionary:
		if v.dict != nil {
			v.dict.each(func(_ string, c *Value) bool {
				c.Release()
				return true
			})
		}
	case KindArray:
		for _, c := range v.arr {
			c.Release()
		}
	case KindError:
		if v.errv != nil {
			v.errv.extra.Release()
			v.errv.stack.Release()
		}
	case KindShmem:
		v.releaseShmem()
	}
	if v.meta != nil {
		v.meta.Release()
	}
}

// RefCount reports the current reference count. Intended for tests and
// diagnostics, not for control flow.
func (v *Value) RefCount() int32 { return v.refs.Load() }

// ---------------------------------------------------------------------
// Scalar accessors
// ---------------------------------------------------------------------

// BoolValue returns the boolean payload. Panics if Kind() != KindBool.
func (v *Value) BoolValue() bool { v.mustKind(KindBool); return v.b }

// UInt64Value returns the uint64 payload. Panics if Kind() != KindUInt64.
func (v *Value) UInt64Value() uint64 { v.mustKind(KindUInt64); return v.u64 }

// Int64Value returns the int64 payload. Panics if Kind() != KindInt64.
func (v *Value) Int64Value() int64 { v.mustKind(KindInt64); return v.i64 }

// DoubleValue returns the float64 payload. Panics if Kind() != KindDouble.
func (v *Value) DoubleValue() float64 { v.mustKind(KindDouble); return v.f64 }

// DateValue returns the unix-second payload. Panics if Kind() != KindDate.
func (v *Value) DateValue() int64 { v.mustKind(KindDate); return v.i64 }

// StringValue returns the string payload. Panics if Kind() != KindString.
func (v *Value) StringValue() string { v.mustKind(KindString); return v.str }

// BinaryValue returns the byte payload. Panics if Kind() != KindBinary.
func (v *Value) BinaryValue() []byte { v.mustKind(KindBinary); return v.bin }

// FdValue returns the numeric descriptor. Panics if Kind() != KindFd.
func (v *Value) FdValue() int { v.mustKind(KindFd); return v.fd.fd }

// ErrorCode returns the Error value's code. Panics if Kind() != KindError.
func (v *Value) ErrorCode() int32 { v.mustKind(KindError); return v.errv.code }

// ErrorMessage returns the Error value's message. Panics if Kind() != KindError.
func (v *Value) ErrorMessage() string { v.mustKind(KindError); return v.errv.message }

// ErrorExtra returns the Error value's optional extra payload, or nil.
func (v *Value) ErrorExtra() *Value { v.mustKind(KindError); return v.errv.extra }

// ErrorStack returns the Error value's optional stack payload, or nil.
func (v *Value) ErrorStack() *Value { v.mustKind(KindError); return v.errv.stack }

func (v *Value) mustKind(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("rpcvalue: expected %s, got %s", k, v.kind))
	}
}

// ---------------------------------------------------------------------
// Dictionary operations
// ---------------------------------------------------------------------

// DictGet returns the value stored under key, or (nil, false). Panics if
// Kind() != KindDictionary.
func (v *Value) DictGet(key string) (*Value, bool) {
	v.mustKind(KindDictionary)
	return v.dict.get(key)
}

// DictSet stores val under key, stealing val's reference. Replacing a key
// releases the previous value and preserves insertion position. Panics if
// Kind() != KindDictionary.
func (v *Value) DictSet(key string, val *Value) {
	v.mustKind(KindDictionary)
	v.dict.set(key, val)
}

// DictDelete removes key, releasing its value. Returns false if key was not
// present. Panics if Kind() != KindDictionary.
func (v *Value) DictDelete(key string) bool {
	v.mustKind(KindDictionary)
	return v.dict.delete(key)
}

// DictLen returns the number of keys. Panics if Kind() != KindDictionary.
func (v *Value) DictLen() int {
	v.mustKind(KindDictionary)
	return v.dict.len()
}

// DictEach iterates entries in insertion order. fn returns false to stop.
// Panics if Kind() != KindDictionary.
func (v *Value) DictEach(fn func(key string, val *Value) bool) {
	v.mustKind(KindDictionary)
	v.dict.each(fn)
}

// ---------------------------------------------------------------------
// Array operations
// ---------------------------------------------------------------------

// ArrayLen returns the number of elements. Panics if Kind() != KindArray.
func (v *Value) ArrayLen() int {
	v.mustKind(KindArray)
	return len(v.arr)
}

// ArrayGet returns the element at index, or (nil, false) if out of range.
// Panics if Kind() != KindArray.
func (v *Value) ArrayGet(index int) (*Value, bool) {
	v.mustKind(KindArray)
	if index < 0 || index >= len(v.arr) {
		return nil, false
	}
	return v.arr[index], true
}

// ArrayAppend appends val, stealing its reference. Panics if Kind() != KindArray.
func (v *Value) ArrayAppend(val *Value) {
	v.mustKind(KindArray)
	v.arr = append(v.arr, val)
}

// ArraySet stores val at index, stealing its reference. Gaps created by an
// index beyond the current length are filled with Null. Replacing an
// existing index releases the previous value. Panics if Kind() != KindArray.
func (v *Value) ArraySet(index int, val *Value) {
	v.mustKind(KindArray)
	for len(v.arr) <= index {
		v.arr = append(v.arr, Null())
	}
	v.arr[index].Release()
	v.arr[index] = val
}

// ArrayEach iterates elements in order. fn returns false to stop. Panics if
// Kind() != KindArray.
func (v *Value) ArrayEach(fn func(index int, val *Value) bool) {
	v.mustKind(KindArray)
	for i, e := range v.arr {
		if !fn(i, e) {
			return
		}
	}
}

// ArrayRemove removes and releases the element at index, shifting
// subsequent elements down by one (mirrors rpc_array_remove_index's
// g_ptr_array_remove_index shift-down semantics). Reports false if index is
// out of range. Panics if Kind() != KindArray.
func (v *Value) ArrayRemove(index int) bool {
	v.mustKind(KindArray)
	if index < 0 || index >= len(v.arr) {
		return false
	}
	v.arr[index].Release()
	copy(v.arr[index:], v.arr[index+1:])
	v.arr = v.arr[:len(v.arr)-1]
	return true
}

// ---------------------------------------------------------------------
// Equality, hashing, description
// ---------------------------------------------------------------------

// Equal reports whether v and other are structurally equal per spec §3.1:
// same kind and contents; Dictionary compares by key set and per-key value
// (insertion order excluded); Binary compares length and bytes; Fd compares
// numeric descriptor identity only.
func Equal(v, other *Value) bool {
	if v == other {
		return true
	}
	if v == nil || other == nil {
		return false
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindUInt64:
		return v.u64 == other.u64
	case KindInt64:
		return v.i64 == other.i64
	case KindDouble:
		return v.f64 == other.f64
	case KindDate:
		return v.i64 == other.i64
	case KindString:
		return v.str == other.str
	case KindBinary:
		return string(v.bin) == string(other.bin)
	case KindFd:
		return v.fd.fd == other.fd.fd
	case KindDictionary:
		if v.dict.len() != other.dict.len() {
			return false
		}
		eq := true
		v.dict.each(func(key string, val *Value) bool {
			ov, ok := other.dict.get(key)
			if !ok || !Equal(val, ov) {
				eq = false
				return false
			}
			return true
		})
		return eq
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !Equal(v.arr[i], other.arr[i]) {
				return false
			}
		}
		return true
	case KindError:
		return v.errv.code == other.errv.code &&
			v.errv.message == other.errv.message &&
			Equal(v.errv.extra, other.errv.extra) &&
			Equal(v.errv.stack, other.errv.stack)
	case KindShmem:
		return v.equalShmem(other)
	default:
		return false
	}
}

// Equal is the method form of the package-level Equal.
func (v *Value) Equal(other *Value) bool { return Equal(v, other) }

// Describe produces a human-readable, stable-enough-to-debug multi-line
// form with explicit type tags (spec §4.1), e.g. `<int64> -1234`. Not a wire
// format.
func (v *Value) Describe() string {
	var b strings.Builder
	v.describe(&b, 0)
	return b.String()
}

func (v *Value) describe(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v.kind {
	case KindNull:
		fmt.Fprintf(b, "%s<null>", indent)
	case KindBool:
		fmt.Fprintf(b, "%s<bool> %t", indent, v.b)
	case KindUInt64:
		fmt.Fprintf(b, "%s<uint64> %d", indent, v.u64)
	case KindInt64:
		fmt.Fprintf(b, "%s<int64> %d", indent, v.i64)
	case KindDouble:
		fmt.Fprintf(b, "%s<double> %g", indent, v.f64)
	case KindDate:
		fmt.Fprintf(b, "%s<date> %d", indent, v.i64)
	case KindString:
		fmt.Fprintf(b, "%s<string> %q", indent, v.str)
	case KindBinary:
		fmt.Fprintf(b, "%s<binary> %d bytes", indent, len(v.bin))
	case KindFd:
		fmt.Fprintf(b, "%s<fd> %d", indent, v.fd.fd)
	case KindDictionary:
		fmt.Fprintf(b, "%s<dictionary> {\n", indent)
		v.dict.each(func(key string, val *Value) bool {
			fmt.Fprintf(b, "%s  %q:\n", indent, key)
			val.describe(b, depth+2)
			b.WriteString("\n")
			return true
		})
		fmt.Fprintf(b, "%s}", indent)
	case KindArray:
		fmt.Fprintf(b, "%s<array> [\n", indent)
		for _, e := range v.arr {
			e.describe(b, depth+1)
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "%s]", indent)
	case KindError:
		fmt.Fprintf(b, "%s<error> code=%d message=%q", indent, v.errv.code, v.errv.message)
	case KindShmem:
		v.describeShmem(b, indent)
	default:
		fmt.Fprintf(b, "%s<unknown>", indent)
	}
}

// ---------------------------------------------------------------------
// Traversal helpers (spec §4.1 "apply-block" / "map-block" iteration)
// ---------------------------------------------------------------------

// ApplyResult is returned by an apply function to control traversal.
type ApplyResult int

const (
	ApplyContinue ApplyResult = iota
	ApplyStop
)

// Apply walks Array elements or Dictionary values in order, stopping early
// if fn returns ApplyStop. No-op for scalar kinds.
func (v *Value) Apply(fn func(v *Value) ApplyResult) {
	switch v.kind {
	case KindArray:
		for _, e := range v.arr {
			if fn(e) == ApplyStop {
				return
			}
		}
	case KindDictionary:
		v.dict.each(func(_ string, val *Value) bool {
			return fn(val) != ApplyStop
		})
	}
}

// Map replaces each Array element or Dictionary value with fn's result,
// stealing fn's returned reference and releasing the replaced value. No-op
// for scalar kinds.
func (v *Value) Map(fn func(v *Value) *Value) {
	switch v.kind {
	case KindArray:
		for i, e := range v.arr {
			v.arr[i] = fn(e)
			if v.arr[i] != e {
				e.Release()
			}
		}
	case KindDictionary:
		var keys []string
		v.dict.each(func(key string, _ *Value) bool {
			keys = append(keys, key)
			return true
		})
		for _, key := range keys {
			old, _ := v.dict.get(key)
			v.dict.set(key, fn(old))
		}
	}
}

// DupFd returns a new Value adopting a dup(2) of the descriptor, leaving v
// untouched. Unlike a plain clone (which shares the kernel descriptor per
// spec §4.1's default), the returned Value owns an independent descriptor
// that is closed on its own release. Panics if Kind() != KindFd.
func (v *Value) DupFd() (*Value, error) {
	v.mustKind(KindFd)
	return dupFd(v.fd.fd)
}
