// Package query implements the dotted-path navigation and rule-tree
// filtering language from spec §3.3: get/set/delete/contains over a
// Dictionary/Array tree, and a query operator for filtering a top-level
// Array by a tree of field/logical rules.
package query

import (
	"strconv"
	"strings"

	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// segments splits a dotted path ("a.b.0.c.1") into its components. Plain
// recursive descent over the Value tree; no teacher precedent for this
// shape, noted in DESIGN.md.
func segments(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func navigate(v *rpcvalue.Value, segs []string) (*rpcvalue.Value, bool) {
	cur := v
	for _, seg := range segs {
		if cur == nil {
			return nil, false
		}
		switch cur.Kind() {
		case rpcvalue.KindDictionary:
			next, ok := cur.DictGet(seg)
			if !ok {
				return nil, false
			}
			cur = next
		case rpcvalue.KindArray:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, false
			}
			next, ok := cur.ArrayGet(idx)
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	return cur, true
}

// Get navigates path and returns the located value, or def if the path does
// not resolve. Never returns an error (spec §4.1).
func Get(v *rpcvalue.Value, path string, def *rpcvalue.Value) *rpcvalue.Value {
	got, ok := navigate(v, segments(path))
	if !ok {
		return def
	}
	return got
}

// Contains reports whether path resolves to a value.
func Contains(v *rpcvalue.Value, path string) bool {
	_, ok := navigate(v, segments(path))
	return ok
}

// Set stores value at path, creating intermediate Dictionary/Array
// containers as needed. If steal is false, value is retained before being
// stored (the caller keeps its own reference); if steal is true, ownership
// transfers to the tree.
func Set(v *rpcvalue.Value, path string, value *rpcvalue.Value, steal bool) error {
	segs := segments(path)
	if len(segs) == 0 {
		return errEmptyPath
	}
	if !steal {
		value = value.Retain()
	}
	return setAt(v, segs, value)
}

func setAt(v *rpcvalue.Value, segs []string, value *rpcvalue.Value) error {
	if len(segs) == 1 {
		switch v.Kind() {
		case rpcvalue.KindDictionary:
			v.DictSet(segs[0], value)
			return nil
		case rpcvalue.KindArray:
			idx, err := strconv.Atoi(segs[0])
			if err != nil {
				value.Release()
				return errBadIndex
			}
			v.ArraySet(idx, value)
			return nil
		default:
			value.Release()
			return errNotContainer
		}
	}

	head, rest := segs[0], segs[1:]
	var child *rpcvalue.Value
	var ok bool
	switch v.Kind() {
	case rpcvalue.KindDictionary:
		child, ok = v.DictGet(head)
		if !ok {
			child = nextContainer(rest)
			v.DictSet(head, child)
		}
	case rpcvalue.KindArray:
		idx, err := strconv.Atoi(head)
		if err != nil {
			value.Release()
			return errBadIndex
		}
		child, ok = v.ArrayGet(idx)
		if !ok {
			child = nextContainer(rest)
			v.ArraySet(idx, child)
		}
	default:
		value.Release()
		return errNotContainer
	}
	return setAt(child, rest, value)
}

func nextContainer(restSegs []string) *rpcvalue.Value {
	if len(restSegs) > 0 {
		if _, err := strconv.Atoi(restSegs[0]); err == nil {
			return rpcvalue.Array()
		}
	}
	return rpcvalue.Dictionary()
}

// Delete removes the value at path, releasing it. For a Dictionary-addressed
// path it removes the key; for an Array-addressed path it removes the
// element by index, shifting subsequent elements down (mirrors
// rpc_array_remove_index in the original). Returns false if the path does
// not resolve to a removable entry.
func Delete(v *rpcvalue.Value, path string) bool {
	segs := segments(path)
	if len(segs) == 0 {
		return false
	}
	parent, ok := navigate(v, segs[:len(segs)-1])
	if !ok {
		return false
	}
	last := segs[len(segs)-1]
	switch parent.Kind() {
	case rpcvalue.KindDictionary:
		return parent.DictDelete(last)
	case rpcvalue.KindArray:
		idx, err := strconv.Atoi(last)
		if err != nil {
			return false
		}
		return parent.ArrayRemove(idx)
	default:
		return false
	}
}

type queryError string

func (e queryError) Error() string { return string(e) }

const (
	errEmptyPath    = queryError("query: empty path")
	errBadIndex     = queryError("query: array segment is not a valid index")
	errNotContainer = queryError("query: path segment does not resolve to a container")
)
