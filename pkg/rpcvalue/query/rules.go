package query

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/gobwas/glob"
	"github.com/twoporeguys/go-librpc/pkg/rpcvalue"
)

// Op is a field-rule comparison operator (spec §3.3).
type Op string

const (
	OpEq         Op = "="
	OpNeq        Op = "!="
	OpGt         Op = ">"
	OpLt         Op = "<"
	OpGte        Op = ">="
	OpLte        Op = "<="
	OpRegex      Op = "~"
	OpIn         Op = "in"
	OpNotIn      Op = "nin"
	OpContains   Op = "contains"
	OpNotContain Op = "ncontains"
	OpMatch      Op = "match"
)

// LogOp combines nested rules (spec §3.3).
type LogOp string

const (
	LogAnd LogOp = "and"
	LogOr  LogOp = "or"
	LogNor LogOp = "nor"
)

// Rule is either a field rule ([path, op, rhs]) or a logical rule
// ([logop, [rule, ...]]). Exactly one of the two groups of fields is set.
type Rule struct {
	Path string
	Op   Op
	RHS  *rpcvalue.Value

	LogOp LogOp
	Rules []Rule
}

func (r Rule) isLogical() bool { return r.LogOp != "" }

// Params controls query iteration (spec §3.3).
type Params struct {
	Single   bool
	Count    bool
	Offset   uint64
	Limit    uint64
	Reverse  bool
	Sort     func(a, b *rpcvalue.Value) int
	Callback func(*rpcvalue.Value) *rpcvalue.Value
}

// Query filters arr (a top-level Array Value) by rules and applies params,
// yielding matching elements one by one. If params.Count is set the caller
// should drain the sequence and use its own counter; Query itself performs
// no special-casing beyond offset/limit/reverse/sort/single, matching
// spec §3.3 ("count consumes all and returns an integer" — the integer is
// the caller's responsibility once this iterator is drained).
func Query(arr *rpcvalue.Value, params Params, rules []Rule) (iter.Seq[*rpcvalue.Value], error) {
	if arr.Kind() != rpcvalue.KindArray {
		return nil, fmt.Errorf("query: expected array, got %s", arr.Kind())
	}

	var matched []*rpcvalue.Value
	arr.ArrayEach(func(_ int, v *rpcvalue.Value) bool {
		ok, err := evalRules(v, rules)
		if err == nil && ok {
			matched = append(matched, v)
		}
		return true
	})

	if params.Sort != nil {
		sort.SliceStable(matched, func(i, j int) bool { return params.Sort(matched[i], matched[j]) < 0 })
	}
	if params.Reverse {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	start := int(params.Offset)
	if start > len(matched) {
		start = len(matched)
	}
	matched = matched[start:]
	if params.Limit > 0 && uint64(len(matched)) > params.Limit {
		matched = matched[:params.Limit]
	}
	if params.Single && len(matched) > 1 {
		matched = matched[:1]
	}

	return func(yield func(*rpcvalue.Value) bool) {
		for _, m := range matched {
			out := m
			if params.Callback != nil {
				out = params.Callback(m)
			}
			if !yield(out) {
				return
			}
		}
	}, nil
}

// QueryApply evaluates rules against a single value (not an array) and
// returns value if it matches, or nil otherwise.
func QueryApply(value *rpcvalue.Value, rules []Rule) (*rpcvalue.Value, bool) {
	ok, err := evalRules(value, rules)
	if err != nil || !ok {
		return nil, false
	}
	return value, true
}

func evalRules(v *rpcvalue.Value, rules []Rule) (bool, error) {
	for _, r := range rules {
		ok, err := evalRule(v, r)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalRule(v *rpcvalue.Value, r Rule) (bool, error) {
	if r.isLogical() {
		return evalLogical(v, r)
	}
	field := Get(v, r.Path, nil)
	return evalField(field, r.Op, r.RHS)
}

func evalLogical(v *rpcvalue.Value, r Rule) (bool, error) {
	switch r.LogOp {
	case LogAnd:
		for _, sub := range r.Rules {
			ok, err := evalRule(v, sub)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case LogOr:
		for _, sub := range r.Rules {
			ok, err := evalRule(v, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case LogNor:
		for _, sub := range r.Rules {
			ok, err := evalRule(v, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("query: unknown logical operator %q", r.LogOp)
	}
}

func evalField(field *rpcvalue.Value, op Op, rhs *rpcvalue.Value) (bool, error) {
	switch op {
	case OpEq:
		return field != nil && rpcvalue.Equal(field, rhs), nil
	case OpNeq:
		return field == nil || !rpcvalue.Equal(field, rhs), nil
	case OpGt, OpLt, OpGte, OpLte:
		return compareOp(field, op, rhs)
	case OpRegex:
		return regexOp(field, rhs)
	case OpIn:
		return inOp(field, rhs, true)
	case OpNotIn:
		return inOp(field, rhs, false)
	case OpContains:
		return containsOp(field, rhs, true)
	case OpNotContain:
		return containsOp(field, rhs, false)
	case OpMatch:
		return matchOp(field, rhs)
	default:
		return false, fmt.Errorf("query: unknown operator %q", op)
	}
}

func numeric(v *rpcvalue.Value) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.Kind() {
	case rpcvalue.KindInt64:
		return float64(v.Int64Value()), true
	case rpcvalue.KindUInt64:
		return float64(v.UInt64Value()), true
	case rpcvalue.KindDouble:
		return v.DoubleValue(), true
	case rpcvalue.KindDate:
		return float64(v.DateValue()), true
	default:
		return 0, false
	}
}

func compareOp(field *rpcvalue.Value, op Op, rhs *rpcvalue.Value) (bool, error) {
	if field != nil && field.Kind() == rpcvalue.KindString && rhs.Kind() == rpcvalue.KindString {
		c := strings.Compare(field.StringValue(), rhs.StringValue())
		return compareResult(c, op), nil
	}
	fn, fok := numeric(field)
	rn, rok := numeric(rhs)
	if !fok || !rok {
		return false, fmt.Errorf("query: operator %q requires comparable operands", op)
	}
	c := 0
	switch {
	case fn < rn:
		c = -1
	case fn > rn:
		c = 1
	}
	return compareResult(c, op), nil
}

func compareResult(c int, op Op) bool {
	switch op {
	case OpGt:
		return c > 0
	case OpLt:
		return c < 0
	case OpGte:
		return c >= 0
	case OpLte:
		return c <= 0
	default:
		return false
	}
}

func regexOp(field, rhs *rpcvalue.Value) (bool, error) {
	if field == nil || field.Kind() != rpcvalue.KindString || rhs.Kind() != rpcvalue.KindString {
		return false, nil
	}
	re, err := regexp2.Compile(rhs.StringValue(), regexp2.None)
	if err != nil {
		return false, fmt.Errorf("query: bad regex %q: %w", rhs.StringValue(), err)
	}
	return re.MatchString(field.StringValue())
}

func matchOp(field, rhs *rpcvalue.Value) (bool, error) {
	if field == nil || field.Kind() != rpcvalue.KindString || rhs.Kind() != rpcvalue.KindString {
		return false, nil
	}
	g, err := glob.Compile(rhs.StringValue())
	if err != nil {
		return false, fmt.Errorf("query: bad glob %q: %w", rhs.StringValue(), err)
	}
	return g.Match(field.StringValue()), nil
}

func inOp(field, rhs *rpcvalue.Value, want bool) (bool, error) {
	if rhs.Kind() != rpcvalue.KindArray {
		return false, fmt.Errorf("query: %q rhs must be an array", OpIn)
	}
	found := false
	rhs.ArrayEach(func(_ int, e *rpcvalue.Value) bool {
		if field != nil && rpcvalue.Equal(field, e) {
			found = true
			return false
		}
		return true
	})
	return found == want, nil
}

func containsOp(field, rhs *rpcvalue.Value, want bool) (bool, error) {
	if field == nil {
		return !want, nil
	}
	switch field.Kind() {
	case rpcvalue.KindArray:
		found := false
		field.ArrayEach(func(_ int, e *rpcvalue.Value) bool {
			if rpcvalue.Equal(e, rhs) {
				found = true
				return false
			}
			return true
		})
		return found == want, nil
	case rpcvalue.KindString:
		if rhs.Kind() != rpcvalue.KindString {
			return false, fmt.Errorf("query: %q rhs must be a string for string fields", OpContains)
		}
		found := strings.Contains(field.StringValue(), rhs.StringValue())
		return found == want, nil
	default:
		return false, fmt.Errorf("query: %q unsupported on kind %s", OpContains, field.Kind())
	}
}
