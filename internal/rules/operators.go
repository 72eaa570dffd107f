// internal/rules/operators.go
package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Condition operators.
 *
 * Twelve operators share one switch. Comparison is numeric when both sides
 * convert with types.ToNumber (numeric strings included) and falls back to
 * string comparison for the ordering operators when both sides are strings.
 * Incomparable values never match.
 *
 * Operands written with the binding sigil are resolved against the context
 * immediately before comparison, element-wise for list operands. A reference
 * to a variable that does not exist is a MissingInputError.
 */

// Operator is a condition operator tag.
type Operator int

const (
	OpUnspecified Operator = iota
	OpLt
	OpLte
	OpGt
	OpGte
	OpEq
	OpNeq
	OpBetween
	OpIn
	OpNotIn
	OpContains
	OpStartsWith
	OpEndsWith
)

var operatorNames = map[string]Operator{
	"<":           OpLt,
	"<=":          OpLte,
	">":           OpGt,
	">=":          OpGte,
	"==":          OpEq,
	"!=":          OpNeq,
	"between":     OpBetween,
	"in":          OpIn,
	"not_in":      OpNotIn,
	"contains":    OpContains,
	"starts_with": OpStartsWith,
	"ends_with":   OpEndsWith,
}

// ParseOperator maps an operator spelling to its tag.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorNames[strings.TrimSpace(s)]
	if !ok {
		return OpUnspecified, fmt.Errorf("%w: %q", types.ErrUnsupportedOperator, s)
	}
	return op, nil
}

func (op Operator) String() string {
	for name, o := range operatorNames {
		if o == op {
			return name
		}
	}
	return "unspecified"
}

// Condition is an operator plus a literal, reference or list operand.
type Condition struct {
	Operator Operator
	Operand  any // scalar, reference string, or []any for between/in/not_in
}

// References returns the context variables the operand reads.
func (c *Condition) References() []string {
	var out []string
	add := func(v any) {
		if name, ok := referenceName(v); ok {
			out = append(out, name)
		}
	}
	if list, ok := c.Operand.([]any); ok {
		for _, v := range list {
			add(v)
		}
		return out
	}
	add(c.Operand)
	return out
}

// Match tests value against the condition, resolving operand references in ctx.
func (c *Condition) Match(value any, ctx *types.Context) (bool, error) {
	operand, err := resolveOperand(c.Operand, ctx)
	if err != nil {
		return false, err
	}
	return Compare(c.Operator, value, operand)
}

// Compare applies op to value and an already resolved operand.
func Compare(op Operator, value, operand any) (bool, error) {
	switch op {
	case OpLt:
		c, ok := compareOrdered(value, operand)
		return ok && c < 0, nil
	case OpLte:
		c, ok := compareOrdered(value, operand)
		return ok && c <= 0, nil
	case OpGt:
		c, ok := compareOrdered(value, operand)
		return ok && c > 0, nil
	case OpGte:
		c, ok := compareOrdered(value, operand)
		return ok && c >= 0, nil
	case OpEq:
		return compareEqual(value, operand), nil
	case OpNeq:
		return !compareEqual(value, operand), nil
	case OpBetween:
		return compareBetween(value, operand)
	case OpIn:
		return compareIn(value, operand)
	case OpNotIn:
		in, err := compareIn(value, operand)
		return !in, err
	case OpContains:
		return compareStrings(value, operand, strings.Contains), nil
	case OpStartsWith:
		return compareStrings(value, operand, strings.HasPrefix), nil
	case OpEndsWith:
		return compareStrings(value, operand, strings.HasSuffix), nil
	default:
		return false, fmt.Errorf("%w: %v", types.ErrUnsupportedOperator, op)
	}
}

// compareEqual performs equality with numeric coercion on both sides.
func compareEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	if _, ok := a.([]any); ok {
		return false
	}
	if _, ok := b.([]any); ok {
		return false
	}
	return a == b
}

// compareOrdered performs three-way comparison. Returns false for incomparable
// values, including NaN.
func compareOrdered(a, b any) (int, bool) {
	if na, nb, ok := asNumbers(a, b); ok {
		switch {
		case math.IsNaN(na) || math.IsNaN(nb):
			return 0, false
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, ok1 := a.(string)
	sb, ok2 := b.(string)
	if !ok1 || !ok2 {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

// asNumbers converts both values for numeric comparison. Booleans never compare numerically.
func asNumbers(a, b any) (float64, float64, bool) {
	if isBool(a) || isBool(b) {
		return 0, 0, false
	}
	na, oka := types.ToNumber(a)
	nb, okb := types.ToNumber(b)
	return na, nb, oka && okb
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

// compareBetween tests lo <= value <= hi.
func compareBetween(value, operand any) (bool, error) {
	bounds, ok := operand.([]any)
	if !ok || len(bounds) != 2 {
		return false, fmt.Errorf("%w: between requires exactly two operands", types.ErrConfig)
	}
	lo, ok1 := compareOrdered(value, bounds[0])
	hi, ok2 := compareOrdered(value, bounds[1])
	return ok1 && ok2 && lo >= 0 && hi <= 0, nil
}

// compareIn tests membership with equality semantics.
func compareIn(value, operand any) (bool, error) {
	set, ok := operand.([]any)
	if !ok {
		return false, fmt.Errorf("%w: in requires a list operand", types.ErrConfig)
	}
	for _, elem := range set {
		if compareEqual(value, elem) {
			return true, nil
		}
	}
	return false, nil
}

// compareStrings applies a string predicate. Non-string values never match.
func compareStrings(value, operand any, pred func(s, substr string) bool) bool {
	vs, ok1 := value.(string)
	ps, ok2 := operand.(string)
	if !ok1 || !ok2 {
		return false
	}
	return pred(vs, ps)
}

// referenceName reports whether v is a "$name" reference and returns the bare name.
func referenceName(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, types.BindingSigil) {
		return "", false
	}
	name := strings.TrimPrefix(s, types.BindingSigil)
	if !isIdentifier(name) {
		return "", false
	}
	return name, true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		letter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !letter && (i == 0 || c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func resolveOperand(operand any, ctx *types.Context) (any, error) {
	if list, ok := operand.([]any); ok {
		out := make([]any, len(list))
		for i, v := range list {
			r, err := resolveOperand(v, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	name, ok := referenceName(operand)
	if !ok {
		return operand, nil
	}
	v, ok := ctx.Get(name)
	if !ok {
		return nil, &types.MissingInputError{Variable: name}
	}
	return v, nil
}
