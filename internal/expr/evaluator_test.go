package expr

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/scorekeeper/internal/functions"
	"github.com/solatis/scorekeeper/internal/types"
)

func TestEvaluate_Arithmetic(t *testing.T) {
	e := New(functions.Builtin())

	tests := []struct {
		name     string
		expr     string
		bindings map[string]float64
		want     float64
	}{
		{"precedence", "2 + 3 * 4", nil, 14},
		{"parentheses", "(2 + 3) * 4", nil, 20},
		{"left associative subtraction", "10 - 4 - 3", nil, 3},
		{"left associative division", "100 / 10 / 5", nil, 2},
		{"simple division", "10 / 2", nil, 5},
		{"right associative power", "2 ** 3 ** 2", nil, 512},
		{"unary minus binds looser than power", "-2 ** 2", nil, -4},
		{"parenthesized negative base", "(-2) ** 2", nil, 4},
		{"negative exponent", "2 ** -1", nil, 0.5},
		{"binary then unary minus", "10 - -5", nil, 15},
		{"repeated unary minus", "---7", nil, -7},
		{"unary minus before product", "-2 * 3", nil, -6},
		{"power then product", "-2 ** 2 * 3", nil, -12},
		{"decimal literal", ".5 + 1.25", nil, 1.75},
		{"bindings", "income * rate", map[string]float64{"income": 1000, "rate": 0.3}, 300},
		{"sigil bindings", "$income - $debt", map[string]float64{"income": 1000, "debt": 250}, 750},
		{"negative binding", "10 - x", map[string]float64{"x": -5}, 15},
		{"no partial identifier collision", "rate + a", map[string]float64{"a": 1, "rate": 2}, 3},
		{"function call", "sqrt(16) + 1", nil, 5},
		{"nested function call", "max(1, min(8, 3 * 2), abs(-4))", nil, 6},
		{"function with expression args", "avg(a, b * 2, (c))", map[string]float64{"a": 1, "b": 2, "c": 3}, 8.0 / 3.0},
		{"function result in power", "round(2.675, 2) * 100", nil, 268},
		{"negative function argument", "abs(-3 - 2)", nil, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, tt.bindings)
			if err != nil {
				t.Fatalf("Evaluate(%q) error = %v", tt.expr, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	e := New(functions.Builtin())

	tests := []struct {
		name     string
		expr     string
		bindings map[string]float64
		wantErr  error
	}{
		{"near zero divisor", "a / b", map[string]float64{"a": 10, "b": 1e-15}, types.ErrUnsafeDivision},
		{"zero divisor", "1 / 0", nil, types.ErrUnsafeDivision},
		{"zero divisor from expression", "1 / (2 - 2)", nil, types.ErrUnsafeDivision},
		{"infinite operand", "a / 2", map[string]float64{"a": math.Inf(1)}, types.ErrUnsafeDivision},
		{"quotient overflow", "a / b", map[string]float64{"a": math.MaxFloat64, "b": 1e-9}, types.ErrUnsafeDivision},
		{"unresolved identifier", "x + 1", nil, types.ErrExpression},
		{"unknown function", "foo(1)", nil, types.ErrUnknownFunction},
		{"function domain error", "sqrt(-1)", nil, types.ErrFunction},
		{"unclosed parenthesis", "(1 + 2", nil, types.ErrExpression},
		{"extra closing parenthesis", "1 + 2)", nil, types.ErrExpression},
		{"unclosed call", "max(1, 2", nil, types.ErrExpression},
		{"dangling operator", "1 +", nil, types.ErrExpression},
		{"adjacent numbers", "1 2", nil, types.ErrExpression},
		{"unknown character", "1 % 2", nil, types.ErrExpression},
		{"dangling sigil", "$ + 1", nil, types.ErrExpression},
		{"empty", "   ", nil, types.ErrExpression},
		{"malformed number", "1.2.3", nil, types.ErrExpression},
		{"empty argument", "max(1,)", nil, types.ErrExpression},
		{"comma outside call", "1, 2", nil, types.ErrExpression},
		{"no real power", "(-8) ** 0.5", nil, types.ErrExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Evaluate(tt.expr, tt.bindings)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Evaluate(%q) error = %v, want %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestEvaluate_ErrorCarriesFragment(t *testing.T) {
	_, err := New(nil).Evaluate("income * 2", nil)
	var ee *types.ExpressionError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *types.ExpressionError", err)
	}
	if ee.Fragment != "income" || ee.Expression != "income * 2" {
		t.Errorf("ExpressionError = %+v", ee)
	}
}

func TestParse_RejectsMalformedWithoutBindings(t *testing.T) {
	if _, err := Parse("a + b * (c"); !errors.Is(err, types.ErrExpression) {
		t.Errorf("Parse() error = %v, want ErrExpression", err)
	}
	if _, err := Parse("max(a, -b) / $c"); err != nil {
		t.Errorf("Parse() error = %v, want nil", err)
	}
}

func TestProgram_ReferencesAndFunctions(t *testing.T) {
	p, err := Parse("max($b, a) + sqrt(a) * round(c, 2)")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	refs := p.References()
	if len(refs) != 3 || refs[0] != "a" || refs[1] != "b" || refs[2] != "c" {
		t.Errorf("References() = %v, want [a b c]", refs)
	}
	fns := p.Functions()
	if len(fns) != 3 || fns[0] != "max" || fns[1] != "round" || fns[2] != "sqrt" {
		t.Errorf("Functions() = %v, want [max round sqrt]", fns)
	}
}

func TestRun_ReusesProgram(t *testing.T) {
	p, err := Parse("x * 2")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	e := New(nil)
	for i := 1; i <= 3; i++ {
		got, err := e.Run(p, map[string]float64{"x": float64(i)})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got != float64(i*2) {
			t.Errorf("Run(x=%d) = %v", i, got)
		}
	}
}

// Property-based test: evaluation is deterministic for division-free expressions
func TestEvaluate_PropertyDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	e := New(functions.Builtin())

	properties.Property("same expression and bindings give same result", prop.ForAll(
		func(a, b, c float64) bool {
			bindings := map[string]float64{"a": a, "b": b, "c": c}
			r1, err1 := e.Evaluate("a * b + c - max(a, c) ** 2", bindings)
			r2, err2 := e.Evaluate("a * b + c - max(a, c) ** 2", bindings)
			if (err1 == nil) != (err2 == nil) {
				return false
			}
			return err1 != nil || r1 == r2
		},
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}

// Property-based test: unary minus negates
func TestEvaluate_PropertyUnaryMinus(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	e := New(nil)

	properties.Property("-(x) equals 0 - x and x - -y equals x + y", prop.ForAll(
		func(x, y float64) bool {
			b := map[string]float64{"x": x, "y": y}
			neg, err1 := e.Evaluate("-(x)", b)
			sub, err2 := e.Evaluate("0 - x", b)
			plus, err3 := e.Evaluate("x - -y", b)
			sum, err4 := e.Evaluate("x + y", b)
			if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
				return false
			}
			return neg == sub && plus == sum
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}

// Property-based test: tokenizer never panics on arbitrary input
func TestParse_PropertyNeverCrashes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("parse never panics", prop.ForAll(
		func(src string) bool {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Parse(%q) panicked: %v", src, r)
				}
			}()
			_, _ = Parse(src)
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
