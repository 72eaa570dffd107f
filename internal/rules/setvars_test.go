package rules

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/scorekeeper/internal/expr"
	"github.com/solatis/scorekeeper/internal/functions"
	"github.com/solatis/scorekeeper/internal/types"
)

func newResolver() *resolver {
	return &resolver{eval: expr.New(functions.Builtin())}
}

func mustSetVars(t *testing.T, raw map[string]any) SetVars {
	t.Helper()
	vars, err := ParseSetVars(raw)
	if err != nil {
		t.Fatalf("ParseSetVars() error = %v", err)
	}
	return vars
}

func TestParseSetVars_Classification(t *testing.T) {
	vars := mustSetVars(t, map[string]any{
		"lit_num":  7,
		"lit_str":  "gold",
		"lit_coer": "42",
		"ref":      "$income",
		"ref_pad":  " $income ",
		"calc":     "$income * 0.1",
		"calc_fn":  "max($a, b)",
		"$sigiled": true,
		"price":    "$5 off",
	})

	want := map[string]AssignKind{
		"calc":     AssignExpression,
		"calc_fn":  AssignExpression,
		"lit_coer": AssignLiteral,
		"lit_num":  AssignLiteral,
		"lit_str":  AssignLiteral,
		"price":    AssignLiteral,
		"ref":      AssignReference,
		"ref_pad":  AssignReference,
		"sigiled":  AssignLiteral,
	}
	if len(vars) != len(want) {
		t.Fatalf("len(vars) = %d, want %d", len(vars), len(want))
	}
	for i, a := range vars {
		if i > 0 && vars[i-1].Name >= a.Name {
			t.Errorf("assignments not sorted: %q before %q", vars[i-1].Name, a.Name)
		}
		if a.Kind != want[a.Name] {
			t.Errorf("%s: kind = %v, want %v", a.Name, a.Kind, want[a.Name])
		}
	}

	if vars[2].Value != int64(42) {
		t.Errorf("lit_coer value = %v (%T), want int64 42", vars[2].Value, vars[2].Value)
	}
	if got := vars[1].Reads(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("calc_fn Reads() = %v, want [a b]", got)
	}
}

func TestParseSetVars_Errors(t *testing.T) {
	_, err := ParseSetVars(map[string]any{
		"bad name": 1,
		"broken":   "$a + (",
		"nested":   map[string]any{"x": 1},
		"ok":       "$a",
	})
	var ce *types.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("ParseSetVars() error = %v, want ConfigError", err)
	}
	if len(ce.Problems) != 3 {
		t.Errorf("problems = %v, want 3", ce.Problems)
	}
}

func TestResolve_ForwardReferences(t *testing.T) {
	vars := mustSetVars(t, map[string]any{
		"a": "5",
		"b": "$a",
		"c": "$b + 1",
	})
	ctx := types.NewContext()
	if err := newResolver().resolve(vars, ctx); err != nil {
		t.Fatalf("resolve() error = %v", err)
	}

	if v, _ := ctx.Get("a"); v != int64(5) {
		t.Errorf("a = %v (%T), want 5", v, v)
	}
	if v, _ := ctx.Get("b"); v != int64(5) {
		t.Errorf("b = %v (%T), want 5", v, v)
	}
	if v, _ := ctx.Get("c"); v != 6.0 {
		t.Errorf("c = %v (%T), want 6", v, v)
	}
}

func TestResolve_ChainInReverseNameOrder(t *testing.T) {
	vars := mustSetVars(t, map[string]any{
		"a": "$b * 2",
		"b": "$c + 1",
		"c": "$d",
		"d": 4,
	})
	ctx := types.NewContext()
	if err := newResolver().resolve(vars, ctx); err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if v, _ := ctx.Get("a"); v != 10.0 {
		t.Errorf("a = %v, want 10", v)
	}
}

func TestResolve_Cycle(t *testing.T) {
	vars := mustSetVars(t, map[string]any{
		"a": "$b + 1",
		"b": "$a + 1",
	})
	ctx := types.NewContext()
	err := newResolver().resolve(vars, ctx)

	var ue *types.UnresolvableDependencyError
	if !errors.As(err, &ue) {
		t.Fatalf("resolve() error = %v, want UnresolvableDependencyError", err)
	}
	if len(ue.Pending) != 2 || ue.Pending[0] != "a" || ue.Pending[1] != "b" {
		t.Errorf("Pending = %v, want [a b]", ue.Pending)
	}
	if ctx.Has("a") || ctx.Has("b") {
		t.Error("cycle partially resolved")
	}
}

func TestResolve_MissingDependency(t *testing.T) {
	vars := mustSetVars(t, map[string]any{"x": "$nowhere", "y": 1})
	ctx := types.NewContext()
	err := newResolver().resolve(vars, ctx)
	if !errors.Is(err, types.ErrUnresolvableDependency) {
		t.Fatalf("resolve() error = %v, want ErrUnresolvableDependency", err)
	}
	if v, _ := ctx.Get("y"); v != int64(1) {
		t.Errorf("literal y = %v, want committed before failure", v)
	}
}

func TestResolve_ExpressionErrors(t *testing.T) {
	tests := []struct {
		name    string
		ctx     map[string]any
		raw     string
		wantErr error
	}{
		{"non-numeric binding", map[string]any{"tier": "gold"}, "$tier * 2", types.ErrExpression},
		{"null binding", map[string]any{"x": nil}, "$x + 1", types.ErrMissingInput},
		{"unsafe division", map[string]any{"x": int64(0)}, "10 / $x", types.ErrUnsafeDivision},
		{"bool binding is numeric", map[string]any{"flag": true}, "$flag + 1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := types.NewContextFrom(tt.ctx)
			if err != nil {
				t.Fatal(err)
			}
			vars := mustSetVars(t, map[string]any{"out": tt.raw})
			err = newResolver().resolve(vars, ctx)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("resolve() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("resolve() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// Property-based test: resolution order never depends on map iteration order
func TestResolve_PropertyDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	r := newResolver()

	properties.Property("chained set_vars resolve identically on every run", prop.ForAll(
		func(base int64, offset int64) bool {
			raw := map[string]any{
				"z": base,
				"m": "$z + $k",
				"k": offset,
				"a": "$m * 2",
				"q": "$a",
			}
			var first map[string]any
			for i := 0; i < 5; i++ {
				vars, err := ParseSetVars(raw)
				if err != nil {
					return false
				}
				ctx := types.NewContext()
				if err := r.resolve(vars, ctx); err != nil {
					return false
				}
				got := ctx.Map()
				if first == nil {
					first = got
					continue
				}
				for k, v := range first {
					if got[k] != v {
						return false
					}
				}
			}
			return first["q"] == float64(2*(base+offset))
		},
		gen.Int64Range(-1000, 1000),
		gen.Int64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}
