package rules

import (
	"errors"
	"math"
	"testing"

	"github.com/solatis/scorekeeper/internal/types"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name    string
		op      Operator
		value   any
		operand any
		want    bool
	}{
		{"lt numeric", OpLt, int64(5), int64(10), true},
		{"lt equal", OpLt, 10.0, int64(10), false},
		{"lte equal", OpLte, 10.0, int64(10), true},
		{"gt numeric string", OpGt, "95", int64(90), true},
		{"gte boundary", OpGte, int64(90), 90.0, true},
		{"gt strings", OpGt, "b", "a", true},
		{"lt incomparable", OpLt, "abc", int64(1), false},
		{"gt bool never numeric", OpGt, true, int64(0), false},
		{"eq int float", OpEq, int64(3), 3.0, true},
		{"eq numeric string", OpEq, "3", int64(3), true},
		{"eq strings", OpEq, "gold", "gold", true},
		{"eq bools", OpEq, true, true, true},
		{"eq bool vs one", OpEq, true, int64(1), false},
		{"neq", OpNeq, "gold", "silver", true},
		{"between inclusive low", OpBetween, int64(18), []any{int64(18), int64(65)}, true},
		{"between inclusive high", OpBetween, 65.0, []any{int64(18), int64(65)}, true},
		{"between outside", OpBetween, int64(70), []any{int64(18), int64(65)}, false},
		{"in", OpIn, "CA", []any{"NY", "CA"}, true},
		{"in numeric", OpIn, 2.0, []any{int64(1), int64(2)}, true},
		{"in miss", OpIn, "TX", []any{"NY", "CA"}, false},
		{"not_in", OpNotIn, "TX", []any{"NY", "CA"}, true},
		{"not_in hit", OpNotIn, "CA", []any{"NY", "CA"}, false},
		{"contains", OpContains, "premium plus", "plus", true},
		{"contains non-string", OpContains, int64(12), "1", false},
		{"starts_with", OpStartsWith, "premium", "pre", true},
		{"ends_with", OpEndsWith, "premium", "ium", true},
		{"ends_with miss", OpEndsWith, "premium", "pre", false},
		{"gte nan string", OpGte, "NaN", int64(90), false},
		{"lte nan string", OpLte, "NaN", int64(0), false},
		{"gte inf string", OpGte, "inf", int64(90), false},
		{"gte infinity string", OpGte, "Infinity", int64(90), false},
		{"lt nan float", OpLt, math.NaN(), int64(90), false},
		{"gte nan float", OpGte, math.NaN(), int64(90), false},
		{"between nan", OpBetween, math.NaN(), []any{int64(0), int64(100)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.op, tt.value, tt.operand)
			if err != nil {
				t.Fatalf("Compare() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare(%v, %v, %v) = %v, want %v", tt.op, tt.value, tt.operand, got, tt.want)
			}
		})
	}
}

func TestCompare_Errors(t *testing.T) {
	if _, err := Compare(OpUnspecified, 1, 1); !errors.Is(err, types.ErrUnsupportedOperator) {
		t.Errorf("Compare(unspecified) error = %v, want ErrUnsupportedOperator", err)
	}
	if _, err := Compare(OpBetween, 1, []any{int64(1)}); !errors.Is(err, types.ErrConfig) {
		t.Errorf("Compare(between, one bound) error = %v, want ErrConfig", err)
	}
	if _, err := Compare(OpIn, 1, int64(1)); !errors.Is(err, types.ErrConfig) {
		t.Errorf("Compare(in, scalar) error = %v, want ErrConfig", err)
	}
}

func TestParseOperator(t *testing.T) {
	for name, want := range operatorNames {
		got, err := ParseOperator(name)
		if err != nil || got != want {
			t.Errorf("ParseOperator(%q) = %v, %v", name, got, err)
		}
		if got.String() != name {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), name)
		}
	}
	if _, err := ParseOperator("=~"); !errors.Is(err, types.ErrUnsupportedOperator) {
		t.Errorf("ParseOperator(=~) error = %v, want ErrUnsupportedOperator", err)
	}
}

func TestCondition_ResolvesReferences(t *testing.T) {
	ctx := types.NewContext()
	ctx.Set("threshold", int64(50))
	ctx.Set("low", int64(10))

	tests := []struct {
		name  string
		cond  Condition
		value any
		want  bool
	}{
		{"scalar reference", Condition{OpGte, "$threshold"}, int64(50), true},
		{"scalar reference miss", Condition{OpGt, "$threshold"}, int64(50), false},
		{"element-wise list", Condition{OpBetween, []any{"$low", "$threshold"}}, int64(30), true},
		{"literal dollar string", Condition{OpEq, "$5 off"}, "$5 off", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Match(tt.value, ctx)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Match(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	cond := Condition{OpLt, "$missing"}
	_, err := cond.Match(int64(1), ctx)
	var mi *types.MissingInputError
	if !errors.As(err, &mi) || mi.Variable != "missing" {
		t.Errorf("Match() error = %v, want MissingInputError for missing", err)
	}

	list := Condition{OpIn, []any{"$low", int64(3), "$threshold"}}
	refs := list.References()
	if len(refs) != 2 || refs[0] != "low" || refs[1] != "threshold" {
		t.Errorf("References() = %v", refs)
	}
}
