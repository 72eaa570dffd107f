// internal/rules/setvars.go
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/scorekeeper/internal/expr"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Side-effect assignments (set_vars) and the two-pass resolver.
 *
 * Classification is a pure function of the raw value's shape:
 *   - non-string values are literals
 *   - "$name" alone is a reference
 *   - any other string mentioning "$name" is an expression
 *   - every other string is a literal, coerced by CoerceLiteral
 *
 * Resolution commits literals first, then runs a bounded worklist over
 * references and expressions so siblings may refer to each other in any order.
 * A pass that resolves nothing means the remaining items wait on variables that
 * will never appear (missing or circular). Assignments are kept sorted by name,
 * so the outcome never depends on map iteration order.
 */

// AssignKind classifies a set_vars value.
type AssignKind int

const (
	AssignLiteral AssignKind = iota
	AssignReference
	AssignExpression
)

func (k AssignKind) String() string {
	switch k {
	case AssignLiteral:
		return "literal"
	case AssignReference:
		return "reference"
	case AssignExpression:
		return "expression"
	default:
		return "unknown"
	}
}

// Assignment is one classified set_vars entry.
type Assignment struct {
	Name    string
	Kind    AssignKind
	Value   any           // coerced literal
	Ref     string        // reference target
	Program *expr.Program // expression
}

// Reads returns the context variables the assignment depends on.
func (a *Assignment) Reads() []string {
	switch a.Kind {
	case AssignReference:
		return []string{a.Ref}
	case AssignExpression:
		return a.Program.References()
	default:
		return nil
	}
}

// SetVars is a set of assignments sorted by target name.
type SetVars []Assignment

// Names returns the assignment targets.
func (s SetVars) Names() []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i].Name
	}
	return out
}

// ParseSetVars classifies raw assignments. Every invalid entry is reported.
func ParseSetVars(raw map[string]any) (SetVars, error) {
	out, problems := buildSetVars(raw)
	if len(problems) > 0 {
		return nil, &types.ConfigError{Problems: problems}
	}
	return out, nil
}

func buildSetVars(raw map[string]any) (SetVars, []string) {
	var problems []string
	out := make(SetVars, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, name := range types.SortedKeys(raw) {
		a, err := classify(name, raw[name])
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if seen[a.Name] {
			problems = append(problems, fmt.Sprintf("set_vars %q is assigned twice", a.Name))
			continue
		}
		seen[a.Name] = true
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, problems
}

func classify(name string, raw any) (Assignment, error) {
	target := types.NormalizeName(name)
	if !isIdentifier(target) {
		return Assignment{}, fmt.Errorf("set_vars target %q is not a valid variable name", name)
	}

	s, isString := raw.(string)
	if !isString {
		v, err := CoerceLiteral(raw)
		if err != nil {
			return Assignment{}, fmt.Errorf("set_vars %q: %v", target, err)
		}
		return Assignment{Name: target, Kind: AssignLiteral, Value: v}, nil
	}

	if ref, ok := referenceName(strings.TrimSpace(s)); ok {
		return Assignment{Name: target, Kind: AssignReference, Ref: ref}, nil
	}
	if mentionsReference(s) {
		p, err := expr.Parse(s)
		if err != nil {
			return Assignment{}, fmt.Errorf("set_vars %q: %v", target, err)
		}
		return Assignment{Name: target, Kind: AssignExpression, Program: p}, nil
	}

	v, _ := CoerceLiteral(s)
	return Assignment{Name: target, Kind: AssignLiteral, Value: v}, nil
}

// mentionsReference reports whether s contains a "$" directly followed by an identifier.
func mentionsReference(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] != '$' {
			continue
		}
		c := s[i+1]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}

// resolver commits set_vars into a context.
type resolver struct {
	eval *expr.Evaluator
}

// resolve applies vars to ctx. Literals are committed immediately; references
// and expressions are retried for at most 2 * pending passes.
func (r *resolver) resolve(vars SetVars, ctx *types.Context) error {
	var pending []Assignment
	for _, a := range vars {
		if a.Kind == AssignLiteral {
			ctx.Set(a.Name, a.Value)
			continue
		}
		pending = append(pending, a)
	}

	// Every pass resolves at least one item or fails with
	// ErrUnresolvableDependency, so the budget is never reached in practice.
	budget := 2 * len(pending)
	for pass := 0; len(pending) > 0; pass++ {
		if pass >= budget {
			return fmt.Errorf("%w: %d passes, still pending %s",
				types.ErrIterationBudgetExceeded, budget, strings.Join(SetVars(pending).Names(), ", "))
		}

		var next []Assignment
		for _, a := range pending {
			done, err := r.try(&a, ctx)
			if err != nil {
				return err
			}
			if !done {
				next = append(next, a)
			}
		}
		if len(next) == len(pending) {
			return &types.UnresolvableDependencyError{Pending: SetVars(next).Names()}
		}
		pending = next
	}
	return nil
}

// try resolves a once every variable it reads exists in ctx.
func (r *resolver) try(a *Assignment, ctx *types.Context) (bool, error) {
	for _, name := range a.Reads() {
		if !ctx.Has(name) {
			return false, nil
		}
	}

	switch a.Kind {
	case AssignReference:
		v, _ := ctx.Get(a.Ref)
		ctx.Set(a.Name, v)
		return true, nil

	case AssignExpression:
		bindings, err := numericBindings(a.Program.String(), a.Program.References(), ctx)
		if err != nil {
			return false, err
		}
		v, err := r.eval.Run(a.Program, bindings)
		if err != nil {
			return false, err
		}
		ctx.Set(a.Name, v)
		return true, nil

	default:
		return false, fmt.Errorf("set_vars %q: unexpected %s assignment", a.Name, a.Kind)
	}
}

// numericBindings reads names from ctx as numbers for the expression evaluator.
func numericBindings(src string, names []string, ctx *types.Context) (map[string]float64, error) {
	bindings := make(map[string]float64, len(names))
	for _, name := range names {
		v, ok := ctx.Get(name)
		if !ok || v == nil {
			return nil, &types.MissingInputError{Variable: name}
		}
		n, ok := types.ToNumber(v)
		if !ok {
			return nil, &types.ExpressionError{
				Expression: src,
				Fragment:   name,
				Message:    fmt.Sprintf("non-numeric binding %v", v),
				Kind:       types.ErrExpression,
			}
		}
		bindings[name] = n
	}
	return bindings, nil
}
