// internal/rules/apply.go
package rules

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/solatis/scorekeeper/internal/expr"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Formula dispatcher.
 *
 * apply matches the closed formula type exhaustively and mutates the context
 * in place. Errors are returned unwrapped; the engine adds the formula id,
 * kind and context keys.
 *
 * Missing versus null: expression inputs and switch variables must be present
 * and non-null. Scoring formulas treat a null or absent variable as score 0.
 * Accumulative rules skip absent or null variables.
 */

type dispatcher struct {
	eval     *expr.Evaluator
	resolver *resolver
	logger   zerolog.Logger
}

func newDispatcher(eval *expr.Evaluator, logger zerolog.Logger) *dispatcher {
	return &dispatcher{
		eval:     eval,
		resolver: &resolver{eval: eval},
		logger:   logger,
	}
}

func (d *dispatcher) apply(f Formula, ctx *types.Context) error {
	switch f := f.(type) {
	case *ExpressionFormula:
		return d.applyExpression(f, ctx)
	case *SwitchFormula:
		return d.applySwitch(f, ctx)
	case *SimpleScoring:
		return d.applySimple(f, ctx)
	case *RangeScoring:
		return d.applyRanges(f, ctx)
	case *MatrixScoring:
		return d.applyMatrix(f, ctx)
	case *AccumulativeRules:
		return d.applyAccumulative(f, ctx)
	default:
		return fmt.Errorf("%w: unknown formula type %T", types.ErrConfig, f)
	}
}

func (d *dispatcher) applyExpression(f *ExpressionFormula, ctx *types.Context) error {
	bindings, err := numericBindings(f.Program.String(), f.Inputs, ctx)
	if err != nil {
		return err
	}
	v, err := d.eval.Run(f.Program, bindings)
	if err != nil {
		return err
	}
	ctx.Set(f.As, v)
	d.logger.Debug().Str("formula", f.ID).Str("as", f.As).Float64("value", v).Msg("expression evaluated")
	return nil
}

func (d *dispatcher) applySwitch(f *SwitchFormula, ctx *types.Context) error {
	value, ok := ctx.Get(f.Variable)
	if !ok || value == nil {
		return fmt.Errorf("%w: %q", types.ErrMissingSwitchValue, f.Variable)
	}

	for i := range f.Cases {
		c := &f.Cases[i]
		matched, err := c.When.Match(value, ctx)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		ctx.Set(f.ID, c.Result)
		d.logger.Debug().Str("formula", f.ID).Int("case", i).Msg("switch case matched")
		return d.resolver.resolve(c.SetVars, ctx)
	}

	ctx.Set(f.ID, f.Default)
	d.logger.Debug().Str("formula", f.ID).Msg("switch default applied")
	return d.resolver.resolve(f.DefaultVars, ctx)
}

func (d *dispatcher) applySimple(f *SimpleScoring, ctx *types.Context) error {
	value, ok := ctx.Get(f.Variable)
	if !ok || value == nil {
		ctx.Set(ScoreKey(f.ID), 0.0)
		return nil
	}

	matched, err := f.When.Match(value, ctx)
	if err != nil {
		return err
	}
	if !matched {
		ctx.Set(ScoreKey(f.ID), f.Default)
		return nil
	}
	ctx.Set(ScoreKey(f.ID), f.Score)
	return d.resolver.resolve(f.SetVars, ctx)
}

func (d *dispatcher) applyRanges(f *RangeScoring, ctx *types.Context) error {
	value, ok := ctx.Get(f.Variable)
	if !ok || value == nil {
		ctx.Set(ScoreKey(f.ID), 0.0)
		return nil
	}

	r, err := firstRange(f.Ranges, value, ctx)
	if err != nil {
		return err
	}
	if r == nil {
		ctx.Set(ScoreKey(f.ID), f.Default)
		return nil
	}
	ctx.Set(ScoreKey(f.ID), r.Score)
	return d.resolver.resolve(r.SetVars, ctx)
}

func (d *dispatcher) applyMatrix(f *MatrixScoring, ctx *types.Context) error {
	values := make([]any, len(f.Vars))
	for i, name := range f.Vars {
		v, ok := ctx.Get(name)
		if !ok || v == nil {
			ctx.Set(ScoreKey(f.ID), 0.0)
			d.logger.Debug().Str("formula", f.ID).Str("variable", name).Msg("matrix variable missing")
			return nil
		}
		values[i] = v
	}

	leaf, err := walkMatrix(f.Tree, values, 0, ctx, d.resolver)
	if err != nil {
		return err
	}
	if leaf == nil {
		ctx.Set(ScoreKey(f.ID), f.Default)
		return nil
	}

	ctx.Set(ScoreKey(f.ID), leaf.Score)
	for _, field := range types.SortedKeys(leaf.Fields) {
		ctx.Set(FieldKey(f.ID, field), leaf.Fields[field])
	}
	return nil
}

func (d *dispatcher) applyAccumulative(f *AccumulativeRules, ctx *types.Context) error {
	total := 0.0
	if prev, ok := ctx.Get(f.ID); ok && prev != nil {
		n, ok := types.ToNumber(prev)
		if !ok {
			return fmt.Errorf("existing value of %q is not numeric: %v", f.ID, prev)
		}
		total = n
	}

	for i := range f.Rules {
		rule := &f.Rules[i]
		value, ok := ctx.Get(rule.Variable)
		if !ok || value == nil {
			continue
		}

		score, vars, err := scoreRule(rule, value, ctx)
		if err != nil {
			return err
		}
		total += score

		if rule.OnlyIfScored && score == 0 {
			continue
		}
		if err := d.resolver.resolve(vars, ctx); err != nil {
			return err
		}
	}

	ctx.Set(f.ID, total)
	return nil
}

// scoreRule returns a rule's contribution and the set_vars it triggers.
// set_vars fire only when the condition or a range matched; a matched range
// adds its own to the rule-level ones.
func scoreRule(rule *AccumulativeRule, value any, ctx *types.Context) (float64, SetVars, error) {
	if rule.When != nil {
		matched, err := rule.When.Match(value, ctx)
		if err != nil || !matched {
			return 0, nil, err
		}
		return rule.Score, rule.SetVars, nil
	}

	r, err := firstRange(rule.Ranges, value, ctx)
	if err != nil {
		return 0, nil, err
	}
	if r == nil {
		return rule.Default, nil, nil
	}
	return r.Score, mergeSetVars(rule.SetVars, r.SetVars), nil
}

func firstRange(ranges []ScoreRange, value any, ctx *types.Context) (*ScoreRange, error) {
	for i := range ranges {
		matched, err := ranges[i].When.Match(value, ctx)
		if err != nil {
			return nil, err
		}
		if matched {
			return &ranges[i], nil
		}
	}
	return nil, nil
}

// mergeSetVars combines two assignment sets; entries in b replace same-named entries in a.
func mergeSetVars(a, b SetVars) SetVars {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	byName := make(map[string]Assignment, len(a)+len(b))
	for _, x := range a {
		byName[x.Name] = x
	}
	for _, x := range b {
		byName[x.Name] = x
	}
	out := make(SetVars, 0, len(byName))
	for _, name := range types.SortedKeys(byName) {
		out = append(out, byName[name])
	}
	return out
}
