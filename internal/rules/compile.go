// internal/rules/compile.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/scorekeeper/internal/expr"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Configuration compilation.
 *
 * Compiles a generic tree (decoded JSON, YAML or protobuf Struct) into the
 * closed Formula sum type. Every structural problem is collected and reported
 * together as one ConfigError instead of stopping at the first.
 *
 * Shape detection: exactly one of "formula", "switch", "scoring" or "rules"
 * selects the variant. An expression formula may also carry a "scoring" block,
 * which compiles to a second formula with the same id that scores the
 * expression's output. Inside "scoring", "vars"+"tree" selects a matrix,
 * "ranges" selects ranges and "when"+"score" selects a simple score.
 *
 * Compile-time checks: expressions and set_vars expressions must parse, every
 * expression identifier must be a declared input, operators must be known and
 * their operand shapes valid, matrix trees may not be deeper than their
 * variable list, and ids may repeat only across accumulative_rules formulas.
 */

// Compile parses a configuration tree: a list of formulas or {"formulas": [...]}.
func Compile(tree any) ([]Formula, error) {
	entries, err := formulaList(tree)
	if err != nil {
		return nil, &types.ConfigError{Problems: []string{err.Error()}}
	}

	c := &compiler{}
	var out []Formula
	kinds := make(map[string][]Kind)
	var order []string

	for i, raw := range entries {
		path := fmt.Sprintf("formulas[%d]", i)
		m, ok := raw.(map[string]any)
		if !ok {
			c.addf(path, "expected an object, got %T", raw)
			continue
		}
		compiled := c.formula(path, m)
		if len(compiled) == 0 {
			continue
		}
		id := compiled[0].FormulaID()
		if _, seen := kinds[id]; !seen {
			order = append(order, id)
		}
		kinds[id] = append(kinds[id], compiled[0].Kind())
		out = append(out, compiled...)
	}

	for _, id := range order {
		if len(kinds[id]) < 2 {
			continue
		}
		for _, k := range kinds[id] {
			if k != KindAccumulative {
				c.addf("formulas", "duplicate formula id %q (only accumulative_rules may repeat an id)", id)
				break
			}
		}
	}

	if len(c.problems) > 0 {
		return nil, &types.ConfigError{Problems: c.problems}
	}
	return out, nil
}

func formulaList(tree any) ([]any, error) {
	switch t := tree.(type) {
	case []any:
		return t, nil
	case map[string]any:
		list, ok := t["formulas"].([]any)
		if !ok {
			return nil, fmt.Errorf("configuration object must contain a \"formulas\" list")
		}
		return list, nil
	case nil:
		return nil, fmt.Errorf("empty configuration")
	default:
		return nil, fmt.Errorf("configuration must be a list of formulas, got %T", tree)
	}
}

type compiler struct {
	problems []string
}

func (c *compiler) addf(path, format string, args ...any) {
	c.problems = append(c.problems, path+": "+fmt.Sprintf(format, args...))
}

var (
	expressionKeys = []string{"id", "description", "formula", "inputs", "as", "scoring"}
	switchKeys     = []string{"id", "description", "switch", "cases", "default", "default_vars"}
	scoringKeys    = []string{"id", "description", "scoring", "as"}
	rulesKeys      = []string{"id", "description", "rules"}
)

func (c *compiler) formula(path string, m map[string]any) []Formula {
	id, ok := c.identifier(path+".id", m["id"])
	if !ok {
		return nil
	}
	path = fmt.Sprintf("%s(%s)", path, id)

	_, hasFormula := m["formula"]
	_, hasSwitch := m["switch"]
	_, hasScoring := m["scoring"]
	_, hasRules := m["rules"]

	shapes := 0
	for _, has := range []bool{hasFormula, hasSwitch, hasScoring && !hasFormula, hasRules} {
		if has {
			shapes++
		}
	}
	switch {
	case shapes == 0:
		c.addf(path, "none of the recognized shapes (formula, switch, scoring, rules)")
		return nil
	case shapes > 1:
		c.addf(path, "ambiguous shape: use exactly one of formula, switch, scoring, rules")
		return nil
	}

	switch {
	case hasFormula:
		c.checkKeys(path, m, expressionKeys)
		return c.expression(path, id, m)
	case hasSwitch:
		c.checkKeys(path, m, switchKeys)
		if f := c.switchFormula(path, id, m); f != nil {
			return []Formula{f}
		}
	case hasScoring:
		c.checkKeys(path, m, scoringKeys)
		variable := id
		if as, ok := m["as"]; ok {
			if v, ok := c.identifier(path+".as", as); ok {
				variable = v
			}
		}
		if f := c.scoring(path+".scoring", id, variable, m["scoring"]); f != nil {
			return []Formula{f}
		}
	case hasRules:
		c.checkKeys(path, m, rulesKeys)
		if f := c.accumulative(path, id, m); f != nil {
			return []Formula{f}
		}
	}
	return nil
}

func (c *compiler) expression(path, id string, m map[string]any) []Formula {
	src, ok := m["formula"].(string)
	if !ok {
		c.addf(path+".formula", "expected an expression string")
		return nil
	}
	p, err := expr.Parse(src)
	if err != nil {
		c.addf(path+".formula", "%v", err)
		return nil
	}

	inputs := p.References()
	if raw, ok := m["inputs"]; ok {
		inputs = c.identifierList(path+".inputs", raw)
		declared := make(map[string]bool, len(inputs))
		for _, in := range inputs {
			declared[in] = true
		}
		for _, ref := range p.References() {
			if !declared[ref] {
				c.addf(path+".formula", "references %q which is not a declared input", ref)
			}
		}
	}

	as := id
	if raw, ok := m["as"]; ok {
		if v, ok := c.identifier(path+".as", raw); ok {
			as = v
		}
	}

	out := []Formula{&ExpressionFormula{ID: id, Inputs: inputs, Program: p, As: as}}
	if raw, ok := m["scoring"]; ok {
		if f := c.scoring(path+".scoring", id, as, raw); f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (c *compiler) switchFormula(path, id string, m map[string]any) Formula {
	variable, ok := c.identifier(path+".switch", m["switch"])
	if !ok {
		return nil
	}
	f := &SwitchFormula{ID: id, Variable: variable}

	cases, ok := m["cases"].([]any)
	if !ok {
		c.addf(path+".cases", "expected a list of cases")
		return nil
	}
	for i, raw := range cases {
		cpath := fmt.Sprintf("%s.cases[%d]", path, i)
		cm, ok := raw.(map[string]any)
		if !ok {
			c.addf(cpath, "expected an object, got %T", raw)
			continue
		}
		c.checkKeys(cpath, cm, []string{"when", "result", "set_vars"})
		when, ok := c.condition(cpath+".when", cm["when"])
		if !ok {
			continue
		}
		result, ok := c.scalar(cpath+".result", cm["result"])
		if !ok {
			continue
		}
		f.Cases = append(f.Cases, SwitchCase{
			When:    when,
			Result:  result,
			SetVars: c.setVars(cpath+".set_vars", cm["set_vars"]),
		})
	}

	if raw, ok := m["default"]; ok {
		if v, ok := c.scalar(path+".default", raw); ok {
			f.Default = v
		}
	}
	f.DefaultVars = c.setVars(path+".default_vars", m["default_vars"])
	return f
}

func (c *compiler) scoring(path, id, variable string, raw any) Formula {
	m, ok := raw.(map[string]any)
	if !ok {
		c.addf(path, "expected an object, got %T", raw)
		return nil
	}

	_, hasTree := m["tree"]
	_, hasRanges := m["ranges"]
	_, hasWhen := m["when"]

	switch {
	case hasTree:
		c.checkKeys(path, m, []string{"vars", "tree", "default"})
		return c.matrix(path, id, m)

	case hasRanges:
		c.checkKeys(path, m, []string{"ranges", "default"})
		f := &RangeScoring{ID: id, Variable: variable}
		f.Ranges = c.ranges(path+".ranges", m["ranges"])
		f.Default = c.optionalNumber(path+".default", m, "default")
		return f

	case hasWhen:
		c.checkKeys(path, m, []string{"when", "score", "default", "set_vars"})
		when, ok := c.condition(path+".when", m["when"])
		if !ok {
			return nil
		}
		score, ok := c.number(path+".score", m["score"])
		if !ok {
			return nil
		}
		return &SimpleScoring{
			ID:       id,
			Variable: variable,
			When:     when,
			Score:    score,
			Default:  c.optionalNumber(path+".default", m, "default"),
			SetVars:  c.setVars(path+".set_vars", m["set_vars"]),
		}

	default:
		c.addf(path, "expected vars+tree, ranges or when+score")
		return nil
	}
}

func (c *compiler) matrix(path, id string, m map[string]any) Formula {
	vars := c.identifierList(path+".vars", m["vars"])
	if len(vars) == 0 {
		c.addf(path+".vars", "matrix needs at least one variable")
		return nil
	}
	if len(vars) > types.MaxMatrixDepth {
		c.addf(path+".vars", "%d variables exceeds the matrix depth limit %d", len(vars), types.MaxMatrixDepth)
		return nil
	}

	tree, ok := m["tree"].([]any)
	if !ok {
		c.addf(path+".tree", "expected a list of nodes")
		return nil
	}
	return &MatrixScoring{
		ID:      id,
		Vars:    vars,
		Tree:    c.matrixNodes(path+".tree", tree, 0, len(vars)),
		Default: c.optionalNumber(path+".default", m, "default"),
	}
}

func (c *compiler) matrixNodes(path string, raw []any, depth, levels int) []MatrixNode {
	if depth >= levels {
		c.addf(path, "tree is deeper than its %d variables", levels)
		return nil
	}

	nodes := make([]MatrixNode, 0, len(raw))
	for i, r := range raw {
		npath := fmt.Sprintf("%s[%d]", path, i)
		m, ok := r.(map[string]any)
		if !ok {
			c.addf(npath, "expected an object, got %T", r)
			continue
		}
		when, ok := c.condition(npath+".when", m["when"])
		if !ok {
			continue
		}
		node := MatrixNode{When: when, SetVars: c.setVars(npath+".set_vars", m["set_vars"])}

		if children, ok := m["children"]; ok {
			list, ok := children.([]any)
			if !ok || len(list) == 0 {
				c.addf(npath+".children", "expected a non-empty list of nodes")
				continue
			}
			c.checkKeys(npath, m, []string{"when", "children", "set_vars"})
			node.Children = c.matrixNodes(npath+".children", list, depth+1, levels)
			nodes = append(nodes, node)
			continue
		}

		score, ok := c.number(npath+".score", m["score"])
		if !ok {
			continue
		}
		node.Score = score
		for _, key := range types.SortedKeys(m) {
			switch key {
			case "when", "score", "set_vars":
				continue
			}
			if !isIdentifier(key) {
				c.addf(npath, "leaf field %q is not a valid name", key)
				continue
			}
			v, ok := c.scalar(npath+"."+key, m[key])
			if !ok {
				continue
			}
			if node.Fields == nil {
				node.Fields = make(map[string]any)
			}
			node.Fields[key] = v
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func (c *compiler) accumulative(path, id string, m map[string]any) Formula {
	list, ok := m["rules"].([]any)
	if !ok || len(list) == 0 {
		c.addf(path+".rules", "expected a non-empty list of rules")
		return nil
	}

	f := &AccumulativeRules{ID: id}
	for i, raw := range list {
		rpath := fmt.Sprintf("%s.rules[%d]", path, i)
		rm, ok := raw.(map[string]any)
		if !ok {
			c.addf(rpath, "expected an object, got %T", raw)
			continue
		}
		c.checkKeys(rpath, rm, []string{"var", "when", "score", "ranges", "default", "set_vars", "only_if_scored"})

		variable, ok := c.identifier(rpath+".var", rm["var"])
		if !ok {
			continue
		}
		rule := AccumulativeRule{
			Variable: variable,
			SetVars:  c.setVars(rpath+".set_vars", rm["set_vars"]),
		}
		if raw, ok := rm["only_if_scored"]; ok {
			b, ok := raw.(bool)
			if !ok {
				c.addf(rpath+".only_if_scored", "expected a boolean, got %T", raw)
			}
			rule.OnlyIfScored = b
		}

		_, hasWhen := rm["when"]
		_, hasRanges := rm["ranges"]
		switch {
		case hasWhen && hasRanges:
			c.addf(rpath, "use either when+score or ranges, not both")
			continue
		case hasWhen:
			when, ok := c.condition(rpath+".when", rm["when"])
			if !ok {
				continue
			}
			score, ok := c.number(rpath+".score", rm["score"])
			if !ok {
				continue
			}
			rule.When = &when
			rule.Score = score
		case hasRanges:
			rule.Ranges = c.ranges(rpath+".ranges", rm["ranges"])
			rule.Default = c.optionalNumber(rpath+".default", rm, "default")
		default:
			c.addf(rpath, "expected when+score or ranges")
			continue
		}
		f.Rules = append(f.Rules, rule)
	}
	return f
}

func (c *compiler) ranges(path string, raw any) []ScoreRange {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		c.addf(path, "expected a non-empty list of ranges")
		return nil
	}
	out := make([]ScoreRange, 0, len(list))
	for i, r := range list {
		rpath := fmt.Sprintf("%s[%d]", path, i)
		m, ok := r.(map[string]any)
		if !ok {
			c.addf(rpath, "expected an object, got %T", r)
			continue
		}
		c.checkKeys(rpath, m, []string{"when", "score", "set_vars"})
		when, ok := c.condition(rpath+".when", m["when"])
		if !ok {
			continue
		}
		score, ok := c.number(rpath+".score", m["score"])
		if !ok {
			continue
		}
		out = append(out, ScoreRange{When: when, Score: score, SetVars: c.setVars(rpath+".set_vars", m["set_vars"])})
	}
	return out
}

// condition parses {"op": ">=", "value": 90}.
func (c *compiler) condition(path string, raw any) (Condition, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		c.addf(path, "expected a condition object {op, value}, got %T", raw)
		return Condition{}, false
	}
	c.checkKeys(path, m, []string{"op", "value"})

	name, ok := m["op"].(string)
	if !ok {
		c.addf(path+".op", "expected an operator string")
		return Condition{}, false
	}
	op, err := ParseOperator(name)
	if err != nil {
		c.addf(path+".op", "%v", err)
		return Condition{}, false
	}

	rawValue, present := m["value"]
	if !present {
		c.addf(path+".value", "missing operand")
		return Condition{}, false
	}

	switch op {
	case OpBetween, OpIn, OpNotIn:
		list, ok := rawValue.([]any)
		if !ok {
			c.addf(path+".value", "%s requires a list operand", op)
			return Condition{}, false
		}
		if op == OpBetween && len(list) != 2 {
			c.addf(path+".value", "between requires exactly two operands, got %d", len(list))
			return Condition{}, false
		}
		if len(list) > types.MaxInOperatorValues {
			c.addf(path+".value", "%d values exceeds the limit %d", len(list), types.MaxInOperatorValues)
			return Condition{}, false
		}
		values := make([]any, 0, len(list))
		for i, v := range list {
			s, ok := c.scalar(fmt.Sprintf("%s.value[%d]", path, i), v)
			if !ok {
				return Condition{}, false
			}
			values = append(values, s)
		}
		return Condition{Operator: op, Operand: values}, true

	case OpContains, OpStartsWith, OpEndsWith:
		s, ok := rawValue.(string)
		if !ok {
			c.addf(path+".value", "%s requires a string operand", op)
			return Condition{}, false
		}
		return Condition{Operator: op, Operand: s}, true

	default:
		v, ok := c.scalar(path+".value", rawValue)
		if !ok {
			return Condition{}, false
		}
		return Condition{Operator: op, Operand: v}, true
	}
}

func (c *compiler) setVars(path string, raw any) SetVars {
	if raw == nil {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		c.addf(path, "expected an object, got %T", raw)
		return nil
	}
	out, problems := buildSetVars(m)
	for _, p := range problems {
		c.addf(path, "%s", p)
	}
	return out
}

func (c *compiler) identifier(path string, raw any) (string, bool) {
	s, ok := raw.(string)
	if !ok {
		c.addf(path, "expected a name")
		return "", false
	}
	name := types.NormalizeName(s)
	if !isIdentifier(name) {
		c.addf(path, "%q is not a valid name", s)
		return "", false
	}
	return name, true
}

func (c *compiler) identifierList(path string, raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		c.addf(path, "expected a list of names")
		return nil
	}
	out := make([]string, 0, len(list))
	for i, v := range list {
		if name, ok := c.identifier(fmt.Sprintf("%s[%d]", path, i), v); ok {
			out = append(out, name)
		}
	}
	return out
}

func (c *compiler) scalar(path string, raw any) (any, bool) {
	v, err := types.NormalizeScalar(raw)
	if err != nil {
		c.addf(path, "%v", err)
		return nil, false
	}
	return v, true
}

func (c *compiler) number(path string, raw any) (float64, bool) {
	if raw == nil {
		c.addf(path, "missing number")
		return 0, false
	}
	if _, isBool := raw.(bool); !isBool {
		if v, err := types.NormalizeScalar(raw); err == nil {
			if n, ok := types.ToNumber(v); ok {
				return n, true
			}
		}
	}
	c.addf(path, "expected a number, got %v", raw)
	return 0, false
}

func (c *compiler) optionalNumber(path string, m map[string]any, key string) float64 {
	raw, ok := m[key]
	if !ok {
		return 0
	}
	n, _ := c.number(path, raw)
	return n
}

func (c *compiler) checkKeys(path string, m map[string]any, allowed []string) {
	for _, key := range types.SortedKeys(m) {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			c.addf(path, "unknown field %q (expected one of %s)", key, strings.Join(allowed, ", "))
		}
	}
}
