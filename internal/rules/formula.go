// internal/rules/formula.go
package rules

import (
	"github.com/solatis/scorekeeper/internal/expr"
)

/*
 * Compiled formula model.
 *
 * Formula is a closed sum type: the unexported marker method keeps every
 * variant inside this package, and the dispatcher matches them with an
 * exhaustive type switch. A configuration entry that fits none of the shapes
 * is rejected by Compile, never at evaluation time.
 *
 * Formulas and conditions are immutable after Compile and may be shared by
 * any number of concurrent evaluations.
 */

// Kind names a formula variant.
type Kind string

const (
	KindExpression    Kind = "expression"
	KindSwitch        Kind = "switch"
	KindScoringSimple Kind = "scoring_simple"
	KindScoringRanges Kind = "scoring_ranges"
	KindScoringMatrix Kind = "scoring_matrix"
	KindAccumulative  Kind = "accumulative_rules"
)

// Formula is one compiled pipeline step.
type Formula interface {
	FormulaID() string
	Kind() Kind
	formula()
}

// ExpressionFormula evaluates an arithmetic expression over declared inputs and
// stores the result under As.
type ExpressionFormula struct {
	ID      string
	Inputs  []string
	Program *expr.Program
	As      string
}

// SwitchFormula stores the result of the first matching case under ID.
type SwitchFormula struct {
	ID          string
	Variable    string
	Cases       []SwitchCase
	Default     any
	DefaultVars SetVars
}

// SwitchCase is one ordered switch branch.
type SwitchCase struct {
	When    Condition
	Result  any
	SetVars SetVars
}

// SimpleScoring awards Score when Variable matches a single condition.
// The score is stored under ID + "_score".
type SimpleScoring struct {
	ID       string
	Variable string
	When     Condition
	Score    float64
	Default  float64
	SetVars  SetVars
}

// RangeScoring awards the score of the first matching range.
// The score is stored under ID + "_score".
type RangeScoring struct {
	ID       string
	Variable string
	Ranges   []ScoreRange
	Default  float64
}

// ScoreRange is one ordered scoring branch.
type ScoreRange struct {
	When    Condition
	Score   float64
	SetVars SetVars
}

// MatrixScoring walks Tree level by level, testing level d against Vars[d].
type MatrixScoring struct {
	ID      string
	Vars    []string
	Tree    []MatrixNode
	Default float64
}

// MatrixNode is a matrix branch. Nodes without Children are leaves whose
// Score and Fields are stored when reached.
type MatrixNode struct {
	When     Condition
	Children []MatrixNode
	Score    float64
	Fields   map[string]any
	SetVars  SetVars
}

// Leaf reports whether the node terminates the walk.
func (n *MatrixNode) Leaf() bool {
	return len(n.Children) == 0
}

// AccumulativeRules sums per-variable rule scores into ID, starting from any
// score already stored there.
type AccumulativeRules struct {
	ID    string
	Rules []AccumulativeRule
}

// AccumulativeRule scores one variable with either When/Score or Ranges.
type AccumulativeRule struct {
	Variable     string
	When         *Condition
	Score        float64
	Ranges       []ScoreRange
	Default      float64
	SetVars      SetVars
	OnlyIfScored bool
}

func (f *ExpressionFormula) FormulaID() string { return f.ID }
func (f *SwitchFormula) FormulaID() string     { return f.ID }
func (f *SimpleScoring) FormulaID() string     { return f.ID }
func (f *RangeScoring) FormulaID() string      { return f.ID }
func (f *MatrixScoring) FormulaID() string     { return f.ID }
func (f *AccumulativeRules) FormulaID() string { return f.ID }

func (f *ExpressionFormula) Kind() Kind { return KindExpression }
func (f *SwitchFormula) Kind() Kind     { return KindSwitch }
func (f *SimpleScoring) Kind() Kind     { return KindScoringSimple }
func (f *RangeScoring) Kind() Kind      { return KindScoringRanges }
func (f *MatrixScoring) Kind() Kind     { return KindScoringMatrix }
func (f *AccumulativeRules) Kind() Kind { return KindAccumulative }

func (*ExpressionFormula) formula() {}
func (*SwitchFormula) formula()     {}
func (*SimpleScoring) formula()     {}
func (*RangeScoring) formula()      {}
func (*MatrixScoring) formula()     {}
func (*AccumulativeRules) formula() {}

// ScoreKey is the context key scoring formulas write their score to.
func ScoreKey(id string) string {
	return id + "_score"
}

// FieldKey is the context key a matrix leaf field is written to.
func FieldKey(id, field string) string {
	return id + "_" + field
}
