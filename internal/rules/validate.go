// internal/rules/validate.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/scorekeeper/internal/expr"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Static dependency validation.
 *
 * Validate never mutates anything. It derives, per formula id, the variables
 * the formula reads and writes, then reports:
 *   - Error: a variable written by more than one formula id
 *   - Warning: a variable written but never read by any formula
 *   - Error: a formula-level cycle (formula reads a variable written by a
 *     formula that transitively reads one of its own outputs)
 *   - Error: a set_vars entry referring to itself, or a cycle among set_vars
 *     targets
 *   - Error: a dependency chain longer than types.MaxDependencyDepth
 *
 * Formulas sharing an id (an expression with a scoring block, repeated
 * accumulative_rules) form one node, so they never count as rival writers and
 * edges between them are ignored.
 */

// Severity grades a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Diagnostic is one validation finding.
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	FormulaID string   `json:"formula_id,omitempty"`
	Variable  string   `json:"variable,omitempty"`
	Message   string   `json:"message"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Severity.String())
	if d.FormulaID != "" {
		fmt.Fprintf(&b, " [%s]", d.FormulaID)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate analyzes formulas without function checks.
func Validate(formulas []Formula) []Diagnostic {
	return ValidateWith(formulas, nil)
}

// ValidateWith analyzes formulas and, when functions is non-nil, reports calls
// to functions it does not register.
func ValidateWith(formulas []Formula, functions expr.Dispatcher) []Diagnostic {
	v := &validator{
		reads:   make(map[string]map[string]bool),
		writers: make(map[string][]string),
		read:    make(map[string]bool),
	}
	for _, f := range formulas {
		v.add(f)
	}

	v.checkWriters()
	v.checkFormulaCycles()
	v.checkSetVars()
	if functions != nil {
		v.checkFunctions(functions)
	}
	return v.diags
}

type validator struct {
	ids      []string                   // formula ids in first-seen order
	reads    map[string]map[string]bool // formula id -> variables read
	writers  map[string][]string        // variable -> distinct writer ids
	read     map[string]bool            // variables read by any formula
	assigns  []assignSite
	programs []programSite
	diags    []Diagnostic
}

type assignSite struct {
	formula string
	a       *Assignment
}

type programSite struct {
	formula string
	p       *expr.Program
}

func (v *validator) errorf(formula, variable, format string, args ...any) {
	v.diags = append(v.diags, Diagnostic{SeverityError, formula, variable, fmt.Sprintf(format, args...)})
}

func (v *validator) warnf(formula, variable, format string, args ...any) {
	v.diags = append(v.diags, Diagnostic{SeverityWarning, formula, variable, fmt.Sprintf(format, args...)})
}

func (v *validator) add(f Formula) {
	id := f.FormulaID()
	if _, ok := v.reads[id]; !ok {
		v.ids = append(v.ids, id)
		v.reads[id] = make(map[string]bool)
	}

	readVar := func(name string) {
		v.reads[id][name] = true
		v.read[name] = true
	}
	writeVar := func(name string) {
		for _, w := range v.writers[name] {
			if w == id {
				return
			}
		}
		v.writers[name] = append(v.writers[name], id)
	}
	cond := func(c *Condition) {
		for _, r := range c.References() {
			readVar(r)
		}
	}
	sets := func(vars SetVars) {
		for i := range vars {
			a := &vars[i]
			writeVar(a.Name)
			for _, r := range a.Reads() {
				readVar(r)
			}
			v.assigns = append(v.assigns, assignSite{id, a})
			if a.Kind == AssignExpression {
				v.programs = append(v.programs, programSite{id, a.Program})
			}
		}
	}

	switch f := f.(type) {
	case *ExpressionFormula:
		for _, in := range f.Inputs {
			readVar(in)
		}
		writeVar(f.As)
		v.programs = append(v.programs, programSite{id, f.Program})

	case *SwitchFormula:
		readVar(f.Variable)
		writeVar(f.ID)
		for i := range f.Cases {
			cond(&f.Cases[i].When)
			sets(f.Cases[i].SetVars)
		}
		sets(f.DefaultVars)

	case *SimpleScoring:
		readVar(f.Variable)
		writeVar(ScoreKey(f.ID))
		cond(&f.When)
		sets(f.SetVars)

	case *RangeScoring:
		readVar(f.Variable)
		writeVar(ScoreKey(f.ID))
		for i := range f.Ranges {
			cond(&f.Ranges[i].When)
			sets(f.Ranges[i].SetVars)
		}

	case *MatrixScoring:
		for _, name := range f.Vars {
			readVar(name)
		}
		writeVar(ScoreKey(f.ID))
		if depth := treeDepth(f.Tree, types.MaxMatrixDepth+1); depth > len(f.Vars) || depth > types.MaxMatrixDepth {
			v.errorf(id, "", "matrix tree has %d levels for %d variables (limit %d)", depth, len(f.Vars), types.MaxMatrixDepth)
		}
		var walk func(nodes []MatrixNode, depth int)
		walk = func(nodes []MatrixNode, depth int) {
			if depth > types.MaxMatrixDepth {
				return
			}
			for i := range nodes {
				n := &nodes[i]
				cond(&n.When)
				sets(n.SetVars)
				if n.Leaf() {
					for field := range n.Fields {
						writeVar(FieldKey(f.ID, field))
					}
				}
				walk(n.Children, depth+1)
			}
		}
		walk(f.Tree, 0)

	case *AccumulativeRules:
		writeVar(f.ID)
		for i := range f.Rules {
			r := &f.Rules[i]
			readVar(r.Variable)
			if r.When != nil {
				cond(r.When)
			}
			sets(r.SetVars)
			for j := range r.Ranges {
				cond(&r.Ranges[j].When)
				sets(r.Ranges[j].SetVars)
			}
		}
	}
}

func (v *validator) checkWriters() {
	for _, name := range types.SortedKeys(v.writers) {
		ids := v.writers[name]
		if len(ids) > 1 {
			v.errorf(ids[0], name, "variable %q is written by multiple formulas: %s", name, strings.Join(ids, ", "))
		}
		if !v.read[name] {
			v.warnf(ids[0], name, "variable %q is written but never read", name)
		}
	}
}

func (v *validator) checkFormulaCycles() {
	g := newGraph()
	for _, id := range v.ids {
		g.addNode(id)
		for _, name := range types.SortedKeys(v.reads[id]) {
			for _, w := range v.writers[name] {
				if w != id {
					g.addEdge(id, w)
				}
			}
		}
	}

	cycles, deep := g.cycles(types.MaxDependencyDepth)
	for _, c := range cycles {
		v.errorf(c[0], "", "circular dependency: %s", strings.Join(c, " -> "))
	}
	for _, origin := range deep {
		v.errorf(origin, "", "dependency chain starting at %q exceeds depth %d", origin, types.MaxDependencyDepth)
	}
}

func (v *validator) checkSetVars() {
	g := newGraph()
	owner := make(map[string]string)
	for _, s := range v.assigns {
		if _, ok := owner[s.a.Name]; !ok {
			owner[s.a.Name] = s.formula
		}
		g.addNode(s.a.Name)
		for _, r := range s.a.Reads() {
			if r == s.a.Name {
				v.errorf(s.formula, s.a.Name, "set_vars %q references itself", s.a.Name)
				continue
			}
			g.addEdge(s.a.Name, r)
		}
	}

	cycles, deep := g.cycles(types.MaxDependencyDepth)
	for _, c := range cycles {
		v.errorf(owner[c[0]], c[0], "circular set_vars dependency: %s", strings.Join(c, " -> "))
	}
	for _, origin := range deep {
		v.errorf(owner[origin], origin, "set_vars chain starting at %q exceeds depth %d", origin, types.MaxDependencyDepth)
	}
}

func (v *validator) checkFunctions(functions expr.Dispatcher) {
	seen := make(map[string]bool)
	for _, s := range v.programs {
		for _, name := range s.p.Functions() {
			key := s.formula + "\x00" + name
			if seen[key] || functions.Has(name) {
				continue
			}
			seen[key] = true
			v.errorf(s.formula, "", "%v: %s in %q", types.ErrUnknownFunction, name, s.p.String())
		}
	}
}

// graph is a directed graph over names with deterministic iteration order.
type graph struct {
	nodes []string
	edges map[string][]string
}

func newGraph() *graph {
	return &graph{edges: make(map[string][]string)}
}

func (g *graph) addNode(n string) {
	if _, ok := g.edges[n]; !ok {
		g.nodes = append(g.nodes, n)
		g.edges[n] = nil
	}
}

func (g *graph) addEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)
	for _, e := range g.edges[from] {
		if e == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// cycles runs a depth-bounded DFS. It returns each cycle found as a closed path
// (first node repeated at the end) and the roots whose chains exceed limit.
func (g *graph) cycles(limit int) ([][]string, []string) {
	const (
		white = iota
		gray
		black
	)
	state := make(map[string]int, len(g.nodes))
	var (
		stack   []string
		found   [][]string
		deep    []string
		tooDeep bool
	)

	var visit func(n string, depth int)
	visit = func(n string, depth int) {
		if depth > limit {
			tooDeep = true
			return
		}
		state[n] = gray
		stack = append(stack, n)
		for _, next := range g.edges[n] {
			switch state[next] {
			case gray:
				for i, s := range stack {
					if s == next {
						path := append(append([]string(nil), stack[i:]...), next)
						found = append(found, path)
						break
					}
				}
			case white:
				visit(next, depth+1)
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = black
	}

	for _, n := range g.nodes {
		if state[n] != white {
			continue
		}
		tooDeep = false
		visit(n, 0)
		if tooDeep {
			deep = append(deep, n)
		}
	}
	return found, deep
}
