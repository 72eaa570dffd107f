// internal/expr/evaluator.go
package expr

import (
	"errors"
	"fmt"
	"sort"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Expression evaluation orchestration.
 *
 * Evaluation flow:
 *   1. Tokenize (once per Program) with unary minus reclassified
 *   2. Reduce: identifiers -> bound numbers, name(...) -> dispatcher result
 *   3. Shunting-Yard to postfix
 *   4. Postfix evaluation with safe division
 *
 * Function calls are reduced innermost-first: the matching ")" is located by
 * depth counting, arguments are split on top-level commas, and each argument
 * is evaluated recursively as a full expression before the call is made.
 *
 * Parse runs the same pipeline in check mode (bindings and calls yield 1,
 * postfix is only arity-checked) so malformed expressions are rejected when a
 * configuration is compiled rather than when it is first evaluated.
 */

// maxCallDepth bounds nested function-call reduction.
const maxCallDepth = 64

// Dispatcher resolves function calls for the evaluator.
// *functions.Registry implements it.
type Dispatcher interface {
	Has(name string) bool
	Call(name string, args []float64) (float64, error)
}

// Program is a tokenized expression ready for repeated evaluation.
// Programs are immutable and safe to share across goroutines.
type Program struct {
	source string
	tokens []token
}

// Parse tokenizes and structurally checks an expression.
func Parse(expression string) (*Program, error) {
	toks, err := tokenize(expression)
	if err != nil {
		return nil, err
	}
	p := &Program{source: expression, tokens: toks}

	r := &reducer{
		source: expression,
		lookup: func(string) (float64, error) { return 1, nil },
		call:   func(string, []float64) (float64, error) { return 1, nil },
		check:  true,
	}
	if _, err := r.evaluate(toks, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// String returns the original expression text.
func (p *Program) String() string {
	return p.source
}

// References returns the sorted, de-duplicated identifiers the program reads.
func (p *Program) References() []string {
	return p.collect(tokIdent)
}

// Functions returns the sorted, de-duplicated function names the program calls.
func (p *Program) Functions() []string {
	return p.collect(tokFunc)
}

func (p *Program) collect(kind tokenKind) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range p.tokens {
		if t.kind == kind && !seen[t.text] {
			seen[t.text] = true
			out = append(out, t.text)
		}
	}
	sort.Strings(out)
	return out
}

// References parses expression and returns the identifiers it reads.
func References(expression string) ([]string, error) {
	p, err := Parse(expression)
	if err != nil {
		return nil, err
	}
	return p.References(), nil
}

// Evaluator evaluates expressions against numeric bindings.
type Evaluator struct {
	functions Dispatcher
}

// New creates an evaluator. A nil dispatcher makes every call an unknown function.
func New(functions Dispatcher) *Evaluator {
	return &Evaluator{functions: functions}
}

// Evaluate parses and evaluates expression in one step.
func (e *Evaluator) Evaluate(expression string, bindings map[string]float64) (float64, error) {
	p, err := Parse(expression)
	if err != nil {
		return 0, err
	}
	return e.Run(p, bindings)
}

// Run evaluates a parsed program against bindings.
func (e *Evaluator) Run(p *Program, bindings map[string]float64) (float64, error) {
	r := &reducer{
		source: p.source,
		lookup: func(name string) (float64, error) {
			v, ok := bindings[name]
			if !ok {
				return 0, syntaxError(p.source, name, "unresolved identifier")
			}
			return v, nil
		},
		call: e.call(p.source),
	}
	return r.evaluate(p.tokens, 0)
}

func (e *Evaluator) call(src string) func(string, []float64) (float64, error) {
	return func(name string, args []float64) (float64, error) {
		if e.functions == nil || !e.functions.Has(name) {
			return 0, &types.ExpressionError{Expression: src, Fragment: name, Message: "unknown function", Kind: types.ErrUnknownFunction}
		}
		v, err := e.functions.Call(name, args)
		if err != nil {
			var fe *types.FunctionError
			if errors.As(err, &fe) {
				return 0, err
			}
			if errors.Is(err, types.ErrUnknownFunction) {
				return 0, &types.ExpressionError{Expression: src, Fragment: name, Message: "unknown function", Kind: types.ErrUnknownFunction}
			}
			return 0, &types.FunctionError{Name: name, Args: args, Message: err.Error()}
		}
		return v, nil
	}
}

// reducer evaluates a token slice, resolving bindings and calls first.
type reducer struct {
	source string
	lookup func(name string) (float64, error)
	call   func(name string, args []float64) (float64, error)
	check  bool
}

func (r *reducer) evaluate(toks []token, depth int) (float64, error) {
	if depth > maxCallDepth {
		return 0, syntaxError(r.source, "", fmt.Sprintf("function calls nested deeper than %d", maxCallDepth))
	}
	if len(toks) == 0 {
		return 0, syntaxError(r.source, "", "empty expression")
	}

	flat, err := r.reduce(toks, depth)
	if err != nil {
		return 0, err
	}
	postfix, err := toPostfix(r.source, flat)
	if err != nil {
		return 0, err
	}
	if r.check {
		return 1, checkPostfix(r.source, postfix)
	}
	return evalPostfix(r.source, postfix)
}

// reduce replaces identifiers and function calls with number tokens.
func (r *reducer) reduce(toks []token, depth int) ([]token, error) {
	out := make([]token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.kind {
		case tokIdent:
			v, err := r.lookup(t.text)
			if err != nil {
				return nil, err
			}
			out = append(out, numberToken(v, t.pos))

		case tokFunc:
			open := i + 1
			end, err := matchParen(r.source, toks, open)
			if err != nil {
				return nil, err
			}
			args := splitArgs(toks[open+1 : end])
			values := make([]float64, 0, len(args))
			for _, arg := range args {
				if len(arg) == 0 {
					return nil, syntaxError(r.source, t.text, "empty function argument")
				}
				v, err := r.evaluate(arg, depth+1)
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}
			v, err := r.call(t.text, values)
			if err != nil {
				return nil, err
			}
			out = append(out, numberToken(v, t.pos))
			i = end

		case tokComma:
			return nil, syntaxError(r.source, ",", "comma outside function call")

		default:
			out = append(out, t)
		}
	}
	return out, nil
}

// matchParen returns the index of the ")" closing the "(" at open.
func matchParen(src string, toks []token, open int) (int, error) {
	if open >= len(toks) || toks[open].kind != tokLParen {
		return 0, syntaxError(src, "", "expected '(' after function name")
	}
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, syntaxError(src, toks[open].text, "mismatched parentheses")
}

// splitArgs splits call arguments on top-level commas.
// An empty argument list yields no arguments; "f(1,)" yields an empty second one.
func splitArgs(inner []token) [][]token {
	if len(inner) == 0 {
		return nil
	}
	var args [][]token
	depth := 0
	start := 0
	for i, t := range inner {
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		case tokComma:
			if depth == 0 {
				args = append(args, inner[start:i])
				start = i + 1
			}
		}
	}
	return append(args, inner[start:])
}
