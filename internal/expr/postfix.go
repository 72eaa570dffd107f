// internal/expr/postfix.go
package expr

import (
	"math"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Shunting-Yard conversion and postfix evaluation.
 *
 * Input to toPostfix contains only numbers, operators and parentheses: bindings
 * and function calls have already been reduced to numbers.
 *
 * Precedence, low to high:
 *   + -   2  left
 *   * /   3  left
 *   **    4  right
 *   neg   5  right (prefix)
 *
 * A prefix operator never pops the stack because it has no left operand. An
 * incoming "**" does not pop a pending neg, so -2 ** 2 is -(2 ** 2) = -4 while
 * 2 ** -2 is 2 ** (-2).
 *
 * Division is safe: non-finite operands, divisors with magnitude below
 * types.SafeDivisionEpsilon, and non-finite quotients fail with ErrUnsafeDivision.
 */

func precedence(op string) int {
	switch op {
	case opAdd, opSub:
		return 2
	case opMul, opDiv:
		return 3
	case opPow:
		return 4
	case opNeg:
		return 5
	default:
		return 0
	}
}

func rightAssociative(op string) bool {
	return op == opPow || op == opNeg
}

// toPostfix converts infix tokens to postfix order.
func toPostfix(src string, toks []token) ([]token, error) {
	out := make([]token, 0, len(toks))
	stack := make([]token, 0, len(toks))

	for _, t := range toks {
		switch t.kind {
		case tokNumber:
			out = append(out, t)

		case tokOperator:
			if t.text == opNeg {
				stack = append(stack, t)
				continue
			}
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.kind != tokOperator {
					break
				}
				if t.text == opPow && top.text == opNeg {
					break
				}
				pt, pi := precedence(top.text), precedence(t.text)
				if pt > pi || (pt == pi && !rightAssociative(t.text)) {
					out = append(out, top)
					stack = stack[:len(stack)-1]
					continue
				}
				break
			}
			stack = append(stack, t)

		case tokLParen:
			stack = append(stack, t)

		case tokRParen:
			matched := false
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.kind == tokLParen {
					matched = true
					break
				}
				out = append(out, top)
			}
			if !matched {
				return nil, syntaxError(src, t.text, "mismatched parentheses")
			}

		default:
			return nil, syntaxError(src, t.text, "unexpected token")
		}
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.kind == tokLParen {
			return nil, syntaxError(src, top.text, "mismatched parentheses")
		}
		out = append(out, top)
	}
	return out, nil
}

// evalPostfix computes the value of a postfix token sequence.
func evalPostfix(src string, postfix []token) (float64, error) {
	stack := make([]float64, 0, len(postfix))

	for _, t := range postfix {
		if t.kind == tokNumber {
			stack = append(stack, t.num)
			continue
		}

		if t.text == opNeg {
			if len(stack) < 1 {
				return 0, syntaxError(src, "-", "missing operand")
			}
			stack[len(stack)-1] = -stack[len(stack)-1]
			continue
		}

		if len(stack) < 2 {
			return 0, syntaxError(src, t.text, "missing operand")
		}
		b := stack[len(stack)-1]
		a := stack[len(stack)-2]
		stack = stack[:len(stack)-2]

		v, err := apply(src, t.text, a, b)
		if err != nil {
			return 0, err
		}
		stack = append(stack, v)
	}

	if len(stack) != 1 {
		return 0, syntaxError(src, "", "malformed expression")
	}
	result := stack[0]
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, syntaxError(src, "", "result is not a finite number")
	}
	return result, nil
}

// checkPostfix validates operand counts without computing anything.
func checkPostfix(src string, postfix []token) error {
	depth := 0
	for _, t := range postfix {
		switch {
		case t.kind == tokNumber:
			depth++
		case t.text == opNeg:
			if depth < 1 {
				return syntaxError(src, "-", "missing operand")
			}
		default:
			if depth < 2 {
				return syntaxError(src, t.text, "missing operand")
			}
			depth--
		}
	}
	if depth != 1 {
		return syntaxError(src, "", "malformed expression")
	}
	return nil
}

func apply(src, op string, a, b float64) (float64, error) {
	switch op {
	case opAdd:
		return a + b, nil
	case opSub:
		return a - b, nil
	case opMul:
		return a * b, nil
	case opDiv:
		return safeDivide(src, a, b)
	case opPow:
		v := math.Pow(a, b)
		if math.IsNaN(v) {
			return 0, syntaxError(src, opPow, "power has no real result")
		}
		return v, nil
	default:
		return 0, syntaxError(src, op, "unknown operator")
	}
}

func safeDivide(src string, a, b float64) (float64, error) {
	if math.IsNaN(a) || math.IsInf(a, 0) || math.IsNaN(b) || math.IsInf(b, 0) {
		return 0, divisionError(src, "non-finite operand")
	}
	if math.Abs(b) < types.SafeDivisionEpsilon {
		return 0, divisionError(src, "division by zero")
	}
	q := a / b
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, divisionError(src, "quotient overflow")
	}
	return q, nil
}

func divisionError(src, msg string) error {
	return &types.ExpressionError{Expression: src, Fragment: opDiv, Message: msg, Kind: types.ErrUnsafeDivision}
}
