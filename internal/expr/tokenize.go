// internal/expr/tokenize.go
package expr

import (
	"strconv"
	"strings"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Expression tokenizer.
 *
 * Splits an arithmetic expression into numbers, identifiers, function names,
 * operators, parentheses and commas. Identifiers may carry the binding sigil
 * ($income and income are the same reference). Bindings are looked up when the
 * program runs, never substituted into the source text, so a binding named "a"
 * can never rewrite part of an identifier such as "rate".
 *
 * After scanning, every "-" that starts the expression or follows an operator,
 * an open parenthesis or a comma is reclassified as unary minus. This must
 * happen before postfix conversion because unary and binary minus differ in
 * precedence and arity.
 */

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokFunc
	tokOperator
	tokLParen
	tokRParen
	tokComma
)

// Operator spellings. opNeg never appears in source text.
const (
	opAdd = "+"
	opSub = "-"
	opMul = "*"
	opDiv = "/"
	opPow = "**"
	opNeg = "neg"
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func numberToken(v float64, pos int) token {
	return token{kind: tokNumber, text: strconv.FormatFloat(v, 'g', -1, 64), num: v, pos: pos}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// tokenize scans src into tokens with unary minus already reclassified.
func tokenize(src string) ([]token, error) {
	if strings.TrimSpace(src) == "" {
		return nil, syntaxError(src, "", "empty expression")
	}

	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case isSpace(c):
			i++

		case isDigit(c) || c == '.':
			start := i
			dots := 0
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				if src[i] == '.' {
					dots++
				}
				i++
			}
			text := src[start:i]
			if dots > 1 || text == "." {
				return nil, syntaxError(src, text, "malformed number")
			}
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, syntaxError(src, text, "malformed number")
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: v, pos: start})

		case c == '$' || isIdentStart(c):
			start := i
			sigil := c == '$'
			if sigil {
				i++
				if i >= len(src) || !isIdentStart(src[i]) {
					return nil, syntaxError(src, src[start:i], "dangling binding sigil")
				}
			}
			nameStart := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			name := src[nameStart:i]

			// An identifier directly followed by "(" is a call.
			j := i
			for j < len(src) && isSpace(src[j]) {
				j++
			}
			if j < len(src) && src[j] == '(' {
				if sigil {
					return nil, syntaxError(src, src[start:i], "binding reference cannot be called")
				}
				toks = append(toks, token{kind: tokFunc, text: name, pos: start})
				continue
			}
			toks = append(toks, token{kind: tokIdent, text: name, pos: start})

		case c == '*':
			if i+1 < len(src) && src[i+1] == '*' {
				toks = append(toks, token{kind: tokOperator, text: opPow, pos: i})
				i += 2
				continue
			}
			toks = append(toks, token{kind: tokOperator, text: opMul, pos: i})
			i++

		case c == '+' || c == '-' || c == '/':
			toks = append(toks, token{kind: tokOperator, text: string(c), pos: i})
			i++

		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++

		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++

		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++

		default:
			return nil, syntaxError(src, string(c), "unexpected character")
		}
	}

	markUnary(toks)
	return toks, nil
}

// markUnary rewrites "-" tokens in prefix position to opNeg.
func markUnary(toks []token) {
	for i := range toks {
		if toks[i].kind != tokOperator || toks[i].text != opSub {
			continue
		}
		if i == 0 {
			toks[i].text = opNeg
			continue
		}
		switch toks[i-1].kind {
		case tokOperator, tokLParen, tokComma:
			toks[i].text = opNeg
		}
	}
}

func syntaxError(src, fragment, msg string) error {
	return &types.ExpressionError{Expression: src, Fragment: fragment, Message: msg, Kind: types.ErrExpression}
}
