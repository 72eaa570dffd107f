// internal/rules/coercion.go
package rules

import (
	"math"
	"strconv"
	"strings"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Literal coercion for set_vars.
 *
 * Literal strings are committed with a fixed policy, applied in order:
 *   1. "" passes through unchanged (nil never reaches here as a string)
 *   2. true/1/yes/on and false/0/no/off, case-insensitive -> bool
 *   3. strings that round-trip exactly through integer parsing -> int64
 *   4. other strings that parse as finite floats -> float64
 *   5. anything else stays a string
 *
 * Step 2 runs before step 3, so "1" and "0" become booleans, not integers.
 * Round-tripping rejects "007" and "+5" as integers; they fall through to the
 * float step. Non-string literals are normalized, not coerced.
 */

var (
	trueWords  = map[string]bool{"true": true, "1": true, "yes": true, "on": true}
	falseWords = map[string]bool{"false": true, "0": true, "no": true, "off": true}
)

// CoerceLiteral converts a raw set_vars literal to a context scalar.
func CoerceLiteral(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return types.NormalizeScalar(raw)
	}
	return coerceString(s), nil
}

func coerceString(s string) any {
	if s == "" {
		return s
	}
	// Surrounding whitespace is ignored for every conversion; a string that
	// converts to nothing is kept verbatim.
	t := strings.TrimSpace(s)
	lower := strings.ToLower(t)
	if trueWords[lower] {
		return true
	}
	if falseWords[lower] {
		return false
	}
	if i, err := strconv.ParseInt(t, 10, 64); err == nil && strconv.FormatInt(i, 10) == t {
		return i
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}
