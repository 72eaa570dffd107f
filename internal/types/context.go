package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

/*
 * Evaluation context.
 *
 * Context is the ordered variable store threaded through one evaluation run. Values are
 * normalized scalars: int64, float64, bool, string or nil. Keys keep first-insertion
 * order and are never deleted; overwriting a key keeps its original position.
 *
 * A Context is owned by a single evaluation call and is not safe for concurrent use.
 */

// Context is an ordered mapping from variable name to scalar value.
type Context struct {
	keys   []string
	values map[string]any
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// NewContextFrom creates a context seeded with inputs in sorted key order.
// Returns an error when an input is not a scalar.
func NewContextFrom(inputs Inputs) (*Context, error) {
	c := NewContext()
	for _, name := range SortedKeys(inputs) {
		v, err := NormalizeScalar(inputs[name])
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		c.Set(name, v)
	}
	return c, nil
}

// Get returns the value stored under name and whether the key exists.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Has reports whether name has been written.
func (c *Context) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Set writes value under name. The value must already be normalized.
func (c *Context) Set(name string, value any) {
	if _, ok := c.values[name]; !ok {
		c.keys = append(c.keys, name)
	}
	c.values[name] = value
}

// Keys returns variable names in insertion order.
func (c *Context) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of variables.
func (c *Context) Len() int {
	return len(c.keys)
}

// Map returns an unordered copy of the context.
func (c *Context) Map() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the context as a JSON object preserving insertion order.
func (c *Context) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(c.values[k])
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NormalizeScalar converts Go numeric and JSON-decoded values to the context scalar set.
// Integers become int64, floats become float64; json.Number is parsed.
func NormalizeScalar(v any) (any, error) {
	switch n := v.(type) {
	case nil, bool, string, int64, float64:
		return v, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return float64(n), nil
		}
		return int64(n), nil
	case float32:
		return float64(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", n.String())
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToNumber converts a scalar to float64 for arithmetic.
// Numeric strings are parsed; booleans map to 1 and 0; nil and other strings fail.
// Strings spelling NaN or an infinity are not numeric.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// NormalizeName strips the binding sigil from a variable reference.
func NormalizeName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), BindingSigil)
}
