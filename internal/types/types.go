// Package types provides domain models shared across scorekeeper components.
//
// Zero-dependency design: types.go, context.go and errors.go use only the standard
// library so the engine packages can import them without pulling in transport or
// storage deps. ID utilities in ids.go import uuid and are isolated for the same reason.
package types

import "encoding/json"

// RunID represents a UUIDv7 evaluation run identifier.
// String alias enables type safety while maintaining JSON string serialization.
type RunID string

// Inputs is the flat caller-supplied variable map for one evaluation.
type Inputs map[string]any

// Output represents a serialized evaluation context.
// json.RawMessage wrapper preserves key order produced by Context.MarshalJSON.
type Output json.RawMessage

// MarshalJSON implements json.Marshaler.
func (o Output) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	return json.RawMessage(o).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Output) UnmarshalJSON(data []byte) error {
	return (*json.RawMessage)(o).UnmarshalJSON(data)
}

// BindingSigil marks a token as a context reference rather than a literal.
const BindingSigil = "$"

// Resource limits enforced by the engine so that adversarial configurations terminate.
const (
	// MaxMatrixDepth caps scoring matrix nesting.
	// 32 levels is far beyond any real decision table and keeps recursion shallow.
	MaxMatrixDepth = 32

	// MaxDependencyDepth caps DFS depth in the dependency validator.
	MaxDependencyDepth = 100

	// SafeDivisionEpsilon is the smallest divisor magnitude accepted by "/".
	// Smaller divisors are treated as zero to absorb floating-point rounding noise.
	SafeDivisionEpsilon = 1e-10

	// MaxInOperatorValues limits in/not_in operand lists.
	MaxInOperatorValues = 256
)
