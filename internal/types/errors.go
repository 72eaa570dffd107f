package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors identifying every failure kind. Typed errors below unwrap to one of
// these so callers can branch with errors.Is.
var (
	// ErrConfig indicates a structural or static configuration problem.
	ErrConfig = errors.New("invalid configuration")

	// ErrMissingInput indicates a formula input is absent or null in the context.
	ErrMissingInput = errors.New("missing input")

	// ErrMissingSwitchValue indicates a switch variable is absent or null.
	ErrMissingSwitchValue = errors.New("missing switch value")

	// ErrUnsupportedOperator indicates an unknown condition operator.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrExpression indicates a tokenizer, parser or postfix evaluation failure.
	ErrExpression = errors.New("invalid expression")

	// ErrUnsafeDivision indicates division by a near-zero or non-finite operand.
	ErrUnsafeDivision = errors.New("unsafe division")

	// ErrUnknownFunction indicates a call to an unregistered function.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrFunction indicates a function-specific domain error.
	ErrFunction = errors.New("function error")

	// ErrUnresolvableDependency indicates set_vars that can never be resolved.
	ErrUnresolvableDependency = errors.New("unresolvable dependency")

	// ErrIterationBudgetExceeded indicates the set_vars worklist ran out of passes.
	ErrIterationBudgetExceeded = errors.New("iteration budget exceeded")

	// ErrFormula indicates a runtime failure while applying a formula.
	ErrFormula = errors.New("formula failed")
)

// ConfigError lists every structural problem found while compiling or validating.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid configuration: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid configuration (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// ExpressionError reports an evaluator failure with the offending fragment.
// Kind is ErrExpression, ErrUnsafeDivision or ErrUnknownFunction.
type ExpressionError struct {
	Expression string
	Fragment   string
	Message    string
	Kind       error
}

func (e *ExpressionError) Error() string {
	msg := e.Message
	if e.Fragment != "" {
		msg = fmt.Sprintf("%s near %q", msg, e.Fragment)
	}
	if e.Expression != "" {
		return fmt.Sprintf("%v: %s in %q", e.kind(), msg, e.Expression)
	}
	return fmt.Sprintf("%v: %s", e.kind(), msg)
}

func (e *ExpressionError) Unwrap() error { return e.kind() }

func (e *ExpressionError) kind() error {
	if e.Kind == nil {
		return ErrExpression
	}
	return e.Kind
}

// FunctionError reports a domain failure inside a registered function.
type FunctionError struct {
	Name    string
	Args    []float64
	Message string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function %s%v: %s", e.Name, e.Args, e.Message)
}

func (e *FunctionError) Unwrap() error { return ErrFunction }

// MissingInputError names the variable a formula could not read.
type MissingInputError struct {
	Variable string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input %q", e.Variable)
}

func (e *MissingInputError) Unwrap() error { return ErrMissingInput }

// UnresolvableDependencyError names set_vars stuck on missing or circular references.
type UnresolvableDependencyError struct {
	Pending []string
}

func (e *UnresolvableDependencyError) Error() string {
	return fmt.Sprintf("unresolvable set_vars dependency: %s", strings.Join(e.Pending, ", "))
}

func (e *UnresolvableDependencyError) Unwrap() error { return ErrUnresolvableDependency }

// FormulaError wraps a runtime failure with the formula that raised it.
// ContextKeys lists the variables present when the failure occurred.
type FormulaError struct {
	ID          string
	Type        string
	ContextKeys []string
	Err         error
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("formula %q (%s): %v", e.ID, e.Type, e.Err)
}

// Unwrap exposes both the formula kind and the inner cause to errors.Is.
func (e *FormulaError) Unwrap() []error { return []error{ErrFormula, e.Err} }
