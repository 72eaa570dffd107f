// internal/rules/engine.go
package rules

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/solatis/scorekeeper/internal/expr"
	"github.com/solatis/scorekeeper/internal/functions"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Pipeline orchestrator.
 *
 * NewEngine validates the formula list once and refuses configurations with
 * Error diagnostics, so evaluation never starts against a rejected config.
 * Evaluate creates a fresh Context per call, applies every formula once in
 * order and aborts on the first failure with a FormulaError.
 *
 * An Engine holds only immutable state (formulas, function registry, logger,
 * observer) and is safe for concurrent Evaluate calls; each call owns its
 * Context exclusively.
 */

// Observer receives engine events. internal/core/metrics implements it.
type Observer interface {
	ObserveDiagnostics(diags []Diagnostic)
	ObserveFormula(kind Kind, err error)
	ObserveEvaluation(d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDiagnostics([]Diagnostic)        {}
func (nopObserver) ObserveFormula(Kind, error)             {}
func (nopObserver) ObserveEvaluation(time.Duration, error) {}

// Option configures an Engine.
type Option func(*Engine)

// WithFunctions replaces the builtin function registry.
func WithFunctions(d expr.Dispatcher) Option {
	return func(e *Engine) { e.functions = d }
}

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine evaluates a validated formula list.
type Engine struct {
	formulas    []Formula
	functions   expr.Dispatcher
	logger      zerolog.Logger
	observer    Observer
	dispatch    *dispatcher
	diagnostics []Diagnostic
}

// NewEngine validates formulas and prepares them for evaluation.
// Returns *types.ConfigError listing every Error diagnostic.
func NewEngine(formulas []Formula, opts ...Option) (*Engine, error) {
	e := &Engine{
		formulas:  formulas,
		functions: functions.Builtin(),
		logger:    zerolog.Nop(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.diagnostics = ValidateWith(formulas, e.functions)
	e.observer.ObserveDiagnostics(e.diagnostics)

	var problems []string
	for _, d := range e.diagnostics {
		if d.Severity == SeverityError {
			problems = append(problems, d.String())
			continue
		}
		e.logger.Warn().Str("formula", d.FormulaID).Str("variable", d.Variable).Msg(d.Message)
	}
	if len(problems) > 0 {
		return nil, &types.ConfigError{Problems: problems}
	}

	e.dispatch = newDispatcher(expr.New(e.functions), e.logger)
	e.logger.Debug().Int("formulas", len(formulas)).Msg("engine ready")
	return e, nil
}

// Build compiles a configuration tree and creates an engine from it.
func Build(tree any, opts ...Option) (*Engine, error) {
	formulas, err := Compile(tree)
	if err != nil {
		return nil, err
	}
	return NewEngine(formulas, opts...)
}

// Formulas returns the compiled pipeline in evaluation order.
func (e *Engine) Formulas() []Formula {
	return e.formulas
}

// Diagnostics returns the warnings found when the engine was created.
func (e *Engine) Diagnostics() []Diagnostic {
	return e.diagnostics
}

// Evaluate runs the pipeline against inputs and returns the final context.
func (e *Engine) Evaluate(inputs types.Inputs) (*types.Context, error) {
	start := time.Now()
	ctx, err := e.evaluate(inputs)
	elapsed := time.Since(start)

	e.observer.ObserveEvaluation(elapsed, err)
	if err != nil {
		e.logger.Debug().Err(err).Dur("elapsed", elapsed).Msg("evaluation failed")
		return nil, err
	}
	e.logger.Debug().Int("variables", ctx.Len()).Dur("elapsed", elapsed).Msg("evaluation complete")
	return ctx, nil
}

func (e *Engine) evaluate(inputs types.Inputs) (*types.Context, error) {
	ctx, err := types.NewContextFrom(inputs)
	if err != nil {
		return nil, fmt.Errorf("invalid inputs: %w", err)
	}

	for _, f := range e.formulas {
		err := e.dispatch.apply(f, ctx)
		e.observer.ObserveFormula(f.Kind(), err)
		if err != nil {
			return nil, &types.FormulaError{
				ID:          f.FormulaID(),
				Type:        string(f.Kind()),
				ContextKeys: ctx.Keys(),
				Err:         err,
			}
		}
	}
	return ctx, nil
}
