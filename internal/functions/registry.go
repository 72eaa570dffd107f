// Package functions provides the named numeric function table consumed by the
// expression evaluator.
package functions

import (
	"fmt"
	"sort"

	"github.com/solatis/scorekeeper/internal/types"
)

// Func computes a numeric result from evaluated arguments.
// Domain failures should be returned as *types.FunctionError.
type Func func(args []float64) (float64, error)

// Registry maps function names to implementations.
// Populate it once before handing it to an evaluator; it is read-only afterwards
// and then safe for concurrent Call.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn under name, replacing any previous registration.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes name with args.
func (r *Registry) Call(name string, args []float64) (float64, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrUnknownFunction, name)
	}
	return fn(args)
}
