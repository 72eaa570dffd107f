package functions

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/solatis/scorekeeper/internal/types"
)

// Builtin returns a registry holding the standard numeric helpers.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("abs", unary("abs", math.Abs))
	r.Register("floor", unary("floor", math.Floor))
	r.Register("ceil", unary("ceil", math.Ceil))
	r.Register("sqrt", sqrt)
	r.Register("min", minOf)
	r.Register("max", maxOf)
	r.Register("sum", sumOf)
	r.Register("avg", avg)
	r.Register("pow", pow)
	r.Register("round", round)
	r.Register("clamp", clamp)
	r.Register("percent", percent)
	return r
}

func fail(name string, args []float64, msg string) error {
	return &types.FunctionError{Name: name, Args: args, Message: msg}
}

func unary(name string, fn func(float64) float64) Func {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fail(name, args, "expects exactly 1 argument")
		}
		return fn(args[0]), nil
	}
}

func sqrt(args []float64) (float64, error) {
	if len(args) != 1 {
		return 0, fail("sqrt", args, "expects exactly 1 argument")
	}
	if args[0] < 0 {
		return 0, fail("sqrt", args, "negative argument")
	}
	return math.Sqrt(args[0]), nil
}

func minOf(args []float64) (float64, error) {
	if len(args) == 0 {
		return 0, fail("min", args, "expects at least 1 argument")
	}
	m := args[0]
	for _, a := range args[1:] {
		m = math.Min(m, a)
	}
	return m, nil
}

func maxOf(args []float64) (float64, error) {
	if len(args) == 0 {
		return 0, fail("max", args, "expects at least 1 argument")
	}
	m := args[0]
	for _, a := range args[1:] {
		m = math.Max(m, a)
	}
	return m, nil
}

func sumOf(args []float64) (float64, error) {
	total := 0.0
	for _, a := range args {
		total += a
	}
	return total, nil
}

func avg(args []float64) (float64, error) {
	if len(args) == 0 {
		return 0, fail("avg", args, "expects at least 1 argument")
	}
	total, _ := sumOf(args)
	return total / float64(len(args)), nil
}

func pow(args []float64) (float64, error) {
	if len(args) != 2 {
		return 0, fail("pow", args, "expects exactly 2 arguments")
	}
	v := math.Pow(args[0], args[1])
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fail("pow", args, "result is not a finite real number")
	}
	return v, nil
}

// round uses decimal half-away-from-zero rounding so that round(2.675, 2) is 2.68
// rather than the 2.67 a float64 multiply-and-round produces.
func round(args []float64) (float64, error) {
	if len(args) < 1 || len(args) > 2 {
		return 0, fail("round", args, "expects 1 or 2 arguments")
	}
	places := int32(0)
	if len(args) == 2 {
		if args[1] != math.Trunc(args[1]) || args[1] < 0 || args[1] > 15 {
			return 0, fail("round", args, "places must be an integer between 0 and 15")
		}
		places = int32(args[1])
	}
	if math.IsNaN(args[0]) || math.IsInf(args[0], 0) {
		return 0, fail("round", args, "argument is not finite")
	}
	f, _ := decimal.NewFromFloat(args[0]).Round(places).Float64()
	return f, nil
}

func clamp(args []float64) (float64, error) {
	if len(args) != 3 {
		return 0, fail("clamp", args, "expects exactly 3 arguments")
	}
	lo, hi := args[1], args[2]
	if lo > hi {
		return 0, fail("clamp", args, "lower bound exceeds upper bound")
	}
	return math.Max(lo, math.Min(hi, args[0])), nil
}

// percent returns part as a percentage of whole.
func percent(args []float64) (float64, error) {
	if len(args) != 2 {
		return 0, fail("percent", args, "expects exactly 2 arguments")
	}
	if math.Abs(args[1]) < types.SafeDivisionEpsilon {
		return 0, fail("percent", args, "whole must not be zero")
	}
	return args[0] / args[1] * 100, nil
}
