package natives

import (
	"math"

	"github.com/chazu/chainsaw/vm"
)

var unaryMath = []struct {
	name string
	fn   func(float64) float64
}{
	{"abs", math.Abs},
	{"acos", math.Acos},
	{"acosh", math.Acosh},
	{"asin", math.Asin},
	{"asinh", math.Asinh},
	{"atan", math.Atan},
	{"atanh", math.Atanh},
	{"cbrt", math.Cbrt},
	{"ceil", math.Ceil},
	{"cos", math.Cos},
	{"cosh", math.Cosh},
	{"exp", math.Exp},
	{"exp2", math.Exp2},
	{"floor", math.Floor},
	{"fract", func(x float64) float64 { return x - math.Trunc(x) }},
	{"ln", math.Log},
	{"log10", math.Log10},
	{"log2", math.Log2},
	{"round", math.Round},
	{"signum", signum},
	{"sin", math.Sin},
	{"sinh", math.Sinh},
	{"sqrt", math.Sqrt},
	{"tan", math.Tan},
	{"tanh", math.Tanh},
	{"to_degrees", func(x float64) float64 { return x * 180 / math.Pi }},
	{"to_radians", func(x float64) float64 { return x * math.Pi / 180 }},
	{"trunc", math.Trunc},
}

var mathPredicates = []struct {
	name string
	fn   func(float64) bool
}{
	{"is_finite", func(x float64) bool { return !math.IsInf(x, 0) && !math.IsNaN(x) }},
	{"is_infinite", func(x float64) bool { return math.IsInf(x, 0) }},
	{"is_nan", math.IsNaN},
	{"is_normal", isNormal},
}

// RegisterMath installs the one-argument math functions and predicates.
func RegisterMath(rt *vm.Runtime) {
	for _, m := range unaryMath {
		fn := m.fn
		registerUnary(rt, m.name, func(x float64) vm.Value { return vm.FromNumber(fn(x)) })
	}
	for _, p := range mathPredicates {
		fn := p.fn
		registerUnary(rt, p.name, func(x float64) vm.Value { return vm.FromBool(fn(x)) })
	}
}

func registerUnary(rt *vm.Runtime, name string, fn func(float64) vm.Value) {
	rt.RegisterFunction(name, 1, func(ctx *vm.CallContext) (vm.Value, error) {
		v, err := ctx.Arg()
		if err != nil {
			return vm.Nil, err
		}
		x, ok := v.Number()
		if !ok {
			return vm.Nil, vm.TypeError(name, "number", v)
		}
		return fn(x), nil
	})
}

// signum is 1 for positive numbers and +0, -1 for negative numbers and -0.
func signum(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return x
	case math.Signbit(x):
		return -1
	default:
		return 1
	}
}

// isNormal reports whether x is neither zero, subnormal, infinite nor NaN.
func isNormal(x float64) bool {
	if x == 0 || math.IsInf(x, 0) || math.IsNaN(x) {
		return false
	}
	return math.Abs(x) >= 0x1p-1022
}
