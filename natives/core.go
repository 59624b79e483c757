// Package natives is the host function library: printing, assertions,
// arithmetic and comparison, math, and extern-backed string buffers.
// Arithmetic lives here because the language has no operators.
package natives

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/chazu/chainsaw/vm"
)

// ErrAssertion is returned by assert_eq when its operands differ.
var ErrAssertion = errors.New("assertion failed")

// Config selects which groups are registered.
type Config struct {
	Out     io.Writer // print destination
	Math    bool
	Buffers bool
}

// Register installs the core group plus whichever optional groups cfg
// enables.
func Register(rt *vm.Runtime, cfg Config) {
	RegisterCore(rt, cfg.Out)
	if cfg.Math {
		RegisterMath(rt)
	}
	if cfg.Buffers {
		RegisterBuffers(rt)
	}
}

// RegisterCore installs print, assert_eq, alloc, len, eq, and the
// arithmetic and comparison functions.
func RegisterCore(rt *vm.Runtime, out io.Writer) {
	if out == nil {
		out = io.Discard
	}

	rt.RegisterFunction("print", 1, func(ctx *vm.CallContext) (vm.Value, error) {
		v, err := ctx.Arg()
		if err != nil {
			return vm.Nil, err
		}
		fmt.Fprintln(out, rt.FormatValue(v))
		return vm.Nil, nil
	})

	rt.RegisterFunction("assert_eq", 3, func(ctx *vm.CallContext) (vm.Value, error) {
		args, err := ctx.Args(3)
		if err != nil {
			return vm.Nil, err
		}
		actual, expected, msg := args[0], args[1], args[2]
		if actual != expected {
			return vm.Nil, fmt.Errorf("%w: %s: got %s, want %s", ErrAssertion,
				rt.FormatValue(msg), rt.FormatValue(actual), rt.FormatValue(expected))
		}
		return vm.Nil, nil
	})

	rt.RegisterFunction("alloc", 0, func(ctx *vm.CallContext) (vm.Value, error) {
		addr, ok := ctx.Heap.Alloc()
		if !ok {
			ctx.RequestGC()
			return vm.Nil, nil
		}
		return vm.FromObject(addr), nil
	})

	rt.RegisterFunction("len", 1, func(ctx *vm.CallContext) (vm.Value, error) {
		v, err := ctx.Arg()
		if err != nil {
			return vm.Nil, err
		}
		switch v.Kind() {
		case vm.KindString:
			id, _ := v.StringID()
			return vm.FromNumber(float64(len(ctx.Strings.Get(id)))), nil
		case vm.KindObject:
			addr, _ := v.ObjectAddr()
			obj, err := ctx.Heap.Get(addr)
			if err != nil {
				return vm.Nil, err
			}
			return vm.FromNumber(float64(obj.Len())), nil
		}
		return vm.Nil, vm.TypeError("len", "string or object", v)
	})

	rt.RegisterFunction("eq", 2, func(ctx *vm.CallContext) (vm.Value, error) {
		args, err := ctx.Args(2)
		if err != nil {
			return vm.Nil, err
		}
		return vm.FromBool(args[0] == args[1]), nil
	})

	rt.RegisterFunction("add", 2, func(ctx *vm.CallContext) (vm.Value, error) {
		args, err := ctx.Args(2)
		if err != nil {
			return vm.Nil, err
		}
		a, b := args[0], args[1]
		if x, ok := a.Number(); ok {
			if y, ok := b.Number(); ok {
				return vm.FromNumber(x + y), nil
			}
		}
		if sa, ok := a.StringID(); ok {
			left := ctx.Strings.Get(sa)
			switch {
			case b.IsString():
				sb, _ := b.StringID()
				return vm.FromString(ctx.Strings.Intern(left + ctx.Strings.Get(sb))), nil
			case b.IsNumber():
				n, _ := b.Number()
				return vm.FromString(ctx.Strings.Intern(left + vm.FormatNumber(n))), nil
			}
		}
		return vm.Nil, fmt.Errorf("add: cannot add %s and %s", a.Kind(), b.Kind())
	})

	arith := map[string]func(a, b float64) float64{
		"sub": func(a, b float64) float64 { return a - b },
		"mul": func(a, b float64) float64 { return a * b },
		"div": func(a, b float64) float64 { return a / b },
		"mod": math.Mod,
	}
	for _, name := range []string{"sub", "mul", "div", "mod"} {
		op := arith[name]
		registerBinary(rt, name, func(a, b float64) vm.Value { return vm.FromNumber(op(a, b)) })
	}

	registerBinary(rt, "gt", func(a, b float64) vm.Value { return vm.FromBool(a > b) })
	registerBinary(rt, "lt", func(a, b float64) vm.Value { return vm.FromBool(a < b) })
	registerBinary(rt, "lte", func(a, b float64) vm.Value { return vm.FromBool(a <= b) })
	registerBinary(rt, "gte", func(a, b float64) vm.Value { return vm.FromBool(a >= b) })
}

// registerBinary installs a two-number function.
func registerBinary(rt *vm.Runtime, name string, fn func(a, b float64) vm.Value) {
	rt.RegisterFunction(name, 2, func(ctx *vm.CallContext) (vm.Value, error) {
		args, err := ctx.Args(2)
		if err != nil {
			return vm.Nil, err
		}
		a, ok := args[0].Number()
		if !ok {
			return vm.Nil, vm.TypeError(name, "number", args[0])
		}
		b, ok := args[1].Number()
		if !ok {
			return vm.Nil, vm.TypeError(name, "number", args[1])
		}
		return fn(a, b), nil
	})
}
