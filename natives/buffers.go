package natives

import (
	"github.com/chazu/chainsaw/vm"
)

// Buffer is the extern payload behind buf_* functions.
type Buffer struct {
	data []byte
}

// String returns the buffer contents.
func (b *Buffer) String() string { return string(b.data) }

// RegisterBuffers installs buf_new, buf_push, buf_len and buf_string.
// Buffers live in heap slots as extern payloads, so they count against the
// heap and are freed by collections like objects are.
func RegisterBuffers(rt *vm.Runtime) {
	rt.RegisterFunction("buf_new", 0, func(ctx *vm.CallContext) (vm.Value, error) {
		addr, ok := vm.AllocExtern(ctx.Heap, Buffer{})
		if !ok {
			ctx.RequestGC()
			return vm.Nil, nil
		}
		return vm.FromExtern(addr), nil
	})

	rt.RegisterFunction("buf_push", 2, func(ctx *vm.CallContext) (vm.Value, error) {
		args, err := ctx.Args(2)
		if err != nil {
			return vm.Nil, err
		}
		buf, err := borrowBuffer(ctx, "buf_push", args[0])
		if err != nil {
			return vm.Nil, err
		}
		buf.data = append(buf.data, rt.FormatValue(args[1])...)
		return args[0], nil
	})

	rt.RegisterFunction("buf_len", 1, func(ctx *vm.CallContext) (vm.Value, error) {
		v, err := ctx.Arg()
		if err != nil {
			return vm.Nil, err
		}
		buf, err := borrowBuffer(ctx, "buf_len", v)
		if err != nil {
			return vm.Nil, err
		}
		return vm.FromNumber(float64(len(buf.data))), nil
	})

	// buf_string consumes the buffer: the slot is freed and the contents
	// become an interned string.
	rt.RegisterFunction("buf_string", 1, func(ctx *vm.CallContext) (vm.Value, error) {
		v, err := ctx.Arg()
		if err != nil {
			return vm.Nil, err
		}
		addr, ok := v.ExternAddr()
		if !ok {
			return vm.Nil, vm.TypeError("buf_string", "buffer", v)
		}
		buf, err := vm.Take[Buffer](ctx.Heap, addr)
		if err != nil {
			return vm.Nil, err
		}
		return vm.FromString(ctx.Strings.Intern(buf.String())), nil
	})
}

func borrowBuffer(ctx *vm.CallContext, name string, v vm.Value) (*Buffer, error) {
	addr, ok := v.ExternAddr()
	if !ok {
		return nil, vm.TypeError(name, "buffer", v)
	}
	return vm.BorrowMut[Buffer](ctx.Heap, addr)
}
