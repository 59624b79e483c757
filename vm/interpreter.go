package vm

import (
	"fmt"
	"slices"
)

// ControlFlow is the outcome of a single Step.
type ControlFlow uint8

const (
	// Continue means the instruction completed and the next one is ready.
	Continue ControlFlow = iota
	// RequestGC means the instruction could not complete until the heap is
	// collected. The instruction pointer still points at it.
	RequestGC
	// Halt means execution reached a HALT instruction.
	Halt
)

func (c ControlFlow) String() string {
	switch c {
	case Continue:
		return "continue"
	case RequestGC:
		return "request-gc"
	case Halt:
		return "halt"
	}
	return fmt.Sprintf("ControlFlow(%d)", c)
}

// ---------------------------------------------------------------------------
// VM: Single-stepping interpreter bound to one module
// ---------------------------------------------------------------------------

// VM executes a Module against a Runtime. All state lives in the Runtime,
// so a suspended VM can be resumed after the heap is swept.
type VM struct {
	rt     *Runtime
	module *Module
}

// Runtime returns the runtime the VM executes against.
func (vm *VM) Runtime() *Runtime { return vm.rt }

// Module returns the module being executed.
func (vm *VM) Module() *Module { return vm.module }

// IP returns the instruction pointer.
func (vm *VM) IP() int { return vm.rt.ip }

// Current returns the instruction at the instruction pointer.
func (vm *VM) Current() (Instruction, bool) {
	ip := vm.rt.ip
	if ip < 0 || ip >= len(vm.module.Code) {
		return Instruction{}, false
	}
	return vm.module.Code[ip], true
}

func (vm *VM) fail(ip int, op Opcode, sentinel error, cause error, format string, args ...any) error {
	e := &RuntimeError{Err: sentinel, IP: ip, Op: op, Cause: cause}
	if format != "" {
		e.Detail = fmt.Sprintf(format, args...)
	}
	return e
}

// Step executes one instruction.
func (vm *VM) Step() (ControlFlow, error) {
	rt := vm.rt
	pc := rt.ip
	if pc < 0 || pc >= len(vm.module.Code) {
		return Halt, vm.fail(pc, 0, ErrBadInstruction, nil, "instruction pointer out of range (%d instructions)", len(vm.module.Code))
	}
	in := vm.module.Code[pc]
	rt.ip++

	stack := &rt.stack

	switch in.Op {
	case OpLoad:
		v, ok := rt.GlobalAt(in.Index)
		if !ok {
			return Halt, vm.fail(pc, in.Op, ErrBadInstruction, nil, "global %d out of range", in.Index)
		}
		stack.Push(v)

	case OpStore:
		v, ok := stack.Pop()
		if !ok {
			return Halt, vm.fail(pc, in.Op, ErrStackUnderflow, nil, "")
		}
		if int(in.Index) >= len(rt.globals) {
			return Halt, vm.fail(pc, in.Op, ErrBadInstruction, nil, "global %d out of range", in.Index)
		}
		rt.globals[in.Index] = v

	case OpIndexGet:
		v, ok := stack.Pop()
		if !ok {
			return Halt, vm.fail(pc, in.Op, ErrStackUnderflow, nil, "")
		}
		obj, err := vm.object(pc, in.Op, v)
		if err != nil {
			return Halt, err
		}
		stack.Push(obj.Get(in.Index))

	case OpIndexSet:
		rhs, ok := stack.Pop()
		if !ok {
			return Halt, vm.fail(pc, in.Op, ErrStackUnderflow, nil, "")
		}
		target, ok := stack.Pop()
		if !ok {
			return Halt, vm.fail(pc, in.Op, ErrStackUnderflow, nil, "")
		}
		obj, err := vm.object(pc, in.Op, target)
		if err != nil {
			return Halt, err
		}
		obj.Set(in.Index, rhs)

	case OpLoadNil:
		stack.Push(Nil)
	case OpLoadTrue:
		stack.Push(True)
	case OpLoadFalse:
		stack.Push(False)

	case OpLoadConst:
		if int(in.Index) >= len(vm.module.Constants) {
			return Halt, vm.fail(pc, in.Op, ErrBadInstruction, nil, "constant %d out of range", in.Index)
		}
		stack.Push(FromNumber(vm.module.Constants[in.Index]))

	case OpLoadString:
		stack.Push(FromString(in.Index))

	case OpAlloc:
		addr, ok := rt.Heap.Alloc()
		if !ok {
			rt.ip = pc
			return RequestGC, nil
		}
		stack.Push(FromObject(addr))

	case OpCall:
		return vm.call(pc, in)

	case OpInvoke:
		sym := rt.Fields.Name(in.Index)
		return Halt, vm.fail(pc, in.Op, ErrInvokeNotImplemented, nil, "selector %q with %d args", sym, in.Args)

	case OpJmp:
		rt.ip = jumpTarget(rt.ip, in.Rel)

	case OpJmpIfFalse:
		// An empty stack does not branch.
		if v, ok := stack.Pop(); ok && !v.IsTruthy() {
			rt.ip = jumpTarget(rt.ip, in.Rel)
		}

	case OpPop:
		stack.Pop()

	case OpHalt:
		return Halt, nil

	default:
		return Halt, vm.fail(pc, in.Op, ErrBadInstruction, nil, "unknown opcode 0x%02x", byte(in.Op))
	}

	return Continue, nil
}

// object resolves v to a live object slot.
func (vm *VM) object(pc int, op Opcode, v Value) (*Object, error) {
	addr, ok := v.ObjectAddr()
	if !ok {
		return nil, vm.fail(pc, op, ErrNotObject, nil, "got %s", v.Kind())
	}
	obj, err := vm.rt.Heap.Get(addr)
	if err != nil {
		return nil, vm.fail(pc, op, ErrNotObject, err, "")
	}
	return obj, nil
}

func (vm *VM) call(pc int, in Instruction) (ControlFlow, error) {
	rt := vm.rt
	stack := &rt.stack
	argc := int(in.Args)
	base := stack.Len() - argc - 1
	if base < 0 {
		return Halt, vm.fail(pc, in.Op, ErrStackUnderflow, nil, "call with %d args on a stack of %d", argc, stack.Len())
	}

	callee := stack.At(base)
	pid, ok := callee.FunctionID()
	if !ok {
		return Halt, vm.fail(pc, in.Op, ErrNotCallable, nil, "got %s", callee.Kind())
	}
	native, ok := rt.Native(pid)
	if !ok {
		return Halt, vm.fail(pc, in.Op, ErrNotCallable, nil, "no native with id %d", pid)
	}
	if int(native.Arity) != argc {
		return Halt, vm.fail(pc, in.Op, ErrArity, nil, "%s takes %d args, got %d", native.Name, native.Arity, argc)
	}

	window := slices.Clone(stack.values[base:])
	ctx := &CallContext{
		Stack:   stack,
		Heap:    rt.Heap,
		Strings: rt.Strings,
		Fields:  rt.Fields,
	}
	result, err := native.Fn(ctx)
	if err != nil {
		return Halt, vm.fail(pc, in.Op, ErrNative, err, "%s", native.Name)
	}

	if ctx.needsGC {
		if stack.Len() != base+len(window) || !slices.EqualFunc(stack.values[base:], window, sameValue) {
			return Halt, vm.fail(pc, in.Op, ErrNativeContract, nil, "%s", native.Name)
		}
		rt.ip = pc
		return RequestGC, nil
	}

	stack.Truncate(base)
	stack.Push(result)
	return Continue, nil
}

// sameValue compares bit patterns, so a NaN argument matches itself.
func sameValue(a, b Value) bool {
	return a.Kind() == b.Kind() && a.Bits() == b.Bits()
}

// RunUntilSuspend steps until the VM halts or requests a collection.
func (vm *VM) RunUntilSuspend() (ControlFlow, error) {
	for {
		cf, err := vm.Step()
		if err != nil || cf != Continue {
			return cf, err
		}
	}
}
