package vm

import (
	"errors"
	"fmt"
)

// Heap errors.
var (
	ErrInvalidAddress = errors.New("invalid heap address")
	ErrSegfault       = errors.New("segfault: slot has been freed")
	ErrWrongSlotKind  = errors.New("wrong slot kind")
	ErrExternType     = errors.New("extern payload has a different type")
	ErrMarkLength     = errors.New("mark vector length does not match heap size")
)

// Runtime errors. These are fatal to the current run.
var (
	ErrNotCallable          = errors.New("value is not callable")
	ErrNotObject            = errors.New("value is not an object")
	ErrArity                = errors.New("argument count mismatch")
	ErrInvokeNotImplemented = errors.New("method dispatch not implemented")
	ErrStackUnderflow       = errors.New("stack underflow")
	ErrBadInstruction       = errors.New("bad instruction")
	ErrNativeContract       = errors.New("native requested collection without restoring the stack")
	ErrNative               = errors.New("native function failed")
)

// RuntimeError describes a fatal error raised while stepping.
type RuntimeError struct {
	Err    error  // one of the sentinel errors above
	IP     int    // index of the failing instruction
	Op     Opcode // failing opcode
	Detail string // optional context
	Cause  error  // underlying error from a heap accessor or native
}

func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("runtime error at %04d (%s): %v", e.IP, e.Op, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil && e.Cause != e.Err {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is.
func (e *RuntimeError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// TypeError builds the error a native returns for a badly typed argument.
// The VM wraps it in a RuntimeError with ErrNative.
func TypeError(name string, want string, got Value) error {
	return fmt.Errorf("%s: expected %s, got %s", name, want, got.Kind())
}
