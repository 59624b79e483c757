package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultHeapSize is the slot count NewRuntime uses.
const DefaultHeapSize = 20

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

// Stack is the VM value stack. The top is the last element.
type Stack struct {
	values []Value
}

// Push appends v.
func (s *Stack) Push(v Value) {
	s.values = append(s.values, v)
}

// Pop removes and returns the top value.
func (s *Stack) Pop() (Value, bool) {
	n := len(s.values)
	if n == 0 {
		return Nil, false
	}
	v := s.values[n-1]
	s.values = s.values[:n-1]
	return v, true
}

// Peek returns the value depth positions below the top (0 is the top).
func (s *Stack) Peek(depth int) (Value, bool) {
	i := len(s.values) - 1 - depth
	if i < 0 || depth < 0 {
		return Nil, false
	}
	return s.values[i], true
}

// At returns the value at absolute index i (0 is the bottom).
func (s *Stack) At(i int) Value {
	return s.values[i]
}

// Len returns the number of values.
func (s *Stack) Len() int {
	return len(s.values)
}

// Truncate drops everything above index n.
func (s *Stack) Truncate(n int) {
	if n < len(s.values) {
		s.values = s.values[:n]
	}
}

// Clear empties the stack.
func (s *Stack) Clear() {
	s.values = s.values[:0]
}

// Values returns a copy of the stack, bottom first.
func (s *Stack) Values() []Value {
	out := make([]Value, len(s.values))
	copy(out, s.values)
	return out
}

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// NativeFunc is the behavior of a registered function. It consumes its
// arguments from ctx.Stack (last argument on top) and returns the result.
//
// To ask for a collection, a native must leave the stack exactly as it
// found it and call ctx.RequestGC; the VM then re-executes the CALL after
// the collection. A returned error aborts the run.
type NativeFunc func(ctx *CallContext) (Value, error)

// NativeDef is one entry in the native-function table.
type NativeDef struct {
	Name  string
	Arity uint8
	Fn    NativeFunc
}

// CallContext bundles the runtime state a native may touch.
type CallContext struct {
	Stack   *Stack
	Heap    *Heap
	Strings *Interner
	Fields  *FieldTable
	needsGC bool
}

// RequestGC asks the driver to run a collection before the CALL is
// retried. The stack must be in its pre-call state.
func (c *CallContext) RequestGC() {
	c.needsGC = true
}

// NeedsGC reports whether RequestGC was called.
func (c *CallContext) NeedsGC() bool {
	return c.needsGC
}

// FieldID returns the id for a field name, assigning one if needed.
func (c *CallContext) FieldID(name string) uint32 {
	return c.Fields.ID(name)
}

// Arg pops one argument, failing with ErrStackUnderflow when the stack is
// empty.
func (c *CallContext) Arg() (Value, error) {
	v, ok := c.Stack.Pop()
	if !ok {
		return Nil, ErrStackUnderflow
	}
	return v, nil
}

// Args pops n arguments and returns them in call order.
func (c *CallContext) Args(n int) ([]Value, error) {
	if c.Stack.Len() < n {
		return nil, ErrStackUnderflow
	}
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i], _ = c.Stack.Pop()
	}
	return args, nil
}

// ---------------------------------------------------------------------------
// Runtime: Process-wide interpreter state
// ---------------------------------------------------------------------------

// Runtime holds everything that survives between runs: globals, field
// ids, interned strings, natives and the heap. Reset clears only the stack
// and instruction pointer.
type Runtime struct {
	globals     []Value
	globalNames map[string]uint32
	nameOf      []string

	Fields  *FieldTable
	Strings *Interner
	Heap    *Heap
	Metrics GCMetrics

	natives []NativeDef

	stack Stack
	ip    int
}

// NewRuntime creates a runtime with a DefaultHeapSize heap.
func NewRuntime() *Runtime {
	return NewRuntimeWithHeap(DefaultHeapSize)
}

// NewRuntimeWithHeap creates a runtime whose heap has n slots.
func NewRuntimeWithHeap(n int) *Runtime {
	return &Runtime{
		globalNames: make(map[string]uint32),
		Fields:      NewFieldTable(),
		Strings:     NewInterner(),
		Heap:        NewHeap(n),
	}
}

// Spawn binds m to the runtime for stepping.
func (rt *Runtime) Spawn(m *Module) *VM {
	return &VM{rt: rt, module: m}
}

// Reset clears the stack and rewinds the instruction pointer. Globals and
// the heap are kept.
func (rt *Runtime) Reset() {
	rt.stack.Clear()
	rt.ip = 0
}

// IP returns the instruction pointer.
func (rt *Runtime) IP() int { return rt.ip }

// Stack returns the value stack.
func (rt *Runtime) Stack() *Stack { return &rt.stack }

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// GlobalIndex returns the index for name, creating a Nil global if the
// name is new. Indices never change once assigned.
func (rt *Runtime) GlobalIndex(name string) uint32 {
	if idx, ok := rt.globalNames[name]; ok {
		return idx
	}
	idx := uint32(len(rt.globals))
	rt.globals = append(rt.globals, Nil)
	rt.nameOf = append(rt.nameOf, name)
	rt.globalNames[name] = idx
	return idx
}

// SetGlobal assigns name, creating it if needed.
func (rt *Runtime) SetGlobal(name string, v Value) {
	rt.globals[rt.GlobalIndex(name)] = v
}

// Global returns the value bound to name.
func (rt *Runtime) Global(name string) (Value, bool) {
	idx, ok := rt.globalNames[name]
	if !ok {
		return Nil, false
	}
	return rt.globals[idx], true
}

// GlobalAt returns the value at a global index.
func (rt *Runtime) GlobalAt(idx uint32) (Value, bool) {
	if int(idx) >= len(rt.globals) {
		return Nil, false
	}
	return rt.globals[idx], true
}

// GlobalEntry is one named global.
type GlobalEntry struct {
	Name  string
	Index uint32
	Value Value
}

// Globals returns every global in index order.
func (rt *Runtime) Globals() []GlobalEntry {
	out := make([]GlobalEntry, len(rt.globals))
	for i, v := range rt.globals {
		out[i] = GlobalEntry{Name: rt.nameOf[i], Index: uint32(i), Value: v}
	}
	return out
}

// GlobalValues returns a copy of the globals vector.
func (rt *Runtime) GlobalValues() []Value {
	out := make([]Value, len(rt.globals))
	copy(out, rt.globals)
	return out
}

// FieldID returns the id for a field name, assigning one if needed.
func (rt *Runtime) FieldID(name string) uint32 {
	return rt.Fields.ID(name)
}

// FieldIDs returns every field name with its id, in id order.
func (rt *Runtime) FieldIDs() []string {
	return rt.Fields.All()
}

// FieldName returns the name for a field id, or "" if unknown.
func (rt *Runtime) FieldName(id uint32) string {
	return rt.Fields.Name(id)
}

// InternString interns a string literal.
func (rt *Runtime) InternString(s string) uint32 {
	return rt.Strings.Intern(s)
}

// ---------------------------------------------------------------------------
// Native registration
// ---------------------------------------------------------------------------

// RegisterFunction appends a native and binds name to it.
func (rt *Runtime) RegisterFunction(name string, arity uint8, fn NativeFunc) uint32 {
	id := uint32(len(rt.natives))
	rt.natives = append(rt.natives, NativeDef{Name: name, Arity: arity, Fn: fn})
	rt.SetGlobal(name, FromFunction(id))
	return id
}

// Native returns the native with the given id.
func (rt *Runtime) Native(id uint32) (*NativeDef, bool) {
	if int(id) >= len(rt.natives) {
		return nil, false
	}
	return &rt.natives[id], true
}

// Natives returns the native table in id order.
func (rt *Runtime) Natives() []NativeDef {
	out := make([]NativeDef, len(rt.natives))
	copy(out, rt.natives)
	return out
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// FormatValue renders v using the runtime's strings, fields and heap.
func (rt *Runtime) FormatValue(v Value) string {
	switch v.Kind() {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindNumber:
		n, _ := v.Number()
		return FormatNumber(n)
	case KindString:
		id, _ := v.StringID()
		return rt.Strings.Get(id)
	case KindFunction:
		id, _ := v.FunctionID()
		return fmt.Sprintf("fn<%d>", id)
	case KindObject:
		addr, _ := v.ObjectAddr()
		obj, err := rt.Heap.Get(addr)
		if err != nil {
			return fmt.Sprintf("<freed #%d>", addr)
		}
		return rt.formatObject(obj)
	case KindExtern:
		addr, _ := v.ExternAddr()
		ext, err := rt.Heap.GetExtern(addr)
		if err != nil {
			return fmt.Sprintf("<freed #%d>", addr)
		}
		return ext.String()
	}
	return v.String()
}

func (rt *Runtime) formatObject(obj *Object) string {
	if obj.Len() == 0 {
		return "Object {}"
	}
	var sb strings.Builder
	sb.WriteString("Object { ")
	for i, fid := range obj.FieldIDs() {
		if i > 0 {
			sb.WriteString(", ")
		}
		name := rt.Fields.Name(fid)
		if name == "" {
			name = "#" + strconv.FormatUint(uint64(fid), 10)
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		fv := obj.Get(fid)
		if fv.IsObject() {
			// Nested objects are shown by address to keep cycles finite.
			addr, _ := fv.ObjectAddr()
			fmt.Fprintf(&sb, "@%d", addr)
		} else {
			sb.WriteString(rt.FormatValue(fv))
		}
	}
	sb.WriteString(" }")
	return sb.String()
}

// FormatNumber prints integral floats without a fractional part.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
