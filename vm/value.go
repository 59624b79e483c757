package vm

import (
	"fmt"
	"math"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindFunction
	KindObject
	KindExtern
)

var kindNames = [...]string{
	KindNil:      "nil",
	KindBool:     "bool",
	KindNumber:   "number",
	KindString:   "string",
	KindFunction: "function",
	KindObject:   "object",
	KindExtern:   "extern",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a small tagged union. Values are copied by assignment and
// compared with ==.
//
// Payloads:
//   - Number: num
//   - Bool: ref (0 or 1)
//   - String: ref is an interner id
//   - Function: ref is an index into the native table
//   - Object, Extern: ref is a heap slot address
type Value struct {
	kind Kind
	num  float64
	ref  uint32
}

// Pre-defined values
var (
	Nil   = Value{}
	True  = Value{kind: KindBool, ref: 1}
	False = Value{kind: KindBool, ref: 0}
)

// FromBool converts a Go bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromNumber wraps a float64.
func FromNumber(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// FromString wraps an interner id.
func FromString(id uint32) Value {
	return Value{kind: KindString, ref: id}
}

// FromFunction wraps a native function table index.
func FromFunction(id uint32) Value {
	return Value{kind: KindFunction, ref: id}
}

// FromObject wraps the heap address of a plain object.
func FromObject(addr uint32) Value {
	return Value{kind: KindObject, ref: addr}
}

// FromExtern wraps the heap address of an extern payload.
func FromExtern(addr uint32) Value {
	return Value{kind: KindExtern, ref: addr}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool      { return v.kind == KindNil }
func (v Value) IsBool() bool     { return v.kind == KindBool }
func (v Value) IsNumber() bool   { return v.kind == KindNumber }
func (v Value) IsString() bool   { return v.kind == KindString }
func (v Value) IsFunction() bool { return v.kind == KindFunction }
func (v Value) IsObject() bool   { return v.kind == KindObject }
func (v Value) IsExtern() bool   { return v.kind == KindExtern }

// Bool returns the payload of a Bool value. It is false for any other kind.
func (v Value) Bool() bool {
	return v.kind == KindBool && v.ref != 0
}

// Number returns the float payload and whether v is a Number.
func (v Value) Number() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// StringID returns the interner id and whether v is a String.
func (v Value) StringID() (uint32, bool) {
	return v.ref, v.kind == KindString
}

// FunctionID returns the native table index and whether v is a FunctionPtr.
func (v Value) FunctionID() (uint32, bool) {
	return v.ref, v.kind == KindFunction
}

// ObjectAddr returns the heap address and whether v is an Object.
func (v Value) ObjectAddr() (uint32, bool) {
	return v.ref, v.kind == KindObject
}

// ExternAddr returns the heap address and whether v is an Extern.
func (v Value) ExternAddr() (uint32, bool) {
	return v.ref, v.kind == KindExtern
}

// IsTruthy reports whether v counts as true for conditional jumps.
// Only nil and false are falsy.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.ref != 0
	default:
		return true
	}
}

// Bits returns the raw 64-bit payload, as shown to a collector.
func (v Value) Bits() uint64 {
	switch v.kind {
	case KindNil:
		return 0
	case KindNumber:
		return math.Float64bits(v.num)
	default:
		return uint64(v.ref)
	}
}

// HeapRef returns the heap slot referenced by v, if any.
func (v Value) HeapRef() (uint32, bool) {
	if v.kind == KindObject || v.kind == KindExtern {
		return v.ref, true
	}
	return 0, false
}

// String renders v without runtime context. Use Runtime.FormatValue to
// resolve strings and object fields.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "Nil"
	case KindBool:
		return fmt.Sprintf("Bool(%t)", v.ref != 0)
	case KindNumber:
		return fmt.Sprintf("Number(%g)", v.num)
	case KindString:
		return fmt.Sprintf("String(%d)", v.ref)
	case KindFunction:
		return fmt.Sprintf("FunctionPtr(%d)", v.ref)
	case KindObject:
		return fmt.Sprintf("Object(%d)", v.ref)
	case KindExtern:
		return fmt.Sprintf("Extern(%d)", v.ref)
	}
	return fmt.Sprintf("Value(%d)", v.kind)
}
