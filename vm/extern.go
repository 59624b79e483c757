package vm

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// ExternObject: Type-tagged foreign payload owned by the heap
// ---------------------------------------------------------------------------

// ExternObject holds an opaque Go value together with its dynamic type.
// The core never looks inside; natives down-cast with Borrow, BorrowMut and
// Take, which succeed only when the requested type matches the tag.
type ExternObject struct {
	typ   reflect.Type
	value any // always a *T where T is typ
}

// NewExtern boxes v as an extern payload.
func NewExtern[T any](v T) *ExternObject {
	p := new(T)
	*p = v
	return &ExternObject{typ: reflect.TypeFor[T](), value: p}
}

// Type returns the payload's type tag.
func (e *ExternObject) Type() reflect.Type {
	return e.typ
}

// TypeName returns the payload type as a string, for display.
func (e *ExternObject) TypeName() string {
	return e.typ.String()
}

// Addr returns the payload's storage address. Only meaningful for display.
func (e *ExternObject) Addr() uintptr {
	return reflect.ValueOf(e.value).Pointer()
}

func (e *ExternObject) String() string {
	return fmt.Sprintf("Extern<%s>", e.typ)
}

// ExternIs reports whether e carries a T.
func ExternIs[T any](e *ExternObject) bool {
	return e.typ == reflect.TypeFor[T]()
}

// ExternAs returns a pointer to the payload if it is a T.
func ExternAs[T any](e *ExternObject) (*T, bool) {
	p, ok := e.value.(*T)
	return p, ok
}

// ---------------------------------------------------------------------------
// Heap-level extern accessors
// ---------------------------------------------------------------------------

// AllocExtern installs v in the next free slot.
func AllocExtern[T any](h *Heap, v T) (uint32, bool) {
	return h.allocSlot(slot{kind: SlotExtern, ext: NewExtern(v)})
}

// Borrow returns a copy of the T stored at addr.
func Borrow[T any](h *Heap, addr uint32) (T, error) {
	var zero T
	p, err := BorrowMut[T](h, addr)
	if err != nil {
		return zero, err
	}
	return *p, nil
}

// BorrowMut returns a pointer to the T stored at addr. The pointer is
// valid until the slot is freed.
func BorrowMut[T any](h *Heap, addr uint32) (*T, error) {
	e, err := h.GetExtern(addr)
	if err != nil {
		return nil, err
	}
	p, ok := ExternAs[T](e)
	if !ok {
		return nil, fmt.Errorf("%w: slot %d holds %s, not %s", ErrExternType, addr, e.typ, reflect.TypeFor[T]())
	}
	return p, nil
}

// Take moves the T out of addr and frees the slot. The slot is left
// untouched when the type does not match.
func Take[T any](h *Heap, addr uint32) (T, error) {
	var zero T
	if _, err := BorrowMut[T](h, addr); err != nil {
		return zero, err
	}
	e, err := h.TakeExtern(addr)
	if err != nil {
		return zero, err
	}
	p, _ := ExternAs[T](e)
	return *p, nil
}
