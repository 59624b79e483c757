package vm

import "fmt"

// ---------------------------------------------------------------------------
// Heap: Fixed-capacity slot vector with an intrusive free list
// ---------------------------------------------------------------------------

// SlotKind tags the contents of a heap slot.
type SlotKind uint8

const (
	SlotFree SlotKind = iota
	SlotObject
	SlotExtern
)

func (k SlotKind) String() string {
	switch k {
	case SlotFree:
		return "free"
	case SlotObject:
		return "object"
	case SlotExtern:
		return "extern"
	}
	return fmt.Sprintf("SlotKind(%d)", k)
}

type slot struct {
	kind SlotKind
	next int // SlotFree: next free slot, len(slots) ends the chain
	obj  *Object
	ext  *ExternObject
}

// Heap owns every object and extern payload. Addresses are slot indices
// and stay valid until the slot is freed.
//
// Invariant: following next from head visits exactly the free slots, each
// once, and ends at len(slots).
type Heap struct {
	head  int
	slots []slot
}

// NewHeap creates a heap with n free slots chained in address order.
func NewHeap(n int) *Heap {
	h := &Heap{slots: make([]slot, n)}
	for i := range h.slots {
		h.slots[i] = slot{kind: SlotFree, next: i + 1}
	}
	return h
}

// Size returns the slot count.
func (h *Heap) Size() int {
	return len(h.slots)
}

// Full reports whether the next allocation would fail.
func (h *Heap) Full() bool {
	return h.head >= len(h.slots)
}

// Alloc installs an empty object in the head slot.
func (h *Heap) Alloc() (uint32, bool) {
	return h.allocSlot(slot{kind: SlotObject, obj: NewObject()})
}

// AllocExternObject installs an already boxed extern payload.
func (h *Heap) AllocExternObject(e *ExternObject) (uint32, bool) {
	return h.allocSlot(slot{kind: SlotExtern, ext: e})
}

func (h *Heap) allocSlot(s slot) (uint32, bool) {
	if h.head >= len(h.slots) {
		return 0, false
	}
	addr := h.head
	h.head = h.slots[addr].next
	h.slots[addr] = s
	return uint32(addr), true
}

// Free returns addr to the free list, dropping whatever it held.
// Freeing an already free slot is a no-op rather than a second prepend:
// the free list is left exactly as it was, so the chain never holds the
// same slot twice.
func (h *Heap) Free(addr uint32) error {
	if int(addr) >= len(h.slots) {
		return fmt.Errorf("%w: %d (heap size %d)", ErrInvalidAddress, addr, len(h.slots))
	}
	h.release(int(addr))
	return nil
}

// release prepends addr to the free list. Reports whether it changed state.
func (h *Heap) release(addr int) bool {
	if h.slots[addr].kind == SlotFree {
		return false
	}
	h.slots[addr] = slot{kind: SlotFree, next: h.head}
	h.head = addr
	return true
}

// Sweep frees every slot whose mark is false and returns how many slots
// transitioned to free.
func (h *Heap) Sweep(marks []bool) (int, error) {
	if len(marks) != len(h.slots) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrMarkLength, len(marks), len(h.slots))
	}
	freed := 0
	for addr, keep := range marks {
		if !keep && h.release(addr) {
			freed++
		}
	}
	return freed, nil
}

func (h *Heap) slotAt(addr uint32) (*slot, error) {
	if int(addr) >= len(h.slots) {
		return nil, fmt.Errorf("%w: %d (heap size %d)", ErrInvalidAddress, addr, len(h.slots))
	}
	return &h.slots[addr], nil
}

// Get returns the object at addr. Fails with ErrSegfault when the slot
// has been freed and ErrWrongSlotKind when it holds an extern.
func (h *Heap) Get(addr uint32) (*Object, error) {
	s, err := h.slotAt(addr)
	if err != nil {
		return nil, err
	}
	switch s.kind {
	case SlotObject:
		return s.obj, nil
	case SlotFree:
		return nil, fmt.Errorf("%w: %d", ErrSegfault, addr)
	default:
		return nil, fmt.Errorf("%w: slot %d is %s, not object", ErrWrongSlotKind, addr, s.kind)
	}
}

// GetExtern returns the extern payload at addr.
func (h *Heap) GetExtern(addr uint32) (*ExternObject, error) {
	s, err := h.slotAt(addr)
	if err != nil {
		return nil, err
	}
	switch s.kind {
	case SlotExtern:
		return s.ext, nil
	case SlotFree:
		return nil, fmt.Errorf("%w: %d", ErrSegfault, addr)
	default:
		return nil, fmt.Errorf("%w: slot %d is %s, not extern", ErrWrongSlotKind, addr, s.kind)
	}
}

// TakeExtern moves the extern payload out of addr and frees the slot.
func (h *Heap) TakeExtern(addr uint32) (*ExternObject, error) {
	e, err := h.GetExtern(addr)
	if err != nil {
		return nil, err
	}
	h.release(int(addr))
	return e, nil
}

// TryTakeExtern is TakeExtern for callers that only care whether an
// extern was there. Non-extern slots are left as they are.
func (h *Heap) TryTakeExtern(addr uint32) (*ExternObject, bool) {
	e, err := h.TakeExtern(addr)
	return e, err == nil
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// SlotView is a read-only description of one slot.
type SlotView struct {
	Addr   uint32
	Kind   SlotKind
	Next   int           // SlotFree only
	Object *Object       // SlotObject only
	Extern *ExternObject // SlotExtern only
}

// Slot returns a view of addr.
func (h *Heap) Slot(addr uint32) (SlotView, error) {
	s, err := h.slotAt(addr)
	if err != nil {
		return SlotView{}, err
	}
	return SlotView{Addr: addr, Kind: s.kind, Next: s.next, Object: s.obj, Extern: s.ext}, nil
}

// Kind returns the slot kind at addr, or SlotFree when out of range.
func (h *Heap) Kind(addr uint32) SlotKind {
	if int(addr) >= len(h.slots) {
		return SlotFree
	}
	return h.slots[addr].kind
}

// Each calls fn for every slot in address order.
func (h *Heap) Each(fn func(SlotView)) {
	for i := range h.slots {
		s := &h.slots[i]
		fn(SlotView{Addr: uint32(i), Kind: s.kind, Next: s.next, Object: s.obj, Extern: s.ext})
	}
}

// FreeHead returns the next slot Alloc would use; Size() means full.
func (h *Heap) FreeHead() int {
	return h.head
}

// FreeList walks the free chain from the head. The walk stops after
// Size() steps so a corrupted chain cannot loop forever.
func (h *Heap) FreeList() []uint32 {
	var out []uint32
	for at, steps := h.head, 0; at < len(h.slots) && steps <= len(h.slots); steps++ {
		out = append(out, uint32(at))
		at = h.slots[at].next
	}
	return out
}

// Live returns the number of occupied slots.
func (h *Heap) Live() int {
	n := 0
	for i := range h.slots {
		if h.slots[i].kind != SlotFree {
			n++
		}
	}
	return n
}
