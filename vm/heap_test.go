package vm

import (
	"errors"
	"slices"
	"testing"
)

// checkFreeList verifies that the free chain visits exactly the free slots,
// each once.
func checkFreeList(t *testing.T, h *Heap) {
	t.Helper()
	chain := h.FreeList()
	seen := make(map[uint32]bool)
	for _, addr := range chain {
		if seen[addr] {
			t.Fatalf("free list visits slot %d twice: %v", addr, chain)
		}
		seen[addr] = true
		if h.Kind(addr) != SlotFree {
			t.Fatalf("free list contains occupied slot %d", addr)
		}
	}
	free := 0
	h.Each(func(s SlotView) {
		if s.Kind == SlotFree {
			free++
			if !seen[s.Addr] {
				t.Fatalf("free slot %d missing from free list %v", s.Addr, chain)
			}
		}
	})
	if free != len(chain) {
		t.Fatalf("free list has %d entries, heap has %d free slots", len(chain), free)
	}
}

func TestHeapAllocInAddressOrder(t *testing.T) {
	h := NewHeap(3)
	for want := uint32(0); want < 3; want++ {
		addr, ok := h.Alloc()
		if !ok {
			t.Fatalf("Alloc %d failed", want)
		}
		if addr != want {
			t.Errorf("Alloc = %d, want %d", addr, want)
		}
	}
	if !h.Full() {
		t.Error("heap should be full")
	}
	if _, ok := h.Alloc(); ok {
		t.Error("Alloc on a full heap should fail")
	}
	checkFreeList(t, h)
}

func TestHeapZeroSlots(t *testing.T) {
	h := NewHeap(0)
	if _, ok := h.Alloc(); ok {
		t.Fatal("Alloc on an empty heap should fail")
	}
	freed, err := h.Sweep(nil)
	if err != nil || freed != 0 {
		t.Fatalf("Sweep(nil) = %d, %v", freed, err)
	}
}

func TestHeapFreeIsLIFO(t *testing.T) {
	h := NewHeap(4)
	for i := 0; i < 4; i++ {
		h.Alloc()
	}
	if err := h.Free(1); err != nil {
		t.Fatal(err)
	}
	if err := h.Free(3); err != nil {
		t.Fatal(err)
	}
	if got := h.FreeList(); !slices.Equal(got, []uint32{3, 1}) {
		t.Errorf("FreeList = %v, want [3 1]", got)
	}
	addr, _ := h.Alloc()
	if addr != 3 {
		t.Errorf("Alloc after Free(3) = %d, want 3", addr)
	}
	checkFreeList(t, h)
}

func TestHeapDoubleFreeIsNoop(t *testing.T) {
	h := NewHeap(3)
	h.Alloc()
	h.Alloc()
	h.Free(0)
	h.Free(0)
	checkFreeList(t, h)

	a, _ := h.Alloc()
	b, ok := h.Alloc()
	if !ok {
		t.Fatal("second Alloc should succeed")
	}
	if a == b {
		t.Fatalf("double free handed out slot %d twice", a)
	}
}

func TestHeapFreeOutOfRange(t *testing.T) {
	h := NewHeap(2)
	if err := h.Free(2); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Free(2) = %v, want ErrInvalidAddress", err)
	}
}

func TestHeapSweep(t *testing.T) {
	h := NewHeap(5)
	for i := 0; i < 4; i++ {
		h.Alloc()
	}
	// slot 4 is already free; marking it false must not count it
	freed, err := h.Sweep([]bool{true, false, true, false, false})
	if err != nil {
		t.Fatal(err)
	}
	if freed != 2 {
		t.Errorf("Sweep freed %d, want 2", freed)
	}
	if h.Live() != 2 {
		t.Errorf("Live = %d, want 2", h.Live())
	}
	checkFreeList(t, h)

	// Sweeping again with the same marks frees nothing new.
	freed, _ = h.Sweep([]bool{true, false, true, false, false})
	if freed != 0 {
		t.Errorf("second Sweep freed %d, want 0", freed)
	}
	checkFreeList(t, h)
}

func TestHeapSweepWrongLength(t *testing.T) {
	h := NewHeap(3)
	if _, err := h.Sweep([]bool{true}); !errors.Is(err, ErrMarkLength) {
		t.Errorf("Sweep = %v, want ErrMarkLength", err)
	}
}

func TestHeapGetFreedSlot(t *testing.T) {
	h := NewHeap(2)
	addr, _ := h.Alloc()
	h.Free(addr)
	if _, err := h.Get(addr); !errors.Is(err, ErrSegfault) {
		t.Errorf("Get freed = %v, want ErrSegfault", err)
	}
}

func TestHeapGetWrongKind(t *testing.T) {
	h := NewHeap(2)
	addr, _ := AllocExtern(h, 42)
	if _, err := h.Get(addr); !errors.Is(err, ErrWrongSlotKind) {
		t.Errorf("Get extern slot = %v, want ErrWrongSlotKind", err)
	}
	obj, _ := h.Alloc()
	if _, err := h.GetExtern(obj); !errors.Is(err, ErrWrongSlotKind) {
		t.Errorf("GetExtern object slot = %v, want ErrWrongSlotKind", err)
	}
}

func TestHeapRandomizedFreeListIntegrity(t *testing.T) {
	h := NewHeap(8)
	// deterministic pseudo-random sequence
	seed := uint32(12345)
	next := func() uint32 {
		seed = seed*1103515245 + 12345
		return seed >> 16
	}
	for i := 0; i < 500; i++ {
		switch next() % 3 {
		case 0, 1:
			h.Alloc()
		case 2:
			h.Free(next() % 8)
		}
		checkFreeList(t, h)
	}
}
