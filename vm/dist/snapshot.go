// Package dist implements the wire format of the collection protocol. A
// suspended runtime is described by a HeapSnapshot; a collector answers
// with a mark vector. Both travel as CBOR, over HTTP through connect or in
// files, and snapshots can also be dumped as JSON for external tools.
package dist

import (
	"fmt"
	"time"

	"github.com/chazu/chainsaw/vm"
	"github.com/google/uuid"
)

// ValueSnapshot describes one value as a collector sees it.
type ValueSnapshot struct {
	Kind string  `cbor:"1,keyasint"`           // vm.Kind name
	Bits uint64  `cbor:"2,keyasint"`           // raw payload
	Text string  `cbor:"3,keyasint,omitempty"` // formatted for display
	Ref  *uint32 `cbor:"4,keyasint,omitempty"` // heap slot for objects and externs
}

// FieldSnapshot is one field of an object slot.
type FieldSnapshot struct {
	ID    uint32        `cbor:"1,keyasint"`
	Name  string        `cbor:"2,keyasint"`
	Value ValueSnapshot `cbor:"3,keyasint"`
}

// SlotSnapshot describes one heap slot.
type SlotSnapshot struct {
	Addr       uint32          `cbor:"1,keyasint"`
	Kind       string          `cbor:"2,keyasint"`           // "free", "object" or "extern"
	Next       int             `cbor:"3,keyasint,omitempty"` // free slots only
	Fields     []FieldSnapshot `cbor:"4,keyasint,omitempty"` // object slots only
	ExternType string          `cbor:"5,keyasint,omitempty"` // extern slots only
}

// Free reports whether the slot is on the free list.
func (s SlotSnapshot) Free() bool {
	return s.Kind == vm.SlotFree.String()
}

// GlobalSnapshot is one named global.
type GlobalSnapshot struct {
	Index uint32        `cbor:"1,keyasint"`
	Name  string        `cbor:"2,keyasint"`
	Value ValueSnapshot `cbor:"3,keyasint"`
}

// HeapSnapshot is everything a collector needs to decide which slots to
// keep: every slot with its contents, plus the roots.
type HeapSnapshot struct {
	CycleID  string           `cbor:"1,keyasint"`
	IP       int              `cbor:"2,keyasint"`
	FreeHead int              `cbor:"3,keyasint"`
	Slots    []SlotSnapshot   `cbor:"4,keyasint"`
	Globals  []GlobalSnapshot `cbor:"5,keyasint,omitempty"`
	Stack    []ValueSnapshot  `cbor:"6,keyasint,omitempty"`
	Taken    int64            `cbor:"7,keyasint"` // unix nanoseconds
}

// Size returns the number of heap slots, which is the required mark vector
// length.
func (s *HeapSnapshot) Size() int {
	return len(s.Slots)
}

// Roots returns the heap slots referenced directly by globals or the stack.
func (s *HeapSnapshot) Roots() []uint32 {
	seen := make(map[uint32]bool)
	var roots []uint32
	add := func(v ValueSnapshot) {
		if v.Ref != nil && !seen[*v.Ref] {
			seen[*v.Ref] = true
			roots = append(roots, *v.Ref)
		}
	}
	for _, g := range s.Globals {
		add(g.Value)
	}
	for _, v := range s.Stack {
		add(v)
	}
	return roots
}

// Reachable returns a mark vector keeping every occupied slot reachable
// from the roots through object fields.
func (s *HeapSnapshot) Reachable() []bool {
	marks := make([]bool, len(s.Slots))
	work := s.Roots()
	for len(work) > 0 {
		addr := work[len(work)-1]
		work = work[:len(work)-1]
		if int(addr) >= len(s.Slots) || marks[addr] || s.Slots[addr].Free() {
			continue
		}
		marks[addr] = true
		for _, f := range s.Slots[addr].Fields {
			if f.Value.Ref != nil {
				work = append(work, *f.Value.Ref)
			}
		}
	}
	return marks
}

// ---------------------------------------------------------------------------
// Building snapshots
// ---------------------------------------------------------------------------

// NewCycleID returns a fresh collection cycle id.
func NewCycleID() string {
	return uuid.NewString()
}

// Snapshot captures rt for the collection identified by cycleID. The
// runtime must not be stepped while the snapshot is built.
func Snapshot(rt *vm.Runtime, cycleID string) *HeapSnapshot {
	snap := &HeapSnapshot{
		CycleID:  cycleID,
		IP:       rt.IP(),
		FreeHead: rt.Heap.FreeHead(),
		Slots:    make([]SlotSnapshot, 0, rt.Heap.Size()),
		Taken:    time.Now().UnixNano(),
	}

	rt.Heap.Each(func(s vm.SlotView) {
		ss := SlotSnapshot{Addr: s.Addr, Kind: s.Kind.String()}
		switch s.Kind {
		case vm.SlotFree:
			ss.Next = s.Next
		case vm.SlotObject:
			for _, fid := range s.Object.FieldIDs() {
				ss.Fields = append(ss.Fields, FieldSnapshot{
					ID:    fid,
					Name:  rt.FieldName(fid),
					Value: snapValue(rt, s.Object.Get(fid)),
				})
			}
		case vm.SlotExtern:
			ss.ExternType = s.Extern.TypeName()
		}
		snap.Slots = append(snap.Slots, ss)
	})

	snap.Globals = Globals(rt)
	for _, v := range rt.Stack().Values() {
		snap.Stack = append(snap.Stack, snapValue(rt, v))
	}
	return snap
}

// Globals captures every global binding of rt in index order.
func Globals(rt *vm.Runtime) []GlobalSnapshot {
	var out []GlobalSnapshot
	for _, g := range rt.Globals() {
		out = append(out, GlobalSnapshot{
			Index: g.Index,
			Name:  g.Name,
			Value: snapValue(rt, g.Value),
		})
	}
	return out
}

func snapValue(rt *vm.Runtime, v vm.Value) ValueSnapshot {
	vs := ValueSnapshot{Kind: v.Kind().String(), Bits: v.Bits()}
	if addr, ok := v.HeapRef(); ok {
		vs.Ref = &addr
		vs.Text = v.String()
	} else {
		vs.Text = rt.FormatValue(v)
	}
	return vs
}

// ---------------------------------------------------------------------------
// Protocol messages
// ---------------------------------------------------------------------------

// CollectRequest asks a collector to mark a snapshot.
type CollectRequest struct {
	Snapshot *HeapSnapshot `cbor:"1,keyasint"`
}

// CollectResponse carries the collector's decision. Keep[i] false frees
// slot i.
type CollectResponse struct {
	CycleID string `cbor:"1,keyasint"`
	Keep    []bool `cbor:"2,keyasint"`
}

// Marks validates the response against the snapshot it answers and
// returns the mark vector.
func (r *CollectResponse) Marks(snap *HeapSnapshot) ([]bool, error) {
	if r.CycleID != snap.CycleID {
		return nil, fmt.Errorf("dist: response for cycle %s, expected %s", r.CycleID, snap.CycleID)
	}
	if len(r.Keep) != snap.Size() {
		return nil, fmt.Errorf("dist: %w: got %d, want %d", vm.ErrMarkLength, len(r.Keep), snap.Size())
	}
	return r.Keep, nil
}
