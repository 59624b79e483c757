// Package collector provides the "human" side of garbage collection: given
// a snapshot of a suspended runtime, a Collector decides which heap slots
// survive.
package collector

import (
	"context"
	"fmt"

	"github.com/chazu/chainsaw/vm/dist"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("chainsaw.collector")

// Collector marks heap slots to keep. The returned vector must have one
// entry per slot in snap; false frees the slot.
type Collector interface {
	Collect(ctx context.Context, snap *dist.HeapSnapshot) ([]bool, error)
}

// Func adapts a function to the Collector interface.
type Func func(ctx context.Context, snap *dist.HeapSnapshot) ([]bool, error)

// Collect calls f.
func (f Func) Collect(ctx context.Context, snap *dist.HeapSnapshot) ([]bool, error) {
	return f(ctx, snap)
}

// KeepAll keeps every slot. A run that exhausts the heap under KeepAll
// ends in an out-of-memory error.
type KeepAll struct{}

// Collect marks every slot.
func (KeepAll) Collect(ctx context.Context, snap *dist.HeapSnapshot) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	marks := make([]bool, snap.Size())
	for i := range marks {
		marks[i] = true
	}
	return marks, nil
}

// Reachable keeps exactly the slots reachable from globals and the stack.
// It stands in for a careful human.
type Reachable struct{}

// Collect marks reachable slots.
func (Reachable) Collect(ctx context.Context, snap *dist.HeapSnapshot) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snap.Reachable(), nil
}

// Mode names a collector selectable from configuration.
type Mode string

const (
	ModePrompt    Mode = "prompt"
	ModeKeepAll   Mode = "keep-all"
	ModeReachable Mode = "reachable"
	ModeRemote    Mode = "remote"
)

// Modes lists the accepted Mode values.
func Modes() []Mode {
	return []Mode{ModePrompt, ModeKeepAll, ModeReachable, ModeRemote}
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("collector: unknown mode %q (want one of %v)", s, Modes())
}
