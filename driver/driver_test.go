package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/chainsaw/collector"
	"github.com/chazu/chainsaw/compiler"
	"github.com/chazu/chainsaw/vm"
	"github.com/chazu/chainsaw/vm/dist"
)

// scripted answers each collection with the next mark vector.
type scripted struct {
	answers [][]bool
	seen    []*dist.HeapSnapshot
}

func (s *scripted) Collect(_ context.Context, snap *dist.HeapSnapshot) ([]bool, error) {
	s.seen = append(s.seen, snap)
	if len(s.answers) == 0 {
		return nil, errors.New("no more answers")
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func TestRunHeapExhaustionScenario(t *testing.T) {
	rt := vm.NewRuntimeWithHeap(2)
	c := &scripted{answers: [][]bool{
		{true, true},  // keep a and b: nothing freed, ALLOC fails again
		{false, true}, // drop a
	}}
	d := New(rt, WithCollector(c))

	if err := d.RunSource(context.Background(), `a = ALLOC; b = ALLOC; c = ALLOC;`); err != nil {
		t.Fatal(err)
	}
	if len(c.seen) != 2 {
		t.Fatalf("collector consulted %d times, want 2", len(c.seen))
	}
	if c.seen[0].IP != c.seen[1].IP {
		t.Errorf("both cycles should suspend at the same ALLOC: %d vs %d", c.seen[0].IP, c.seen[1].IP)
	}
	if c.seen[0].CycleID == c.seen[1].CycleID {
		t.Error("cycle ids should be unique")
	}
	cv, _ := rt.Global("c")
	if addr, ok := cv.ObjectAddr(); !ok || addr != 0 {
		t.Errorf("c = %v, want Object(0)", cv)
	}

	m := rt.Metrics
	if m.TotalCycles != 2 || m.TotalCollected != 1 {
		t.Errorf("metrics = %d cycles, %d collected", m.TotalCycles, m.TotalCollected)
	}
	if last := m.LastStats(); last.Freed != 1 || last.Kept != 1 || last.Cycle != 2 {
		t.Errorf("last stats = %+v", last)
	}
}

func TestRunOutOfMemory(t *testing.T) {
	rt := vm.NewRuntimeWithHeap(1)
	d := New(rt) // keeps everything
	err := d.RunSource(context.Background(), `a = ALLOC; b = ALLOC;`)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
	if rt.Metrics.TotalCycles != DefaultMaxFruitless+1 {
		t.Errorf("cycles = %d, want %d", rt.Metrics.TotalCycles, DefaultMaxFruitless+1)
	}
	if rt.Stack().Len() != 0 || rt.IP() != 0 {
		t.Error("runtime should be reset after a failed run")
	}
}

func TestMaxFruitlessZero(t *testing.T) {
	rt := vm.NewRuntimeWithHeap(1)
	d := New(rt, WithMaxFruitless(0))
	if err := d.RunSource(context.Background(), `a = ALLOC; b = ALLOC;`); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("err = %v", err)
	}
	if rt.Metrics.TotalCycles != 1 {
		t.Errorf("cycles = %d, want 1", rt.Metrics.TotalCycles)
	}
}

func TestRunReachableCollector(t *testing.T) {
	rt := vm.NewRuntimeWithHeap(2)
	d := New(rt, WithCollector(collector.Reachable{}))
	src := `x = ALLOC; x = ALLOC; x = ALLOC; x = ALLOC;`
	if err := d.RunSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if rt.Metrics.TotalCycles != 2 || rt.Metrics.TotalCollected != 2 {
		t.Errorf("metrics = %d cycles, %d collected, want 2 and 2", rt.Metrics.TotalCycles, rt.Metrics.TotalCollected)
	}
}

func TestCollectorError(t *testing.T) {
	rt := vm.NewRuntimeWithHeap(0)
	d := New(rt, WithCollector(&scripted{}))
	if err := d.RunSource(context.Background(), `ALLOC;`); err == nil {
		t.Fatal("collector failure should abort the run")
	}
}

func TestBadMarkLength(t *testing.T) {
	rt := vm.NewRuntimeWithHeap(1)
	d := New(rt, WithCollector(&scripted{answers: [][]bool{{true, true, true}}}))
	err := d.RunSource(context.Background(), `a = ALLOC; b = ALLOC;`)
	if !errors.Is(err, vm.ErrMarkLength) {
		t.Fatalf("err = %v, want ErrMarkLength", err)
	}
}

func TestRunCanceled(t *testing.T) {
	rt := vm.NewRuntime()
	d := New(rt)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.RunSource(ctx, `WHILE true DO END`); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCompileErrorPassesThrough(t *testing.T) {
	d := New(vm.NewRuntime())
	err := d.RunSource(context.Background(), `x = ;`)
	var se *compiler.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *compiler.SyntaxError", err)
	}
}

func TestGlobalsPersistAcrossRuns(t *testing.T) {
	rt := vm.NewRuntime()
	d := New(rt)
	ctx := context.Background()
	if err := d.RunSource(ctx, `o = ALLOC; o.n = 1;`); err != nil {
		t.Fatal(err)
	}
	if err := d.RunSource(ctx, `m = o.n;`); err != nil {
		t.Fatal(err)
	}
	m, _ := rt.Global("m")
	if n, _ := m.Number(); n != 1 {
		t.Errorf("m = %v, want 1", m)
	}
}

func TestCollectHook(t *testing.T) {
	var got []vm.CollectionStats
	rt := vm.NewRuntimeWithHeap(1)
	d := New(rt,
		WithCollector(collector.Func(func(_ context.Context, snap *dist.HeapSnapshot) ([]bool, error) {
			return make([]bool, snap.Size()), nil
		})),
		WithCollectHook(func(s vm.CollectionStats) { got = append(got, s) }),
	)
	if err := d.RunSource(context.Background(), `a = ALLOC; a = ALLOC;`); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Freed != 1 {
		t.Errorf("hook saw %+v", got)
	}
}
