// Package driver runs compiled modules to completion. It owns the step
// loop and the suspension protocol: when the VM asks for a collection the
// driver snapshots the runtime, hands the snapshot to a Collector, sweeps
// the heap with the returned marks and resumes at the same instruction.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/chainsaw/collector"
	"github.com/chazu/chainsaw/compiler"
	"github.com/chazu/chainsaw/vm"
	"github.com/chazu/chainsaw/vm/dist"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("chainsaw.driver")

// ErrOutOfMemory is returned when collections at one instruction keep
// freeing nothing.
var ErrOutOfMemory = errors.New("out of memory")

// DefaultMaxFruitless is the number of zero-yield collections tolerated
// at a single instruction before the run fails.
const DefaultMaxFruitless = 1

// ctxCheckInterval is how many steps run between context checks.
const ctxCheckInterval = 1024

// Driver executes modules against one Runtime. It is not safe for
// concurrent use.
type Driver struct {
	rt           *vm.Runtime
	collector    collector.Collector
	maxFruitless int
	onCollect    func(vm.CollectionStats)
}

// Option configures a Driver.
type Option func(*Driver)

// WithCollector sets the collector consulted on heap exhaustion. The
// default keeps every slot.
func WithCollector(c collector.Collector) Option {
	return func(d *Driver) { d.collector = c }
}

// WithMaxFruitless sets how many collections in a row may free nothing at
// the same instruction before ErrOutOfMemory. Negative values are treated
// as zero.
func WithMaxFruitless(n int) Option {
	return func(d *Driver) { d.maxFruitless = max(n, 0) }
}

// WithCollectHook registers fn to run after every collection.
func WithCollectHook(fn func(vm.CollectionStats)) Option {
	return func(d *Driver) { d.onCollect = fn }
}

// New creates a driver for rt.
func New(rt *vm.Runtime, opts ...Option) *Driver {
	d := &Driver{
		rt:           rt,
		collector:    collector.KeepAll{},
		maxFruitless: DefaultMaxFruitless,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Runtime returns the runtime the driver executes against.
func (d *Driver) Runtime() *vm.Runtime { return d.rt }

// Compile compiles src against the driver's runtime.
func (d *Driver) Compile(src string) (*vm.Module, error) {
	return compiler.CompileSource(src, d.rt)
}

// RunSource compiles and runs src.
func (d *Driver) RunSource(ctx context.Context, src string) error {
	m, err := d.Compile(src)
	if err != nil {
		return err
	}
	return d.Run(ctx, m)
}

// Run executes m until HALT, an error, or cancellation of ctx. The stack
// and instruction pointer are reset before and after; globals and the heap
// persist.
func (d *Driver) Run(ctx context.Context, m *vm.Module) error {
	d.rt.Reset()
	defer d.rt.Reset()

	machine := d.rt.Spawn(m)
	fruitless := 0
	lastIP := -1

	for steps := 0; ; steps++ {
		if steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		cf, err := machine.Step()
		if err != nil {
			return err
		}

		switch cf {
		case vm.Halt:
			return nil

		case vm.RequestGC:
			ip := machine.IP()
			stats, err := d.Collect(ctx)
			if err != nil {
				return err
			}
			if stats.Freed > 0 || ip != lastIP {
				fruitless = 0
			}
			if stats.Freed == 0 {
				fruitless++
				if fruitless > d.maxFruitless {
					return fmt.Errorf("%w at %04d: %d collections freed nothing", ErrOutOfMemory, ip, fruitless)
				}
			}
			lastIP = ip
		}
	}
}

// Collect runs one collection cycle: snapshot, ask the collector, sweep.
// It can be called between runs as well as on suspension.
func (d *Driver) Collect(ctx context.Context) (vm.CollectionStats, error) {
	start := time.Now()
	snap := dist.Snapshot(d.rt, dist.NewCycleID())
	log.Debugf("cycle %s: heap exhausted at %04d, %d live slots", snap.CycleID, snap.IP, d.rt.Heap.Live())

	marks, err := d.collector.Collect(ctx, snap)
	if err != nil {
		return vm.CollectionStats{}, fmt.Errorf("collect: %w", err)
	}
	freed, err := d.rt.Heap.Sweep(marks)
	if err != nil {
		return vm.CollectionStats{}, fmt.Errorf("collect: %w", err)
	}

	kept := 0
	for _, m := range marks {
		if m {
			kept++
		}
	}
	stats := d.rt.Metrics.Record(vm.CollectionStats{
		IP:        snap.IP,
		Kept:      kept,
		Freed:     freed,
		Live:      d.rt.Heap.Live(),
		Duration:  time.Since(start),
		Timestamp: start,
	})
	log.Infof("cycle %d (%s): freed %d, kept %d, live %d in %s",
		stats.Cycle, snap.CycleID, stats.Freed, stats.Kept, stats.Live, stats.Duration)
	if d.onCollect != nil {
		d.onCollect(stats)
	}
	return stats, nil
}
