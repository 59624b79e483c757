package natives

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/chainsaw/collector"
	"github.com/chazu/chainsaw/driver"
	"github.com/chazu/chainsaw/vm"
)

func newDriver(heap int, opts ...driver.Option) (*driver.Driver, *bytes.Buffer) {
	rt := vm.NewRuntimeWithHeap(heap)
	var out bytes.Buffer
	Register(rt, Config{Out: &out, Math: true, Buffers: true})
	return driver.New(rt, opts...), &out
}

func TestPrintFormats(t *testing.T) {
	d, out := newDriver(4)
	src := `print(1); print(2.5); print("s"); print(nil); print(true); print(print);
		o = ALLOC; o.name = "hi"; print(o);`
	// 2.5 is not a literal; build it with div
	src = strings.Replace(src, "2.5", "div(5, 2)", 1)
	if err := d.RunSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	want := "1\n2.5\ns\nnil\ntrue\nfn<0>\nObject { name: hi }\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"add(1, 2)", "3"},
		{`add("a", "b")`, "ab"},
		{`add("n", 4)`, "n4"},
		{"sub(1, 3)", "-2"},
		{"mul(4, 5)", "20"},
		{"div(1, 0)", "+Inf"},
		{"mod(7, 3)", "1"},
		{"gt(2, 1)", "true"},
		{"lt(2, 1)", "false"},
		{"lte(2, 2)", "true"},
		{"gte(1, 2)", "false"},
		{"eq(1, 1)", "true"},
		{`eq("a", "a")`, "true"},
		{`eq(1, "1")`, "false"},
		{`len("four")`, "4"},
		{"sqrt(16)", "4"},
		{"floor(div(7, 2))", "3"},
		{"fract(div(7, 2))", "0.5"},
		{"signum(sub(0, 3))", "-1"},
		{"to_degrees(0)", "0"},
		{"is_nan(div(0, 0))", "true"},
		{"is_finite(div(1, 0))", "false"},
		{"is_infinite(div(1, 0))", "true"},
		{"is_normal(0)", "false"},
		{"is_normal(1)", "true"},
	}
	for _, tt := range tests {
		d, out := newDriver(4)
		if err := d.RunSource(context.Background(), "print("+tt.expr+");"); err != nil {
			t.Errorf("%s: %v", tt.expr, err)
			continue
		}
		if got := strings.TrimSpace(out.String()); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.expr, got, tt.want)
		}
	}
}

func TestLenObject(t *testing.T) {
	d, out := newDriver(4)
	if err := d.RunSource(context.Background(), `o = ALLOC; o.a = 1; o.b = 2; print(len(o));`); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "2" {
		t.Errorf("len = %q", out.String())
	}
}

func TestTypeErrors(t *testing.T) {
	for _, src := range []string{`sub("a", 1);`, `add(nil, 1);`, `len(1);`, `sqrt("x");`, `buf_len(1);`} {
		d, _ := newDriver(4)
		err := d.RunSource(context.Background(), src)
		if !errors.Is(err, vm.ErrNative) {
			t.Errorf("%s: err = %v, want ErrNative", src, err)
		}
	}
}

func TestAssertEq(t *testing.T) {
	d, _ := newDriver(4)
	if err := d.RunSource(context.Background(), `assert_eq(add(1, 1), 2, "sum");`); err != nil {
		t.Fatal(err)
	}
	err := d.RunSource(context.Background(), `assert_eq(1, 2, "mismatch");`)
	if !errors.Is(err, ErrAssertion) {
		t.Fatalf("err = %v, want ErrAssertion", err)
	}
	if !strings.Contains(err.Error(), "mismatch") {
		t.Errorf("message should name the assertion: %v", err)
	}
}

func TestAllocNativeRequestsCollection(t *testing.T) {
	d, out := newDriver(1, driver.WithCollector(collector.Reachable{}))
	src := `x = alloc(); x = nil; x = alloc(); print(x);`
	if err := d.RunSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "Object {}" {
		t.Errorf("output = %q", out.String())
	}
	if d.Runtime().Metrics.TotalCycles != 1 {
		t.Errorf("cycles = %d, want 1", d.Runtime().Metrics.TotalCycles)
	}
}

func TestBuffers(t *testing.T) {
	d, out := newDriver(2)
	src := `b = buf_new(); buf_push(b, "x="); buf_push(b, 42);
		print(buf_len(b)); s = buf_string(b); print(s);`
	if err := d.RunSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if out.String() != "4\nx=42\n" {
		t.Errorf("output = %q", out.String())
	}
	if d.Runtime().Heap.Live() != 0 {
		t.Error("buf_string should free the buffer slot")
	}

	err := d.RunSource(context.Background(), `buf_len(b);`)
	if !errors.Is(err, vm.ErrSegfault) {
		t.Errorf("using a taken buffer: err = %v, want ErrSegfault", err)
	}
}

func TestBufferWrongExtern(t *testing.T) {
	rt := vm.NewRuntimeWithHeap(2)
	RegisterBuffers(rt)
	addr, _ := vm.AllocExtern(rt.Heap, 7)
	rt.SetGlobal("e", vm.FromExtern(addr))
	err := driver.New(rt).RunSource(context.Background(), `buf_string(e);`)
	if !errors.Is(err, vm.ErrExternType) {
		t.Errorf("err = %v, want ErrExternType", err)
	}
	if rt.Heap.Kind(addr) != vm.SlotExtern {
		t.Error("a mismatched take must not free the slot")
	}
}

func TestSignum(t *testing.T) {
	if signum(0) != 1 || signum(math.Copysign(0, -1)) != -1 || !math.IsNaN(signum(math.NaN())) {
		t.Error("signum edge cases")
	}
}
