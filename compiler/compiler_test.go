package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/chainsaw/vm"
)

// testRuntime returns a runtime with print, add and lt natives. print
// appends its argument to the returned slice.
func testRuntime(heap int) (*vm.Runtime, *[]vm.Value) {
	rt := vm.NewRuntimeWithHeap(heap)
	var printed []vm.Value
	rt.RegisterFunction("print", 1, func(ctx *vm.CallContext) (vm.Value, error) {
		v, err := ctx.Arg()
		if err != nil {
			return vm.Nil, err
		}
		printed = append(printed, v)
		return vm.Nil, nil
	})
	binary := func(name string, fn func(a, b float64) vm.Value) {
		rt.RegisterFunction(name, 2, func(ctx *vm.CallContext) (vm.Value, error) {
			args, err := ctx.Args(2)
			if err != nil {
				return vm.Nil, err
			}
			a, ok1 := args[0].Number()
			b, ok2 := args[1].Number()
			if !ok1 || !ok2 {
				return vm.Nil, vm.TypeError(name, "numbers", args[0])
			}
			return fn(a, b), nil
		})
	}
	binary("add", func(a, b float64) vm.Value { return vm.FromNumber(a + b) })
	binary("lt", func(a, b float64) vm.Value { return vm.FromBool(a < b) })
	return rt, &printed
}

// execute compiles and runs src to completion.
func execute(t *testing.T, rt *vm.Runtime, src string) {
	t.Helper()
	m, err := CompileSource(src, rt)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	rt.Reset()
	cf, err := rt.Spawn(m).RunUntilSuspend()
	if err != nil {
		t.Fatalf("run %q: %v", src, err)
	}
	if cf != vm.Halt {
		t.Fatalf("run %q stopped with %s", src, cf)
	}
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"globals", `x = 1; y = 2; print(x); print(y);`, []string{"1", "2"}},
		{"if true", `IF true THEN x = 10; END print(x);`, []string{"10"}},
		{"if else", `IF false THEN x = 10; ELSE x = 20; END print(x);`, []string{"20"}},
		{"while", `i = 0; WHILE lt(i, 3) DO i = add(i, 1); END print(i);`, []string{"3"}},
		{"fields", `o = ALLOC; o.name = "hi"; print(o.name);`, []string{"hi"}},
		{"elseif", `x = 2;
			IF lt(x, 1) THEN print("a");
			ELSEIF lt(x, 3) THEN print("b");
			ELSE print("c");
			END`, []string{"b"}},
		{"elseif falls through", `IF false THEN print(1); ELSEIF nil THEN print(2); END print(3);`, []string{"3"}},
		{"nested", `i = 0; n = 0;
			WHILE lt(i, 4) DO
				IF lt(i, 2) THEN n = add(n, 10); ELSE n = add(n, 1); END
				i = add(i, 1);
			END
			print(n);`, []string{"22"}},
		{"trailing comma", `print(add(1, 2,),);`, []string{"3"}},
		{"empty statements", `;;; print(nil);`, []string{"nil"}},
		{"zero is truthy", `IF 0 THEN print("yes"); END`, []string{"yes"}},
		{"empty string is truthy", `IF "" THEN print("yes"); END`, []string{"yes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, printed := testRuntime(vm.DefaultHeapSize)
			execute(t, rt, tt.src)
			if len(*printed) != len(tt.want) {
				t.Fatalf("printed %d values, want %d", len(*printed), len(tt.want))
			}
			for i, v := range *printed {
				if got := rt.FormatValue(v); got != tt.want[i] {
					t.Errorf("print %d = %q, want %q", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestStringLiteralIsInterned(t *testing.T) {
	rt, printed := testRuntime(vm.DefaultHeapSize)
	execute(t, rt, `print("hi"); print("hi");`)
	a, _ := (*printed)[0].StringID()
	b, _ := (*printed)[1].StringID()
	if a != b {
		t.Error("equal literals should share an interner id")
	}
	if rt.Strings.Get(a) != "hi" {
		t.Errorf("interned %q, want quotes stripped", rt.Strings.Get(a))
	}
}

func TestGlobalIndexStability(t *testing.T) {
	rt, _ := testRuntime(vm.DefaultHeapSize)
	execute(t, rt, `x = 5;`)
	first := rt.GlobalIndex("x")
	execute(t, rt, `y = x; x = 6;`)
	if rt.GlobalIndex("x") != first {
		t.Error("recompiling moved global x")
	}
	v, _ := rt.Global("y")
	if n, _ := v.Number(); n != 5 {
		t.Errorf("y = %v, want 5 (globals persist between runs)", v)
	}
}

func TestEmission(t *testing.T) {
	rt, _ := testRuntime(vm.DefaultHeapSize)
	m, err := CompileSource(`o = ALLOC; o.f = 1; o.f; print(2);`, rt)
	if err != nil {
		t.Fatal(err)
	}
	want := []vm.Opcode{
		vm.OpAlloc, vm.OpStore, vm.OpPop,
		vm.OpLoad, vm.OpLoadConst, vm.OpIndexSet, vm.OpPop,
		vm.OpLoad, vm.OpIndexGet, vm.OpPop,
		vm.OpLoad, vm.OpLoadConst, vm.OpCall, vm.OpPop,
		vm.OpHalt,
	}
	if len(m.Code) != len(want) {
		t.Fatalf("emitted %d instructions, want %d:\n%s", len(m.Code), len(want), vm.Disassemble(m))
	}
	for i, op := range want {
		if m.Code[i].Op != op {
			t.Errorf("instruction %d = %s, want %s", i, m.Code[i].Op, op)
		}
	}
	if m.Code[12].Args != 1 {
		t.Errorf("CALL args = %d, want 1", m.Code[12].Args)
	}
}

func TestInvokeEmission(t *testing.T) {
	rt, _ := testRuntime(vm.DefaultHeapSize)
	m, err := CompileSource(`o.greet(1, 2).x;`, rt)
	if err != nil {
		t.Fatal(err)
	}
	in := m.Code[3]
	if in.Op != vm.OpInvoke || in.Args != 2 || in.Index != rt.FieldID("greet") {
		t.Errorf("instruction 3 = %s, want INVOKE argc=2 sym=greet", in)
	}
	if m.Code[4].Op != vm.OpIndexGet {
		t.Errorf("chain should continue after INVOKE, got %s", m.Code[4].Op)
	}
}

func TestJumpLocality(t *testing.T) {
	sources := []string{
		`IF true THEN END`,
		`IF a THEN b; ELSEIF c THEN d; ELSEIF e THEN ELSE f; END`,
		`WHILE a DO IF b THEN WHILE c DO END END END`,
		`WHILE false DO END x;`,
	}
	for _, src := range sources {
		rt, _ := testRuntime(vm.DefaultHeapSize)
		m, err := CompileSource(src, rt)
		if err != nil {
			t.Fatalf("compile %q: %v", src, err)
		}
		for pc, in := range m.Code {
			if !in.Op.IsJump() {
				continue
			}
			target := pc + 1 + int(in.Rel)
			if target < 0 || target >= len(m.Code) {
				t.Errorf("%q: jump at %d targets %d, outside [0,%d)", src, pc, target, len(m.Code))
			}
		}
	}
}

func TestWhileJumpLayout(t *testing.T) {
	rt, _ := testRuntime(vm.DefaultHeapSize)
	m, err := CompileSource(`WHILE c DO x; END`, rt)
	if err != nil {
		t.Fatal(err)
	}
	// 0 LOAD c, 1 JMP_IF_FALSE, 2 LOAD x, 3 POP, 4 JMP, 5 HALT
	if got := m.JumpTarget(1); got != 5 {
		t.Errorf("exit target = %d, want 5", got)
	}
	if got := m.JumpTarget(4); got != 0 {
		t.Errorf("loop target = %d, want 0", got)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		src     string
		err     error
		want    TokenType
		hasWant bool
	}{
		{`x = 1`, ErrUnexpectedEOF, TokenSemicolon, true},
		{`x = 1 y`, ErrUnexpectedToken, TokenSemicolon, true},
		{`IF true x; END`, ErrUnexpectedToken, TokenThen, true},
		{`IF true THEN x;`, ErrUnexpectedEOF, TokenEnd, true},
		{`WHILE true DO`, ErrUnexpectedEOF, TokenEnd, true},
		{`WHILE true x; END`, ErrUnexpectedToken, TokenDo, true},
		{`o.;`, ErrUnexpectedToken, TokenIdentifier, true},
		{`f(1;`, ErrUnexpectedToken, TokenRParen, true},
		{`END`, ErrUnexpectedToken, 0, false},
		{`ELSE x;`, ErrUnexpectedToken, 0, false},
		{`IF a THEN ELSE ELSE END`, ErrUnexpectedToken, 0, false},
		{`IF a THEN ELSE ELSEIF b THEN END`, ErrUnexpectedToken, 0, false},
		{`x = ;`, ErrUnexpectedToken, 0, false},
		{`- 1;`, ErrUnsupported, 0, false},
		{`x = $;`, ErrUnexpectedCharacter, 0, false},
	}

	for _, tt := range tests {
		rt, _ := testRuntime(vm.DefaultHeapSize)
		_, err := CompileSource(tt.src, rt)
		if !errors.Is(err, tt.err) {
			t.Errorf("%q: err = %v, want %v", tt.src, err, tt.err)
			continue
		}
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("%q: err is %T, want *SyntaxError", tt.src, err)
			continue
		}
		if se.HasWant != tt.hasWant || (tt.hasWant && se.Want != tt.want) {
			t.Errorf("%q: want = %s (%v), expected %s (%v)", tt.src, se.Want, se.HasWant, tt.want, tt.hasWant)
		}
	}
}

func TestTooManyArguments(t *testing.T) {
	src := "f("
	for i := 0; i < 256; i++ {
		src += "1,"
	}
	src += ");"
	rt, _ := testRuntime(vm.DefaultHeapSize)
	if _, err := CompileSource(src, rt); !errors.Is(err, ErrTooManyArguments) {
		t.Errorf("err = %v, want ErrTooManyArguments", err)
	}
}

func TestHeapExhaustionScenario(t *testing.T) {
	rt, _ := testRuntime(2)
	m, err := CompileSource(`a = ALLOC; b = ALLOC; c = ALLOC;`, rt)
	if err != nil {
		t.Fatal(err)
	}
	v := rt.Spawn(m)

	cf, err := v.RunUntilSuspend()
	if err != nil || cf != vm.RequestGC {
		t.Fatalf("first suspend = %s, %v", cf, err)
	}
	allocIP := v.IP()

	// Keeping both slots frees nothing, so the ALLOC fails again.
	if _, err := rt.Heap.Sweep([]bool{true, true}); err != nil {
		t.Fatal(err)
	}
	cf, _ = v.Step()
	if cf != vm.RequestGC || v.IP() != allocIP {
		t.Fatalf("after keep-all sweep: %s at %d", cf, v.IP())
	}

	aVal, _ := rt.Global("a")
	aAddr, _ := aVal.ObjectAddr()
	marks := []bool{true, true}
	marks[aAddr] = false
	rt.Heap.Sweep(marks)

	cf, err = v.RunUntilSuspend()
	if err != nil || cf != vm.Halt {
		t.Fatalf("after freeing a: %s, %v", cf, err)
	}
	cVal, _ := rt.Global("c")
	if cAddr, ok := cVal.ObjectAddr(); !ok || cAddr != aAddr {
		t.Errorf("c = %v, want Object(%d)", cVal, aAddr)
	}
}
