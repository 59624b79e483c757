package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies an instruction.
type Opcode byte

// Variable Operations
const (
	OpLoad     Opcode = 0x01 // push global (32-bit index)
	OpStore    Opcode = 0x02 // pop into global (32-bit index)
	OpIndexGet Opcode = 0x03 // pop object, push field (32-bit field id)
	OpIndexSet Opcode = 0x04 // pop value and object, write field (32-bit field id)
)

// Push Constants
const (
	OpLoadNil    Opcode = 0x10 // push nil
	OpLoadTrue   Opcode = 0x11 // push true
	OpLoadFalse  Opcode = 0x12 // push false
	OpLoadConst  Opcode = 0x13 // push numeric constant (32-bit index)
	OpLoadString Opcode = 0x14 // push interned string (32-bit id)
)

// Objects and Calls
const (
	OpAlloc  Opcode = 0x20 // allocate an empty object
	OpCall   Opcode = 0x21 // call native (8-bit argc)
	OpInvoke Opcode = 0x22 // method dispatch, reserved (8-bit argc, 32-bit symbol)
)

// Control Flow
const (
	OpJmp        Opcode = 0x30 // relative jump (signed 32-bit)
	OpJmpIfFalse Opcode = 0x31 // pop, relative jump if falsy (signed 32-bit)
)

// Stack and Termination
const (
	OpPop  Opcode = 0x40 // discard top of stack, silent on underflow
	OpHalt Opcode = 0x41 // stop execution
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string // human-readable name
	StackEffect int    // net effect on stack (-1 = variable for calls)
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpLoad:     {"LOAD", 1},
	OpStore:    {"STORE", -1},
	OpIndexGet: {"INDEX_GET", 0},
	OpIndexSet: {"INDEX_SET", -2},

	OpLoadNil:    {"LOAD_NIL", 1},
	OpLoadTrue:   {"LOAD_TRUE", 1},
	OpLoadFalse:  {"LOAD_FALSE", 1},
	OpLoadConst:  {"LOAD_CONST", 1},
	OpLoadString: {"LOAD_STRING", 1},

	OpAlloc:  {"ALLOC", 1},
	OpCall:   {"CALL", -1}, // pops function + args, pushes result
	OpInvoke: {"INVOKE", -1},

	OpJmp:        {"JMP", 0},
	OpJmpIfFalse: {"JMP_IF_FALSE", -1},

	OpPop:  {"POP", -1},
	OpHalt: {"HALT", 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether op carries a relative displacement.
func (op Opcode) IsJump() bool {
	return op == OpJmp || op == OpJmpIfFalse
}

// ---------------------------------------------------------------------------
// Instructions and modules
// ---------------------------------------------------------------------------

// Instruction is one decoded instruction. Which operand fields are
// meaningful depends on Op:
//
//	LOAD, STORE                 Index = global index
//	INDEX_GET, INDEX_SET        Index = field id
//	LOAD_CONST                  Index = constant index
//	LOAD_STRING                 Index = interner id
//	CALL                        Args
//	INVOKE                      Args, Index = symbol (field id)
//	JMP, JMP_IF_FALSE           Rel
type Instruction struct {
	Op    Opcode
	Args  uint8
	Index uint32
	Rel   int32
}

func (in Instruction) String() string {
	switch in.Op {
	case OpLoad, OpStore, OpIndexGet, OpIndexSet, OpLoadConst, OpLoadString:
		return fmt.Sprintf("%s %d", in.Op, in.Index)
	case OpCall:
		return fmt.Sprintf("%s argc=%d", in.Op, in.Args)
	case OpInvoke:
		return fmt.Sprintf("%s argc=%d sym=%d", in.Op, in.Args, in.Index)
	case OpJmp, OpJmpIfFalse:
		return fmt.Sprintf("%s %+d", in.Op, in.Rel)
	default:
		return in.Op.String()
	}
}

// Module is the compiled form of one source text. It is not modified
// after the builder produces it.
type Module struct {
	Code      []Instruction
	Constants []float64
}

// JumpTarget returns the absolute index a jump at pc lands on.
func (m *Module) JumpTarget(pc int) int {
	return jumpTarget(pc+1, m.Code[pc].Rel)
}

// jumpTarget applies rel to an already-advanced ip, saturating at zero.
func jumpTarget(ip int, rel int32) int {
	n := int64(ip) + int64(rel)
	if n < 0 {
		return 0
	}
	return int(n)
}

// ---------------------------------------------------------------------------
// ModuleBuilder: Helper for constructing modules
// ---------------------------------------------------------------------------

// ModuleBuilder accumulates instructions and constants.
type ModuleBuilder struct {
	code      []Instruction
	constants []float64
	constMap  map[float64]uint32
}

// NewModuleBuilder creates an empty builder.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{
		code:     make([]Instruction, 0, 64),
		constMap: make(map[float64]uint32),
	}
}

// Len returns the number of instructions emitted so far.
func (b *ModuleBuilder) Len() int {
	return len(b.code)
}

// Emit appends an instruction with no operands.
func (b *ModuleBuilder) Emit(op Opcode) {
	b.code = append(b.code, Instruction{Op: op})
}

// EmitIndex appends an instruction with a 32-bit index operand.
func (b *ModuleBuilder) EmitIndex(op Opcode, index uint32) {
	b.code = append(b.code, Instruction{Op: op, Index: index})
}

// EmitCall appends a CALL instruction.
func (b *ModuleBuilder) EmitCall(argc uint8) {
	b.code = append(b.code, Instruction{Op: OpCall, Args: argc})
}

// EmitInvoke appends an INVOKE instruction.
func (b *ModuleBuilder) EmitInvoke(argc uint8, sym uint32) {
	b.code = append(b.code, Instruction{Op: OpInvoke, Args: argc, Index: sym})
}

// AddConstant interns a numeric constant and returns its index. NaN
// constants are never deduplicated since NaN != NaN.
func (b *ModuleBuilder) AddConstant(f float64) uint32 {
	if idx, ok := b.constMap[f]; ok {
		return idx
	}
	idx := uint32(len(b.constants))
	b.constants = append(b.constants, f)
	if f == f {
		b.constMap[f] = idx
	}
	return idx
}

// Build returns the finished module.
func (b *ModuleBuilder) Build() *Module {
	return &Module{Code: b.code, Constants: b.constants}
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label is a jump target that may be resolved before (backward jump) or
// after (forward jump) the jumps that reference it.
type Label struct {
	resolved bool
	position int   // target instruction index once resolved
	refs     []int // jump instructions awaiting the target
}

// NewLabel creates an unresolved label.
func (b *ModuleBuilder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Mark resolves a label to the next instruction to be emitted and patches
// every pending reference.
func (b *ModuleBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.code)

	for _, ref := range label.refs {
		b.code[ref].Rel = int32(label.position - (ref + 1)) // relative to the advanced ip
	}
	label.refs = nil
}

// EmitJump emits a JMP or JMP_IF_FALSE to label.
func (b *ModuleBuilder) EmitJump(op Opcode, label *Label) {
	pc := len(b.code)
	in := Instruction{Op: op}
	if label.resolved {
		in.Rel = int32(label.position - (pc + 1))
	} else {
		label.refs = append(label.refs, pc)
	}
	b.code = append(b.code, in)
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at pc.
func DisassembleInstruction(m *Module, pc int) string {
	in := m.Code[pc]
	switch in.Op {
	case OpJmp, OpJmpIfFalse:
		return fmt.Sprintf("%04d  %s %+d (-> %04d)", pc, in.Op, in.Rel, m.JumpTarget(pc))
	case OpLoadConst:
		if int(in.Index) < len(m.Constants) {
			return fmt.Sprintf("%04d  %s %d (%g)", pc, in.Op, in.Index, m.Constants[in.Index])
		}
	}
	return fmt.Sprintf("%04d  %s", pc, in)
}

// Disassemble returns a listing of every instruction in m.
func Disassemble(m *Module) string {
	var sb strings.Builder
	for pc := range m.Code {
		if pc > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(DisassembleInstruction(m, pc))
	}
	return sb.String()
}
